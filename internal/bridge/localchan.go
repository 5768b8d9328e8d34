package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

const (
	// RetryInterval is the fixed delay between connection attempts on both sides
	RetryInterval = 500 * time.Millisecond

	// ReadBufferSize is the largest datagram read from the agent socket
	ReadBufferSize = 4096
)

// ErrChannelNotConnected is returned by Send and Receive when the handle
// holds no connection, which only happens after a cancelled reconnect.
var ErrChannelNotConnected = errors.New("agent socket not connected")

// DialFunc opens a connection to the agent socket at path
type DialFunc func(ctx context.Context, path string) (io.ReadWriteCloser, error)

// DialSeqpacket connects to a SOCK_SEQPACKET unix socket
func DialSeqpacket(ctx context.Context, path string) (io.ReadWriteCloser, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unixpacket", path)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// LocalChannel owns the single live connection to the agent socket.
//
// Send and Receive share a read lock and may run concurrently. Reconnect
// takes the write lock, so it waits for in-flight calls and holds off new
// ones until the replacement connection has been registered.
type LocalChannel struct {
	path          string
	dial          DialFunc
	logger        *slog.Logger
	retryInterval time.Duration

	mu   sync.RWMutex
	conn io.ReadWriteCloser

	connected atomic.Bool
	session   atomic.Value // string
}

// NewLocalChannel creates a handle for the agent socket at path. It does
// not connect.
func NewLocalChannel(path string, dial DialFunc, logger *slog.Logger) *LocalChannel {
	if dial == nil {
		dial = DialSeqpacket
	}
	c := &LocalChannel{
		path:          path,
		dial:          dial,
		logger:        logger,
		retryInterval: RetryInterval,
	}
	c.session.Store("")
	return c
}

// Connect establishes the first connection, retrying until the agent
// socket accepts or ctx is cancelled
func (c *LocalChannel) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.establish(ctx)
}

// Reconnect closes the current connection and replaces it with a new one
func (c *LocalChannel) Reconnect(ctx context.Context) error {
	c.connected.Store(false)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			c.logger.Debug("Error closing stale agent socket", "error", err)
		}
		c.conn = nil
	}

	return c.establish(ctx)
}

// establish runs the dial loop and installs the new connection. Callers
// hold the write lock.
func (c *LocalChannel) establish(ctx context.Context) error {
	c.logger.Info("Connecting to agent socket", "path", c.path)

	for attempt := 1; ; attempt++ {
		conn, err := c.dial(ctx, c.path)
		if err == nil {
			session := uuid.NewString()
			c.register(conn, session)

			c.conn = conn
			c.session.Store(session)
			c.connected.Store(true)

			c.logger.Info("Successfully connected to agent socket",
				"path", c.path,
				"session", session,
				"attempts", attempt)
			return nil
		}

		c.logger.Debug("Agent socket not available", "path", c.path, "attempt", attempt, "error", err)

		select {
		case <-ctx.Done():
			return fmt.Errorf("connecting to agent socket %s: %w", c.path, ctx.Err())
		case <-time.After(c.retryInterval):
		}
	}
}

// register sends the bootstrap messages. Failures are logged and skipped.
func (c *LocalChannel) register(conn io.Writer, session string) {
	for _, msg := range registrationMessages {
		if _, err := conn.Write(msg); err != nil {
			c.logger.Warn("Failed to send registration to agent socket",
				"session", session,
				"message", string(msg),
				"error", err)
			continue
		}
		c.logger.Debug("Sent registration to agent socket", "session", session, "message", string(msg))
	}
}

// Send writes p as a single datagram on the current connection
func (c *LocalChannel) Send(p []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.conn == nil {
		return ErrChannelNotConnected
	}
	if _, err := c.conn.Write(p); err != nil {
		return fmt.Errorf("failed to write to agent socket: %w", err)
	}
	return nil
}

// Receive reads the next datagram into buf. A return of 0 with a nil error
// means the agent closed the connection.
func (c *LocalChannel) Receive(buf []byte) (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.conn == nil {
		return 0, ErrChannelNotConnected
	}
	n, err := c.conn.Read(buf)
	if errors.Is(err, io.EOF) {
		return n, nil
	}
	if err != nil {
		return n, fmt.Errorf("failed to read from agent socket: %w", err)
	}
	return n, nil
}

// Close closes the current connection, unblocking a pending Receive. It
// only takes the read lock so it cannot deadlock against that Receive.
func (c *LocalChannel) Close() error {
	c.connected.Store(false)

	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.conn == nil {
		return nil
	}
	if err := c.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}

// IsConnected reports whether a registered connection is installed
func (c *LocalChannel) IsConnected() bool {
	return c.connected.Load()
}

// Session returns the id of the current connection, empty before the
// first connect
func (c *LocalChannel) Session() string {
	return c.session.Load().(string)
}

// Path returns the agent socket path
func (c *LocalChannel) Path() string {
	return c.path
}
