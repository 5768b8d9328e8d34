package bridge

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/saaga0h/agent2mqtt/pkg/mqtt"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fakeMQTTClient is an in-memory mqtt.Client
type fakeMQTTClient struct {
	mu sync.Mutex

	// connectErrs is consumed one per Connect call; nil entries and an
	// exhausted slice mean success
	connectErrs  []error
	connectCalls int
	connectTimes []time.Time

	subscribeErr   error
	subscribeCalls int
	subscribedTo   []string
	handler        mqtt.MessageHandler
	subscribed     bool

	disconnectCalls int
	connected       bool

	publishErr error
	published  []Message

	onLost mqtt.ConnectionLostHandler
}

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m *fakeMessage) Topic() string   { return m.topic }
func (m *fakeMessage) Payload() []byte { return m.payload }
func (m *fakeMessage) Ack()            {}

func (f *fakeMQTTClient) Connect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.connectCalls++
	f.connectTimes = append(f.connectTimes, time.Now())
	f.subscribed = false

	if len(f.connectErrs) > 0 {
		err := f.connectErrs[0]
		f.connectErrs = f.connectErrs[1:]
		if err != nil {
			return err
		}
	}
	f.connected = true
	return nil
}

func (f *fakeMQTTClient) Disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.disconnectCalls++
	f.connected = false
	f.subscribed = false
}

func (f *fakeMQTTClient) Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.subscribeCalls++
	f.subscribedTo = append(f.subscribedTo, topic)
	if f.subscribeErr != nil {
		return f.subscribeErr
	}
	f.handler = handler
	f.subscribed = true
	return nil
}

func (f *fakeMQTTClient) Publish(topic string, qos byte, retained bool, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.publishErr != nil {
		return f.publishErr
	}
	f.published = append(f.published, Message{Topic: topic, Payload: payload, QoS: qos})
	return nil
}

func (f *fakeMQTTClient) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeMQTTClient) SetConnectionLostHandler(handler mqtt.ConnectionLostHandler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onLost = handler
}

// deliver hands a message to the subscription handler. It reports false
// when there is no live subscription, as a broker would not deliver then.
func (f *fakeMQTTClient) deliver(topic string, payload []byte) bool {
	f.mu.Lock()
	handler := f.handler
	ok := f.connected && f.subscribed
	f.mu.Unlock()

	if !ok {
		return false
	}
	handler(&fakeMessage{topic: topic, payload: payload})
	return true
}

// dropConnection simulates the broker going away
func (f *fakeMQTTClient) dropConnection() {
	f.mu.Lock()
	f.connected = false
	f.subscribed = false
	onLost := f.onLost
	f.mu.Unlock()

	onLost(errors.New("connection reset by peer"))
}

func (f *fakeMQTTClient) publishedMessages() []Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Message(nil), f.published...)
}

func (f *fakeMQTTClient) connects() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connectCalls
}

func (f *fakeMQTTClient) subscribes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subscribeCalls
}

// fakeConn is an in-memory datagram connection. Datagrams pushed with emit
// are returned by Read one at a time; hangup makes Read return io.EOF.
type fakeConn struct {
	mu       sync.Mutex
	written  [][]byte
	writeErr error
	failNext int

	incoming chan []byte
	closed   chan struct{}
	once     sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		incoming: make(chan []byte, 16),
		closed:   make(chan struct{}),
	}
}

func (c *fakeConn) Read(p []byte) (int, error) {
	select {
	case d, ok := <-c.incoming:
		if !ok {
			return 0, io.EOF
		}
		return copy(p, d), nil
	case <-c.closed:
		return 0, errors.New("use of closed connection")
	}
}

func (c *fakeConn) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.writeErr != nil {
		return 0, c.writeErr
	}
	if c.failNext > 0 {
		c.failNext--
		return 0, errors.New("broken pipe")
	}
	c.written = append(c.written, append([]byte(nil), p...))
	return len(p), nil
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) emit(d []byte) {
	c.incoming <- d
}

func (c *fakeConn) hangup() {
	close(c.incoming)
}

func (c *fakeConn) writes() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.written...)
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// fakeDialer refuses the first fails attempts, then hands out conns in
// order. gate, when set, is waited on before each successful dial.
type fakeDialer struct {
	mu    sync.Mutex
	conns []*fakeConn
	fails int
	calls int
	gate  chan struct{}
}

func (d *fakeDialer) dial(ctx context.Context, path string) (io.ReadWriteCloser, error) {
	d.mu.Lock()
	d.calls++
	if d.fails > 0 {
		d.fails--
		d.mu.Unlock()
		return nil, errors.New("connection refused")
	}
	gate := d.gate
	d.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.conns) == 0 {
		return nil, errors.New("no agent listening")
	}
	conn := d.conns[0]
	d.conns = d.conns[1:]
	return conn, nil
}

func (d *fakeDialer) dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

func (d *fakeDialer) setGate(gate chan struct{}) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.gate = gate
}
