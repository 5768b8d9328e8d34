package bridge

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/saaga0h/agent2mqtt/pkg/mqtt"
)

// streamBuffer is how many inbound messages may queue ahead of the
// inbound forwarder
const streamBuffer = 25

// ConnectionState is the broker side connection state
type ConnectionState int32

const (
	Disconnected ConnectionState = iota
	Connecting
	Connected
)

func (s ConnectionState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return fmt.Sprintf("ConnectionState(%d)", int32(s))
	}
}

// Message is a single MQTT message travelling through the bridge
type Message struct {
	Topic   string
	Payload []byte
	QoS     byte
}

// BrokerLink keeps the broker connection and the command subscription
// alive and exposes the inbound message stream.
type BrokerLink struct {
	client        mqtt.Client
	logger        *slog.Logger
	retryInterval time.Duration

	stream chan *Message
	state  atomic.Int32
}

// NewBrokerLink wraps client. The link installs its own connection-lost
// handler on the client.
func NewBrokerLink(client mqtt.Client, logger *slog.Logger) *BrokerLink {
	l := &BrokerLink{
		client:        client,
		logger:        logger,
		retryInterval: RetryInterval,
		stream:        make(chan *Message, streamBuffer),
	}
	client.SetConnectionLostHandler(l.handleConnectionLost)
	return l
}

// Connect makes the initial broker connection and subscribes to the
// command topic. Errors are not retried.
func (l *BrokerLink) Connect(ctx context.Context) error {
	l.setState(Connecting)
	if err := l.client.Connect(ctx); err != nil {
		l.setState(Disconnected)
		return fmt.Errorf("failed to connect to MQTT broker: %w", err)
	}
	l.setState(Connected)

	return l.Subscribe()
}

// Subscribe subscribes to the command topic. On failure the connection is
// closed and the error returned; a refused subscription is not retried.
func (l *BrokerLink) Subscribe() error {
	if err := l.client.Subscribe(mqtt.TopicCommand, mqtt.QoSAtMostOnce, l.handleMessage); err != nil {
		l.client.Disconnect()
		l.setState(Disconnected)
		return fmt.Errorf("failed to subscribe to %s: %w", mqtt.TopicCommand, err)
	}
	return nil
}

// Reconnect retries the broker connection every retryInterval until it
// succeeds, then re-subscribes. It only fails on a subscription error or
// when ctx is cancelled.
func (l *BrokerLink) Reconnect(ctx context.Context) error {
	for attempt := 1; ; attempt++ {
		l.setState(Connecting)
		err := l.client.Connect(ctx)
		if err == nil {
			l.setState(Connected)
			if err := l.Subscribe(); err != nil {
				return err
			}
			l.logger.Info("Successfully reconnected to MQTT broker", "attempts", attempt)
			return nil
		}
		l.setState(Disconnected)
		l.logger.Debug("MQTT reconnect attempt failed", "attempt", attempt, "error", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(l.retryInterval):
		}
	}
}

// Publish sends payload to topic at QoS 0. Failures are logged and dropped.
func (l *BrokerLink) Publish(topic string, payload []byte) {
	if err := l.client.Publish(topic, mqtt.QoSAtMostOnce, false, payload); err != nil {
		l.logger.Warn("Dropped message", "topic", topic, "size", len(payload), "error", err)
	}
}

// Messages returns the inbound stream. A nil element means the connection
// was lost; the consumer is expected to call Reconnect.
func (l *BrokerLink) Messages() <-chan *Message {
	return l.stream
}

// Disconnect closes the broker connection
func (l *BrokerLink) Disconnect() {
	l.client.Disconnect()
	l.setState(Disconnected)
}

// State returns the current connection state
func (l *BrokerLink) State() ConnectionState {
	return ConnectionState(l.state.Load())
}

// IsConnected reports whether the link is in the Connected state
func (l *BrokerLink) IsConnected() bool {
	return l.State() == Connected
}

func (l *BrokerLink) setState(s ConnectionState) {
	if prev := ConnectionState(l.state.Swap(int32(s))); prev != s {
		l.logger.Debug("MQTT link state changed", "from", prev, "to", s)
	}
}

func (l *BrokerLink) handleMessage(msg mqtt.Message) {
	l.stream <- &Message{
		Topic:   msg.Topic(),
		Payload: bytes.Clone(msg.Payload()),
		QoS:     mqtt.QoSAtMostOnce,
	}
}

func (l *BrokerLink) handleConnectionLost(err error) {
	l.setState(Disconnected)
	l.stream <- nil
}
