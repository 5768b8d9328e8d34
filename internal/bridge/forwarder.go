package bridge

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"github.com/saaga0h/agent2mqtt/pkg/mqtt"
)

// Stream is the broker side of the inbound path
type Stream interface {
	Messages() <-chan *Message
	Reconnect(ctx context.Context) error
}

// Sender is the agent side of the inbound path
type Sender interface {
	Send(p []byte) error
}

// Receiver is the agent side of the outbound path
type Receiver interface {
	Receive(buf []byte) (int, error)
	Reconnect(ctx context.Context) error
}

// Publisher is the broker side of the outbound path
type Publisher interface {
	Publish(topic string, payload []byte)
}

// InboundForwarder relays command topic messages into the agent socket
type InboundForwarder struct {
	stream Stream
	sink   Sender
	logger *slog.Logger
}

func NewInboundForwarder(stream Stream, sink Sender, logger *slog.Logger) *InboundForwarder {
	return &InboundForwarder{stream: stream, sink: sink, logger: logger}
}

// Run forwards until ctx is cancelled. The only error it returns is a
// failed re-subscription after a reconnect.
func (f *InboundForwarder) Run(ctx context.Context) error {
	messages := f.stream.Messages()

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-messages:
			if msg == nil {
				f.logger.Warn("MQTT connection lost. Reconnecting...")
				if err := f.stream.Reconnect(ctx); err != nil {
					if ctx.Err() != nil {
						return nil
					}
					return fmt.Errorf("broker reconnect: %w", err)
				}
				continue
			}

			if msg.Topic != mqtt.TopicCommand {
				f.logger.Debug("Ignoring message on unexpected topic", "topic", msg.Topic)
				continue
			}

			if err := f.sink.Send(msg.Payload); err != nil {
				f.logger.Warn("Dropped command", "size", len(msg.Payload), "error", err)
				continue
			}
			f.logger.Debug("Forwarded command to agent", "size", len(msg.Payload))
		}
	}
}

// OutboundForwarder publishes every datagram read from the agent socket
type OutboundForwarder struct {
	source    Receiver
	publisher Publisher
	logger    *slog.Logger
}

func NewOutboundForwarder(source Receiver, publisher Publisher, logger *slog.Logger) *OutboundForwarder {
	return &OutboundForwarder{source: source, publisher: publisher, logger: logger}
}

// Run forwards until ctx is cancelled. A closed agent connection is
// replaced before the next read.
func (f *OutboundForwarder) Run(ctx context.Context) error {
	buf := make([]byte, ReadBufferSize)

	for {
		n, err := f.source.Receive(buf)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			f.logger.Warn("Error reading from agent socket", "error", err)
			n = 0
		}

		if n == 0 {
			f.logger.Warn("Agent socket closed. Reconnecting...")
			if err := f.source.Reconnect(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("agent socket reconnect: %w", err)
			}
			continue
		}

		f.publisher.Publish(mqtt.TopicResponse, bytes.Clone(buf[:n]))
	}
}
