package bridge

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// Bridge runs the two forwarding loops between the broker and the agent
// socket for the lifetime of the process.
type Bridge struct {
	link     *BrokerLink
	channel  *LocalChannel
	inbound  *InboundForwarder
	outbound *OutboundForwarder
	logger   *slog.Logger
}

// New creates a bridge over an unconnected link and channel
func New(link *BrokerLink, channel *LocalChannel, logger *slog.Logger) *Bridge {
	return &Bridge{
		link:     link,
		channel:  channel,
		inbound:  NewInboundForwarder(link, channel, logger.With("direction", "inbound")),
		outbound: NewOutboundForwarder(channel, link, logger.With("direction", "outbound")),
		logger:   logger,
	}
}

// Start connects both sides and blocks while the forwarders run. The agent
// socket is connected first and waited for indefinitely; the broker
// connection and subscription that follow are fatal on failure.
//
// Start returns nil once ctx is cancelled.
func (b *Bridge) Start(ctx context.Context) error {
	b.logger.Info("Starting bridge", "agent_socket", b.channel.Path())

	if err := b.channel.Connect(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}

	if err := b.link.Connect(ctx); err != nil {
		return fmt.Errorf("failed to start broker link: %w", err)
	}

	b.logger.Info("Bridge started and forwarding")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return b.inbound.Run(gctx)
	})
	g.Go(func() error {
		return b.outbound.Run(gctx)
	})
	g.Go(func() error {
		// Unblocks the outbound forwarder's pending read.
		<-gctx.Done()
		if err := b.channel.Close(); err != nil {
			b.logger.Debug("Error closing agent socket", "error", err)
		}
		return nil
	})

	return g.Wait()
}

// Stop disconnects from the broker and closes the agent socket
func (b *Bridge) Stop() error {
	b.logger.Info("Stopping bridge")

	b.link.Disconnect()
	if err := b.channel.Close(); err != nil {
		return fmt.Errorf("failed to close agent socket: %w", err)
	}

	b.logger.Info("Bridge stopped")
	return nil
}
