// Package transport drives the bidirectional command stream: it
// subscribes to the commands the dispatcher knows how to handle, grants
// the server credit-based permits to send more, dispatches whatever
// arrives, and turns each outcome into an outbound response — topping
// up permits as they run low. Establishing the underlying stream (and
// any TLS/discovery/reconnection policy around it) is someone else's
// concern; this package only drives messages once a Stream exists.
package transport

import (
	"context"
	"fmt"

	"github.com/plaenen/axoncmd/pkg/config"
	"github.com/plaenen/axoncmd/pkg/dispatch"
	"github.com/plaenen/axoncmd/pkg/observability"
	"github.com/plaenen/axoncmd/pkg/runner"
	"github.com/plaenen/axoncmd/pkg/wire"
)

// Stream is an already-established bidirectional command stream: a
// sequence of CommandProviderInbound messages from the server and a
// sequence of CommandProviderOutbound messages to it.
type Stream interface {
	Recv(ctx context.Context) (*wire.CommandProviderInbound, error)
	Send(ctx context.Context, msg wire.CommandProviderOutbound) error
	Close() error
}

// Driver runs the subscribe/flow-control/dispatch loop described in
// this module's design over a single Stream.
type Driver struct {
	stream     Stream
	dispatcher *dispatch.Dispatcher
	cfg        *config.Config
	logger     runner.Logger
	metrics    *observability.Metrics
}

// New returns a Driver that will dispatch commands from stream through
// dispatcher, governed by cfg. A nil logger is replaced with a no-op
// implementation; with nil metrics, no metrics are recorded.
func New(stream Stream, dispatcher *dispatch.Dispatcher, cfg *config.Config, logger runner.Logger, metrics *observability.Metrics) *Driver {
	if logger == nil {
		logger = runner.NewNoopLogger()
	}
	return &Driver{stream: stream, dispatcher: dispatcher, cfg: cfg, logger: logger, metrics: metrics}
}

// outcome carries a dispatched command's response (which names the
// request it answers) to the outbound generator.
type outcome struct {
	response wire.CommandResponse
}

// Run subscribes to every command the dispatcher knows about, grants
// the initial permit batch, and then alternates between receiving
// commands and feeding their outcomes to the outbound generator until
// ctx is cancelled or the stream errs. Only a Stream-level error is
// returned; every per-command error is already folded into the
// CommandResponse sent back over the wire.
func (d *Driver) Run(ctx context.Context) error {
	for _, name := range d.dispatcher.CommandNames() {
		sub := wire.CommandSubscription{
			MessageIdentifier: wire.NewMessageID(),
			Command:           name,
			ClientId:          d.cfg.ClientId,
			ComponentName:     d.cfg.ComponentName,
			LoadFactor:        100,
		}
		if err := d.stream.Send(ctx, wire.CommandProviderOutbound{Subscribe: &sub}); err != nil {
			return fmt.Errorf("subscribe to %s: %w", name, err)
		}
		d.logger.Info("subscribed to command", "command", name)
	}

	if err := d.stream.Send(ctx, wire.CommandProviderOutbound{
		FlowControl: &wire.FlowControl{ClientId: d.cfg.ClientId, Permits: d.cfg.InitialPermits},
	}); err != nil {
		return fmt.Errorf("send initial flow control: %w", err)
	}
	if d.metrics != nil {
		d.metrics.PermitsGranted.Add(ctx, d.cfg.InitialPermits)
		d.metrics.PermitsOutstanding.Add(ctx, d.cfg.InitialPermits)
	}

	results := make(chan outcome, d.cfg.OutboundQueueDepth)
	outboundErr := make(chan error, 1)
	go d.runOutbound(ctx, results, outboundErr)

	for {
		inbound, err := d.stream.Recv(ctx)
		if err != nil {
			close(results)
			<-outboundErr
			return fmt.Errorf("receive from command stream: %w", err)
		}
		if inbound == nil || inbound.Command == nil {
			continue
		}

		cmd := *inbound.Command
		d.logger.Debug("received command", "summary", wire.Summary(&cmd))
		response := d.dispatcher.Dispatch(ctx, cmd)

		select {
		case results <- outcome{response: response}:
		case err := <-outboundErr:
			return err
		case <-ctx.Done():
			close(results)
			<-outboundErr
			return ctx.Err()
		}
	}
}

// runOutbound is the outbound leg: it turns each dispatched outcome
// into a CommandResponse on the wire, counts down the local permit
// balance, and re-grants a batch once outstanding permits fall to the
// batch size or below. The <= comparison (not <) matches the permit
// accounting this worker's design is bit-for-bit compatible with.
func (d *Driver) runOutbound(ctx context.Context, results <-chan outcome, done chan<- error) {
	permits := d.cfg.InitialPermits
	batch := d.cfg.PermitBatchSize

	for item := range results {
		if err := d.stream.Send(ctx, wire.CommandProviderOutbound{CommandResponse: &item.response}); err != nil {
			done <- fmt.Errorf("send command response: %w", err)
			return
		}

		permits--
		if d.metrics != nil {
			d.metrics.PermitsOutstanding.Add(ctx, -1)
		}

		if permits <= batch {
			if err := d.stream.Send(ctx, wire.CommandProviderOutbound{
				FlowControl: &wire.FlowControl{ClientId: d.cfg.ClientId, Permits: batch},
			}); err != nil {
				done <- fmt.Errorf("send flow control top-up: %w", err)
				return
			}
			permits += batch
			if d.metrics != nil {
				d.metrics.PermitsGranted.Add(ctx, batch)
				d.metrics.PermitsOutstanding.Add(ctx, batch)
			}
		}
	}
	done <- nil
}
