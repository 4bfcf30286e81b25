// Package dispatch routes an inbound wire.Command to the aggregate
// registered for it and turns the outcome — success, handler error, or
// any taxonomy error — into a wire.CommandResponse. It never lets a
// per-command error escape as a Go error; even a caller-supplied
// context cancellation is reported as an error response.
package dispatch

import (
	"context"
	"errors"

	"github.com/plaenen/axoncmd/pkg/aggregate"
	"github.com/plaenen/axoncmd/pkg/idgen"
	"github.com/plaenen/axoncmd/pkg/runner"
	"github.com/plaenen/axoncmd/pkg/wire"
)

// ErrCouldNotFindAggregateHandler reports that no aggregate is
// registered for an inbound command's name. Distinct from
// aggregate.ErrMissingHandler, which is the same condition one level
// deeper — inside an aggregate's own command-handler registry, a
// case that should not arise if the aggregate.Registry routing table
// and each Definition's command table were populated consistently.
var ErrCouldNotFindAggregateHandler = errors.New("Could not find aggregate handler for this command")

// Dispatcher routes commands through an aggregate.Registry.
type Dispatcher struct {
	registry *aggregate.Registry
	logger   runner.Logger
}

// New returns a Dispatcher over registry. A nil logger is replaced
// with a no-op one.
func New(registry *aggregate.Registry, logger runner.Logger) *Dispatcher {
	if logger == nil {
		logger = runner.NewNoopLogger()
	}
	return &Dispatcher{registry: registry, logger: logger}
}

// CommandNames returns every command this dispatcher can route,
// suitable for building the stream driver's subscription list.
func (d *Dispatcher) CommandNames() []string {
	return d.registry.CommandNames()
}

// Dispatch resolves cmd.Name to an aggregate handle, runs it, and
// always returns a CommandResponse — success or error. If ctx is already
// done, the command is not run and the response carries ctx's error.
func (d *Dispatcher) Dispatch(ctx context.Context, cmd wire.Command) wire.CommandResponse {
	if err := ctx.Err(); err != nil {
		return wire.NewErrorResponse(cmd.MessageIdentifier, "dispatch", err)
	}

	correlationID := idgen.NewCorrelationID()

	handle, ok := d.registry.Lookup(cmd.Name)
	if !ok {
		d.logger.Error("no aggregate registered for command", "correlation_id", correlationID, "command", cmd.Name)
		return wire.NewErrorResponse(cmd.MessageIdentifier, "routing", ErrCouldNotFindAggregateHandler)
	}

	payload, err := handle.Dispatch(ctx, cmd)
	if err != nil {
		d.logger.Error("command failed",
			"correlation_id", correlationID,
			"command", cmd.Name,
			"aggregate_type", handle.AggregateType(),
			"error", err)
		return wire.NewErrorResponse(cmd.MessageIdentifier, locationOf(err), err)
	}

	d.logger.Debug("command handled",
		"correlation_id", correlationID,
		"command", cmd.Name,
		"aggregate_type", handle.AggregateType())
	return wire.NewSuccessResponse(cmd.MessageIdentifier, payload)
}

// locationOf gives the error-taxonomy location string the response's
// ErrorMessage.Location should carry, matching the taxonomy members in
// the module's design documentation.
func locationOf(err error) string {
	var persistErr *aggregate.PersistFailureError
	var handlerErr *aggregate.HandlerError
	var sourcingErr *aggregate.MissingSourcingHandlerError
	var decodeErr *aggregate.DecodeError
	var aggIDErr *aggregate.InconsistentAggregateIDError

	switch {
	case errors.As(err, &persistErr):
		return "persist"
	case errors.As(err, &handlerErr):
		return "handler"
	case errors.As(err, &sourcingErr):
		return "sourcing"
	case errors.As(err, &decodeErr):
		return "decode"
	case errors.As(err, &aggIDErr):
		return "aggregate-id"
	case errors.Is(err, ErrCouldNotFindAggregateHandler), errors.Is(err, aggregate.ErrMissingHandler):
		return "routing"
	case errors.Is(err, aggregate.ErrMissingAggregateID), errors.Is(err, aggregate.ErrMissingPayload):
		return "validation"
	default:
		return "dispatch"
	}
}
