package aggregate

import (
	"context"

	"github.com/plaenen/axoncmd/pkg/wire"
)

// Handle type-erases a *Definition[P] so a Registry can hold
// definitions for many different projection types side by side.
type Handle interface {
	// AggregateType is the aggregate's wire/projection name.
	AggregateType() string

	// Dispatch decodes cmd's payload, runs the matching command
	// handler — which resolves the aggregate instance it touches
	// itself, via Context.GetProjection — persists any events it
	// emitted, and returns the handler's response payload, if any.
	Dispatch(ctx context.Context, cmd wire.Command) (*wire.SerializedObject, error)
}

// AggregateType implements Handle.
func (d *Definition[P]) AggregateType() string {
	return d.Name
}

// Dispatch implements Handle.
func (d *Definition[P]) Dispatch(ctx context.Context, cmd wire.Command) (*wire.SerializedObject, error) {
	handler, ok := d.command.Get(cmd.Name)
	if !ok {
		return nil, ErrMissingHandler
	}
	if len(cmd.Payload.Data) == 0 {
		return nil, ErrMissingPayload
	}

	c := d.NewContext(ctx)

	if _, err := handler.Handle(cmd.Payload.Data, c); err != nil {
		return nil, &HandlerError{Cause: err}
	}

	// Only a handler that actually emitted events needs an aggregate
	// id; a read-only or no-op command that never calls GetProjection
	// is not an error.
	if len(c.pending) > 0 && c.aggregateID == "" {
		return nil, ErrMissingAggregateID
	}

	if _, err := d.Persist(ctx, c); err != nil {
		return nil, err
	}

	return c.response, nil
}
