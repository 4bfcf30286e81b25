package aggregate

import (
	"context"

	"github.com/plaenen/axoncmd/pkg/wire"
)

// Context is handed to a command handler. It starts with no aggregate
// id and an empty projection; the handler materialises real state by
// calling GetProjection, which fixes the id for the rest of the
// command and loads (or replays) the corresponding projection. Pending
// events are folded onto the projection only after a successful
// persist, never during the handler call itself.
type Context[P any] struct {
	ctx         context.Context
	def         *Definition[P]
	aggregateID string
	projection  P
	seq         int64
	pending     []PendingEvent[P]
	response    *wire.SerializedObject
}

// AggregateID returns the identifier GetProjection resolved this
// context to, or "" if GetProjection has not been called yet.
func (c *Context[P]) AggregateID() string {
	return c.aggregateID
}

// Projection returns the projection as of the last call to
// GetProjection (the empty projection if it has never been called).
func (c *Context[P]) Projection() P {
	return c.projection
}

// GetProjection resolves the aggregate instance this command touches.
// The first call fixes the context's aggregate id and loads its
// current state: a cache hit returns it directly; a miss replays the
// aggregate's full event stream through the sourcing-handler registry.
// Every subsequent call in the same command must pass the same id —
// a single command may only ever touch one aggregate instance — or it
// fails with InconsistentAggregateIDError.
func (c *Context[P]) GetProjection(id string) (P, error) {
	if c.aggregateID != "" && c.aggregateID != id {
		var zero P
		return zero, &InconsistentAggregateIDError{Expected: c.aggregateID, Actual: id}
	}
	if c.aggregateID == "" {
		projection, seq, err := c.def.getProjection(c.ctx, id)
		if err != nil {
			var zero P
			return zero, err
		}
		c.aggregateID = id
		c.projection = projection
		c.seq = seq
	}
	return c.projection, nil
}

// Emit records a new event to be persisted once the handler returns.
// payload is the already-encoded event body; apply folds it onto a
// projection and is used both to update the cache after a successful
// persist and by anything that replays pending events in-process.
func (c *Context[P]) Emit(typeName string, payload []byte, apply func(P) P) {
	c.pending = append(c.pending, PendingEvent[P]{TypeName: typeName, Payload: payload, Apply: apply})
}

// EmitWithMetaData is Emit plus caller-supplied event metadata.
func (c *Context[P]) EmitWithMetaData(typeName string, payload []byte, metaData map[string]string, apply func(P) P) {
	c.pending = append(c.pending, PendingEvent[P]{TypeName: typeName, Payload: payload, MetaData: metaData, Apply: apply})
}

// Respond sets the payload returned to the caller as the command's
// result. Calling it more than once replaces the previous value.
func (c *Context[P]) Respond(payload wire.SerializedObject) {
	c.response = &payload
}

// PendingEvents returns the events emitted so far, for inspection in
// tests.
func (c *Context[P]) PendingEvents() []PendingEvent[P] {
	return c.pending
}

// Result is an ergonomic, value-oriented alternative to calling Emit
// (and optionally Respond) directly: a handler can build its whole
// outcome as one value and hand it to Context.Apply, rather than
// mutating the context imperatively one call at a time.
type Result[P any] struct {
	Events   []PendingEvent[P]
	Response *wire.SerializedObject
}

// NewResult builds a Result that only emits events, with no response
// payload.
func NewResult[P any](events ...PendingEvent[P]) Result[P] {
	return Result[P]{Events: events}
}

// NewResultWithResponse builds a Result that emits events and also
// sets a response payload.
func NewResultWithResponse[P any](response wire.SerializedObject, events ...PendingEvent[P]) Result[P] {
	return Result[P]{Events: events, Response: &response}
}

// Apply records every event and the response (if any) carried by r
// onto c, in one call.
func (c *Context[P]) Apply(r Result[P]) {
	c.pending = append(c.pending, r.Events...)
	if r.Response != nil {
		c.response = r.Response
	}
}
