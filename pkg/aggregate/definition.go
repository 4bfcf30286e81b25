// Package aggregate implements the per-aggregate-type definition, its
// bounded projection cache, the aggregate context handed to command
// handlers, and the type registry used to route commands to the right
// aggregate definition.
package aggregate

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/plaenen/axoncmd/pkg/handlerregistry"
	"github.com/plaenen/axoncmd/pkg/wire"
)

// DefaultCacheCapacity is the number of projections an aggregate
// definition keeps warm before evicting the least recently used entry.
const DefaultCacheCapacity = 1024

// EventStore is everything an aggregate definition needs from the
// server-side event store: full replay on a cache miss, and an
// optimistic append on persist.
type EventStore interface {
	// LoadEvents returns every event recorded for aggregateID, in
	// ascending sequence order. Returns an empty slice for an
	// aggregate with no history.
	LoadEvents(ctx context.Context, aggregateID string) ([]wire.Event, error)

	// AppendEvents appends events to aggregateID's stream, failing
	// if expectedLastSeq no longer matches the store's view of the
	// stream (optimistic concurrency). Persist wraps any such failure
	// in a PersistFailureError.
	AppendEvents(ctx context.Context, aggregateID string, expectedLastSeq int64, events []wire.Event) error
}

// PendingEvent is an event a command handler has emitted during the
// current command but which has not yet been appended to the store.
// Apply folds it onto a projection directly, without going through the
// byte-decoding sourcing handlers used for replay.
type PendingEvent[P any] struct {
	TypeName string
	Payload  []byte
	MetaData map[string]string
	Apply    func(P) P
}

type cacheEntry[P any] struct {
	seq        int64
	projection P
}

// Definition is one aggregate type's static configuration: its
// identity, its bounded projection cache, and its command/sourcing
// handler tables. Name is used both as the wire projection name and as
// the Event.AggregateType on every event this definition persists —
// a single field, not two, so the two can never drift apart.
type Definition[P any] struct {
	Name     string
	store    EventStore
	cache    *lru.Cache[string, cacheEntry[P]]
	empty    func() P
	command  *handlerregistry.Registry[*Context[P], struct{}]
	sourcing *SourcingRegistry[P]
}

// NewDefinition builds an aggregate definition named name, backed by
// store, with a bounded LRU projection cache of the given capacity (use
// DefaultCacheCapacity when in doubt).
func NewDefinition[P any](name string, empty func() P, cacheCapacity int, store EventStore) (*Definition[P], error) {
	if cacheCapacity <= 0 {
		cacheCapacity = DefaultCacheCapacity
	}
	cache, err := lru.New[string, cacheEntry[P]](cacheCapacity)
	if err != nil {
		return nil, fmt.Errorf("create projection cache for %s: %w", name, err)
	}
	return &Definition[P]{
		Name:     name,
		store:    store,
		cache:    cache,
		empty:    empty,
		command:  handlerregistry.New[*Context[P], struct{}](),
		sourcing: NewSourcingRegistry[P](),
	}, nil
}

// CommandHandlers exposes the command-handler registry so package-level
// generic registration helpers (handlerregistry.InsertFunc and friends)
// can be used against it.
func (d *Definition[P]) CommandHandlers() *handlerregistry.Registry[*Context[P], struct{}] {
	return d.command
}

// SourcingHandlers exposes the sourcing-handler registry used to fold
// raw stored events onto a projection during replay.
func (d *Definition[P]) SourcingHandlers() *SourcingRegistry[P] {
	return d.sourcing
}

// getProjection returns the current projection and last-stored sequence
// number (-1 if the aggregate has never been persisted) for id,
// consulting the cache first and falling back to a full replay from the
// store on a miss. The cache is only ever read or written with a single
// atomic call; it is never locked across a replay or any other
// suspension point.
func (d *Definition[P]) getProjection(ctx context.Context, id string) (P, int64, error) {
	if entry, ok := d.cache.Get(id); ok {
		return entry.projection, entry.seq, nil
	}

	events, err := d.store.LoadEvents(ctx, id)
	if err != nil {
		var zero P
		return zero, 0, fmt.Errorf("load events for %s %s: %w", d.Name, id, err)
	}

	projection := d.empty()
	seq := int64(-1)
	for _, event := range events {
		handler, ok := d.sourcing.Get(event.Payload.TypeName)
		if !ok {
			var zero P
			return zero, 0, &MissingSourcingHandlerError{EventType: event.Payload.TypeName}
		}
		projection, err = handler.Apply(event.Payload.Data, projection)
		if err != nil {
			var zero P
			return zero, 0, fmt.Errorf("apply event %s to %s %s: %w", event.Payload.TypeName, d.Name, id, err)
		}
		seq = event.AggregateSequenceNumber
	}

	if seq >= 0 {
		d.cache.Add(id, cacheEntry[P]{seq: seq, projection: projection})
	}
	return projection, seq, nil
}

// NewContext returns a fresh Context bound to this definition, with an
// empty projection and no aggregate id resolved yet. The handler
// resolves the id (and loads the real projection) by calling
// Context.GetProjection.
func (d *Definition[P]) NewContext(ctx context.Context) *Context[P] {
	return &Context[P]{
		ctx:        ctx,
		def:        d,
		projection: d.empty(),
		seq:        -1,
	}
}

// Persist appends c's pending events to the store (if any) and, only on
// success, folds them onto the cached projection. A failed append never
// touches the cache: the cached projection stays exactly as it was
// before the command ran, so a retried command replays from a
// consistent, un-rolled-forward state.
func (d *Definition[P]) Persist(ctx context.Context, c *Context[P]) ([]wire.Event, error) {
	if len(c.pending) == 0 {
		return nil, nil
	}

	nextSeq := c.seq + 1
	events := make([]wire.Event, len(c.pending))
	for i, p := range c.pending {
		events[i] = wire.Event{
			MessageIdentifier:       wire.NewMessageID(),
			AggregateIdentifier:     c.aggregateID,
			AggregateSequenceNumber: nextSeq + int64(i),
			AggregateType:           d.Name,
			Payload:                 wire.SerializedObject{TypeName: p.TypeName, Data: p.Payload},
			MetaData:                p.MetaData,
		}
	}

	if err := d.store.AppendEvents(ctx, c.aggregateID, c.seq, events); err != nil {
		return nil, &PersistFailureError{Cause: err}
	}

	projection := c.projection
	for _, p := range c.pending {
		projection = p.Apply(projection)
	}
	finalSeq := nextSeq + int64(len(c.pending)) - 1
	d.cache.Add(c.aggregateID, cacheEntry[P]{seq: finalSeq, projection: projection})

	return events, nil
}
