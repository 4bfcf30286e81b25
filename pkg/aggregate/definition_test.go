package aggregate_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plaenen/axoncmd/pkg/aggregate"
	"github.com/plaenen/axoncmd/pkg/handlerregistry"
	"github.com/plaenen/axoncmd/pkg/wire"
)

func insertIncrementHandler(def *aggregate.Definition[counterProjection], apply func(int, *aggregate.Context[counterProjection]) error) error {
	return handlerregistry.InsertIgnoringOutput[int, *aggregate.Context[counterProjection], struct{}](
		def.CommandHandlers(), "Increment",
		func(b []byte) (int, error) { return int(b[0]), nil },
		apply,
	)
}

// memoryStore is a minimal in-memory aggregate.EventStore test double.
type memoryStore struct {
	events       map[string][]wire.Event
	appendErr    error
	appendCalled int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{events: make(map[string][]wire.Event)}
}

func (m *memoryStore) LoadEvents(ctx context.Context, aggregateID string) ([]wire.Event, error) {
	return m.events[aggregateID], nil
}

func (m *memoryStore) AppendEvents(ctx context.Context, aggregateID string, expectedLastSeq int64, events []wire.Event) error {
	m.appendCalled++
	if m.appendErr != nil {
		return m.appendErr
	}
	m.events[aggregateID] = append(m.events[aggregateID], events...)
	return nil
}

type counterProjection struct {
	Count int
}

func buildCounterDefinition(t *testing.T, store aggregate.EventStore) *aggregate.Definition[counterProjection] {
	t.Helper()
	def, err := aggregate.NewDefinition("Counter", func() counterProjection { return counterProjection{} }, 4, store)
	require.NoError(t, err)

	err = aggregate.InsertSourcingFunc(def, "Incremented",
		func(b []byte) (int, error) { return int(b[0]), nil },
		func(delta int, p counterProjection) (counterProjection, error) {
			p.Count += delta
			return p, nil
		})
	require.NoError(t, err)

	return def
}

func TestDispatchAppliesEmittedEventAndPersists(t *testing.T) {
	store := newMemoryStore()
	def := buildCounterDefinition(t, store)

	handler := func(delta int, ctx *aggregate.Context[counterProjection]) error {
		if _, err := ctx.GetProjection("counter-1"); err != nil {
			return err
		}
		ctx.Emit("Incremented", []byte{byte(delta)}, func(p counterProjection) counterProjection {
			p.Count += delta
			return p
		})
		return nil
	}
	require.NoError(t, insertIncrementHandler(def, handler))

	cmd := wire.Command{
		MessageIdentifier: "cmd-1",
		Name:              "Increment",
		Payload:           wire.SerializedObject{Data: []byte{5}},
	}

	_, err := def.Dispatch(context.Background(), cmd)
	require.NoError(t, err)
	assert.Equal(t, 1, store.appendCalled)
	assert.Len(t, store.events["counter-1"], 1)
	assert.Equal(t, int64(0), store.events["counter-1"][0].AggregateSequenceNumber)

	// Second command should see the projection folded from the first.
	cmd.MessageIdentifier = "cmd-2"
	_, err = def.Dispatch(context.Background(), cmd)
	require.NoError(t, err)
	assert.Len(t, store.events["counter-1"], 2)
	assert.Equal(t, int64(1), store.events["counter-1"][1].AggregateSequenceNumber)
}

func TestPersistFailureDoesNotUpdateCache(t *testing.T) {
	store := newMemoryStore()
	def := buildCounterDefinition(t, store)

	handler := func(delta int, ctx *aggregate.Context[counterProjection]) error {
		if _, err := ctx.GetProjection("counter-1"); err != nil {
			return err
		}
		ctx.Emit("Incremented", []byte{byte(delta)}, func(p counterProjection) counterProjection {
			p.Count += delta
			return p
		})
		return nil
	}
	require.NoError(t, insertIncrementHandler(def, handler))

	cmd := wire.Command{
		MessageIdentifier: "cmd-1",
		Name:              "Increment",
		Payload:           wire.SerializedObject{Data: []byte{5}},
	}

	store.appendErr = errors.New("store unavailable")
	_, err := def.Dispatch(context.Background(), cmd)
	require.Error(t, err)
	var persistErr *aggregate.PersistFailureError
	assert.ErrorAs(t, err, &persistErr)

	// Recovering the store and dispatching again should replay from
	// scratch (seq -1), not from whatever the failed attempt tried to
	// write into the cache.
	store.appendErr = nil
	_, err = def.Dispatch(context.Background(), cmd)
	require.NoError(t, err)
	require.Len(t, store.events["counter-1"], 1)
	assert.Equal(t, int64(0), store.events["counter-1"][0].AggregateSequenceNumber)
}

func TestMissingSourcingHandlerOnReplay(t *testing.T) {
	store := newMemoryStore()
	store.events["counter-1"] = []wire.Event{{
		AggregateIdentifier:     "counter-1",
		AggregateSequenceNumber: 0,
		Payload:                 wire.SerializedObject{TypeName: "Unknown"},
	}}
	def := buildCounterDefinition(t, store)

	cmd := wire.Command{
		MessageIdentifier: "cmd-1",
		Name:              "Increment",
		Payload:           wire.SerializedObject{Data: []byte{1}},
	}
	require.NoError(t, insertIncrementHandler(def, func(delta int, ctx *aggregate.Context[counterProjection]) error {
		_, err := ctx.GetProjection("counter-1")
		return err
	}))

	_, err := def.Dispatch(context.Background(), cmd)
	var missing *aggregate.MissingSourcingHandlerError
	assert.ErrorAs(t, err, &missing)
}

func TestMissingAggregateIDIsRejected(t *testing.T) {
	store := newMemoryStore()
	def := buildCounterDefinition(t, store)
	// The handler emits without ever calling GetProjection — scenario 5:
	// nothing identifies which aggregate the event belongs to.
	require.NoError(t, insertIncrementHandler(def, func(delta int, ctx *aggregate.Context[counterProjection]) error {
		ctx.Emit("Incremented", []byte{byte(delta)}, func(p counterProjection) counterProjection {
			p.Count += delta
			return p
		})
		return nil
	}))

	cmd := wire.Command{Name: "Increment", Payload: wire.SerializedObject{Data: []byte{1}}}
	_, err := def.Dispatch(context.Background(), cmd)
	assert.ErrorIs(t, err, aggregate.ErrMissingAggregateID)
}

func TestInconsistentAggregateIDRejectsSecondID(t *testing.T) {
	store := newMemoryStore()
	def := buildCounterDefinition(t, store)
	require.NoError(t, insertIncrementHandler(def, func(delta int, ctx *aggregate.Context[counterProjection]) error {
		if _, err := ctx.GetProjection("counter-1"); err != nil {
			return err
		}
		_, err := ctx.GetProjection("counter-2")
		return err
	}))

	cmd := wire.Command{Name: "Increment", Payload: wire.SerializedObject{Data: []byte{1}}}
	_, err := def.Dispatch(context.Background(), cmd)
	var inconsistent *aggregate.InconsistentAggregateIDError
	assert.ErrorAs(t, err, &inconsistent)
}
