package dispatch_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plaenen/axoncmd/pkg/aggregate"
	"github.com/plaenen/axoncmd/pkg/dispatch"
	"github.com/plaenen/axoncmd/pkg/handlerregistry"
	"github.com/plaenen/axoncmd/pkg/wire"
)

type memoryStore struct {
	events map[string][]wire.Event
}

func (m *memoryStore) LoadEvents(ctx context.Context, aggregateID string) ([]wire.Event, error) {
	return m.events[aggregateID], nil
}

func (m *memoryStore) AppendEvents(ctx context.Context, aggregateID string, expectedLastSeq int64, events []wire.Event) error {
	m.events[aggregateID] = append(m.events[aggregateID], events...)
	return nil
}

type greeting struct{ Message string }

func buildDispatcher(t *testing.T) *dispatch.Dispatcher {
	t.Helper()
	store := &memoryStore{events: make(map[string][]wire.Event)}
	def, err := aggregate.NewDefinition("Greeting", func() greeting { return greeting{} }, 4, store)
	require.NoError(t, err)

	require.NoError(t, aggregate.InsertSourcingFunc(def, "Greeted",
		func(b []byte) (string, error) { return string(b), nil },
		func(msg string, p greeting) (greeting, error) { p.Message = msg; return p, nil }))

	require.NoError(t, handlerregistry.InsertIgnoringOutput[string, *aggregate.Context[greeting], struct{}](
		def.CommandHandlers(), "CreateGreeting",
		func(b []byte) (string, error) { return string(b), nil },
		func(msg string, ctx *aggregate.Context[greeting]) error {
			if _, err := ctx.GetProjection("greeting-1"); err != nil {
				return err
			}
			ctx.Emit("Greeted", []byte(msg), func(p greeting) greeting { p.Message = msg; return p })
			return nil
		}))

	registry := aggregate.NewRegistry()
	require.NoError(t, registry.Register(def, []string{"CreateGreeting"}))

	return dispatch.New(registry, nil)
}

func TestDispatchSuccessReturnsSuccessResponse(t *testing.T) {
	d := buildDispatcher(t)
	cmd := wire.Command{
		MessageIdentifier: "cmd-1",
		Name:              "CreateGreeting",
		Payload:           wire.SerializedObject{Data: []byte("hello")},
	}

	resp := d.Dispatch(context.Background(), cmd)
	assert.Empty(t, resp.ErrorCode)
	assert.Equal(t, "cmd-1", resp.RequestIdentifier)
}

func TestDispatchUnknownCommandReturnsErrorResponse(t *testing.T) {
	d := buildDispatcher(t)
	cmd := wire.Command{MessageIdentifier: "cmd-2", Name: "NoSuchCommand"}

	resp := d.Dispatch(context.Background(), cmd)
	assert.Equal(t, "ERROR", resp.ErrorCode)
	require.NotNil(t, resp.ErrorMessage)
}

func TestDispatchRespectsCancelledContext(t *testing.T) {
	d := buildDispatcher(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	resp := d.Dispatch(ctx, wire.Command{MessageIdentifier: "cmd-3", Name: "CreateGreeting"})
	assert.Equal(t, "ERROR", resp.ErrorCode)
}
