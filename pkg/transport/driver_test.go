package transport_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plaenen/axoncmd/pkg/aggregate"
	"github.com/plaenen/axoncmd/pkg/config"
	"github.com/plaenen/axoncmd/pkg/dispatch"
	"github.com/plaenen/axoncmd/pkg/handlerregistry"
	"github.com/plaenen/axoncmd/pkg/transport"
	"github.com/plaenen/axoncmd/pkg/wire"
)

// memoryStream is an in-process transport.Stream test double: outbound
// messages are recorded, and inbound commands are fed from a channel
// the test controls directly.
type memoryStream struct {
	mu       sync.Mutex
	outbound []wire.CommandProviderOutbound
	inbound  chan *wire.CommandProviderInbound
}

func newMemoryStream() *memoryStream {
	return &memoryStream{inbound: make(chan *wire.CommandProviderInbound, 16)}
}

func (s *memoryStream) Send(ctx context.Context, msg wire.CommandProviderOutbound) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outbound = append(s.outbound, msg)
	return nil
}

func (s *memoryStream) Recv(ctx context.Context) (*wire.CommandProviderInbound, error) {
	select {
	case msg, ok := <-s.inbound:
		if !ok {
			return nil, errStreamClosed
		}
		return msg, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *memoryStream) Close() error {
	close(s.inbound)
	return nil
}

func (s *memoryStream) outboundSnapshot() []wire.CommandProviderOutbound {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]wire.CommandProviderOutbound, len(s.outbound))
	copy(out, s.outbound)
	return out
}

type errSentinel string

func (e errSentinel) Error() string { return string(e) }

const errStreamClosed = errSentinel("stream closed")

type memoryStore struct {
	mu     sync.Mutex
	events map[string][]wire.Event
}

func (m *memoryStore) LoadEvents(ctx context.Context, id string) ([]wire.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.events[id], nil
}

func (m *memoryStore) AppendEvents(ctx context.Context, id string, expectedLastSeq int64, events []wire.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[id] = append(m.events[id], events...)
	return nil
}

func buildNoopDispatcher(t *testing.T) *dispatch.Dispatcher {
	t.Helper()
	store := &memoryStore{events: make(map[string][]wire.Event)}
	def, err := aggregate.NewDefinition("Greeting", func() struct{} { return struct{}{} }, 4, store)
	require.NoError(t, err)
	require.NoError(t, handlerregistry.InsertIgnoringOutput[string, *aggregate.Context[struct{}], struct{}](
		def.CommandHandlers(), "CreateGreeting",
		func(b []byte) (string, error) { return string(b), nil },
		func(string, *aggregate.Context[struct{}]) error { return nil }))

	registry := aggregate.NewRegistry()
	require.NoError(t, registry.Register(def, []string{"CreateGreeting"}))
	return dispatch.New(registry, nil)
}

func TestDriverSubscribesAndGrantsInitialPermits(t *testing.T) {
	stream := newMemoryStream()
	cfg, err := config.NewConfig("worker-1")
	require.NoError(t, err)
	driver := transport.New(stream, buildNoopDispatcher(t), cfg, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- driver.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()
	<-done

	outbound := stream.outboundSnapshot()
	require.GreaterOrEqual(t, len(outbound), 2)
	assert.NotNil(t, outbound[0].Subscribe)
	assert.Equal(t, "CreateGreeting", outbound[0].Subscribe.Command)
	assert.NotNil(t, outbound[1].FlowControl)
	assert.Equal(t, int64(6), outbound[1].FlowControl.Permits)
}

func TestDriverToppsUpPermitsAtBatchThreshold(t *testing.T) {
	stream := newMemoryStream()
	cfg, err := config.NewConfig("worker-1")
	require.NoError(t, err)
	driver := transport.New(stream, buildNoopDispatcher(t), cfg, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- driver.Run(ctx) }()

	// Initial permits are 2*3=6. After 3 commands, outstanding permits
	// drop to 3, which is <= the batch size and must trigger a top-up.
	for i := 0; i < 3; i++ {
		stream.inbound <- &wire.CommandProviderInbound{Command: &wire.Command{
			MessageIdentifier: "cmd",
			Name:              "CreateGreeting",
			Payload:           wire.SerializedObject{Data: []byte("x")},
		}}
	}

	require.Eventually(t, func() bool {
		flowControlCount := 0
		for _, msg := range stream.outboundSnapshot() {
			if msg.FlowControl != nil {
				flowControlCount++
			}
		}
		return flowControlCount >= 2
	}, time.Second, 5*time.Millisecond)
}
