// Command greeter is a worked example of the stream worker: a single
// "Greeting" aggregate that can be created exactly once, driven over an
// embedded NATS server with a local sqlite-backed event store standing
// in for the real server.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"

	"github.com/plaenen/axoncmd/pkg/aggregate"
	"github.com/plaenen/axoncmd/pkg/config"
	"github.com/plaenen/axoncmd/pkg/dispatch"
	"github.com/plaenen/axoncmd/pkg/fakeserver"
	embeddednats "github.com/plaenen/axoncmd/pkg/runtime/embeddednats"
	"github.com/plaenen/axoncmd/pkg/runner"
	"github.com/plaenen/axoncmd/pkg/transport"
)

func main() {
	clientID := flag.String("client-id", "greeter-demo", "client identifier announced to the server")
	flag.Parse()

	logger := runner.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	cfg, err := config.NewConfig(*clientID)
	if err != nil {
		logger.Error("invalid config", "error", err)
		os.Exit(1)
	}

	natsService := embeddednats.New(embeddednats.WithLogger(logger))

	worker := &streamWorkerService{cfg: cfg, logger: logger, natsService: natsService}

	r := runner.New([]runner.Service{natsService, worker}, runner.WithLogger(logger))
	if err := r.Run(context.Background()); err != nil {
		logger.Error("greeter exited with error", "error", err)
		os.Exit(1)
	}
}

// streamWorkerService adapts the dispatch/transport wiring to
// runner.Service so it starts only after the embedded NATS server is up
// and stops before it goes down.
type streamWorkerService struct {
	cfg         *config.Config
	logger      runner.Logger
	natsService *embeddednats.Service

	store  *fakeserver.EventStore
	bridge *fakeserver.NatsBridge
	stream *transport.NatsStream
	cancel context.CancelFunc
	done   chan error
}

func (s *streamWorkerService) Name() string { return "stream-worker" }

func (s *streamWorkerService) Start(ctx context.Context) error {
	store, err := fakeserver.NewEventStore(":memory:")
	if err != nil {
		return err
	}
	s.store = store

	def, err := newGreetingDefinition(store, 0)
	if err != nil {
		return err
	}

	registry := aggregate.NewRegistry()
	if err := registry.Register(def, []string{"CreateGreeting"}); err != nil {
		return err
	}

	natsCfg := transport.DefaultNatsConfig(s.cfg.ClientId)
	natsCfg.URL = s.natsService.URL()

	serverConn, err := transport.Connect(natsCfg)
	if err != nil {
		return err
	}
	bridge, err := fakeserver.NewNatsBridge(serverConn, store)
	if err != nil {
		return err
	}
	s.bridge = bridge

	clientConn, err := transport.Connect(natsCfg)
	if err != nil {
		return err
	}
	stream, err := transport.OpenStream(clientConn)
	if err != nil {
		return err
	}
	s.stream = stream

	dispatcher := dispatch.New(registry, s.logger)
	driver := transport.New(stream, dispatcher, s.cfg, s.logger, nil)

	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan error, 1)
	go func() { s.done <- driver.Run(runCtx) }()

	return nil
}

func (s *streamWorkerService) Stop(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}
	if s.stream != nil {
		s.stream.Close()
	}
	if s.bridge != nil {
		s.bridge.Close()
	}
	if s.store != nil {
		s.store.Close()
	}
	if s.done != nil {
		<-s.done
	}
	return nil
}
