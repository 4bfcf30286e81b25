// Package embeddednats adapts an embedded NATS server to a
// runner.Service, so the demo process can start and stop it alongside
// the stream worker.
package embeddednats

import (
	"context"
	"fmt"

	"github.com/plaenen/axoncmd/pkg/infrastructure/nats"
	"github.com/plaenen/axoncmd/pkg/observability"
	"github.com/plaenen/axoncmd/pkg/runner"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Service wraps an embedded NATS server as a runner.Service.
type Service struct {
	server      *nats.EmbeddedServer
	logger      runner.Logger
	tracer      trace.Tracer
	natsOptions []nats.Option
}

// Option configures the service.
type Option func(*Service)

// WithLogger sets the logger used for lifecycle events.
func WithLogger(logger runner.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithTracer sets the OpenTelemetry tracer used for lifecycle spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(s *Service) { s.tracer = tracer }
}

// WithNATSOptions passes options through to nats.StartEmbeddedServer.
func WithNATSOptions(opts ...nats.Option) Option {
	return func(s *Service) { s.natsOptions = opts }
}

// New creates an embedded NATS service for use with runner.Runner.
func New(opts ...Option) *Service {
	s := &Service{
		logger: runner.NewNoopLogger(),
		tracer: noop.NewTracerProvider().Tracer("embeddednats"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name implements runner.Service.
func (s *Service) Name() string { return "embedded-nats" }

// Start implements runner.Service.
func (s *Service) Start(ctx context.Context) error {
	ctx, span := s.tracer.Start(ctx, "embeddednats.Start")
	defer span.End()

	s.logger.Info("starting embedded NATS server")
	srv, err := nats.StartEmbeddedServer(s.natsOptions...)
	if err != nil {
		observability.SetSpanError(ctx, err)
		s.logger.Error("failed to start embedded NATS", "error", err)
		return fmt.Errorf("start embedded nats: %w", err)
	}
	s.server = srv
	span.SetAttributes(attribute.String("nats.url", srv.URL()))
	s.logger.Info("embedded NATS server started", "url", srv.URL())
	return nil
}

// Stop implements runner.Service.
func (s *Service) Stop(ctx context.Context) error {
	_, span := s.tracer.Start(ctx, "embeddednats.Stop")
	defer span.End()

	s.logger.Info("stopping embedded NATS server")
	if s.server != nil {
		s.server.Shutdown()
	}
	return nil
}

// HealthCheck implements runner.HealthChecker.
func (s *Service) HealthCheck(ctx context.Context) error {
	if s.server == nil {
		return fmt.Errorf("nats server not started")
	}
	nc, err := nats.ConnectToEmbedded(s.server)
	if err != nil {
		return fmt.Errorf("nats server not responsive: %w", err)
	}
	nc.Close()
	return nil
}

// URL returns the server's connection URL. Only valid after Start.
func (s *Service) URL() string {
	if s.server == nil {
		return ""
	}
	return s.server.URL()
}

// Server returns the underlying embedded server, or nil before Start.
func (s *Service) Server() *nats.EmbeddedServer {
	return s.server
}

var (
	_ runner.Service       = (*Service)(nil)
	_ runner.HealthChecker = (*Service)(nil)
)
