// Package nats wraps an embedded NATS server, used to back integration
// tests of the stream driver and the greeter demo binary (through
// pkg/runtime/embeddednats) without requiring an external NATS
// deployment.
package nats

import (
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
)

// EmbeddedServer wraps an in-process NATS server.
type EmbeddedServer struct {
	server       *server.Server
	url          string
	shutdownOnce sync.Once
}

// Option configures the embedded server.
type Option func(*server.Options)

// WithPort sets a specific port. Use -1 (the default) for a random
// available port, which is what tests should normally do.
func WithPort(port int) Option {
	return func(opts *server.Options) {
		opts.Port = port
	}
}

// WithDebug enables debug-level server logging.
func WithDebug(enabled bool) Option {
	return func(opts *server.Options) {
		opts.Debug = enabled
	}
}

// StartEmbeddedServer starts an in-process NATS server on a random
// port by default.
func StartEmbeddedServer(options ...Option) (*EmbeddedServer, error) {
	opts := &server.Options{
		Host: "127.0.0.1",
		Port: -1,
	}
	for _, opt := range options {
		opt(opts)
	}

	s, err := server.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("create embedded nats server: %w", err)
	}

	go s.Start()
	if !s.ReadyForConnections(5 * time.Second) {
		return nil, fmt.Errorf("embedded nats server not ready within 5s")
	}

	return &EmbeddedServer{server: s, url: s.ClientURL()}, nil
}

// URL returns the client connection URL.
func (e *EmbeddedServer) URL() string {
	return e.url
}

// Shutdown stops the server, waiting up to 5 seconds. Safe to call
// more than once.
func (e *EmbeddedServer) Shutdown() {
	e.shutdownOnce.Do(func() {
		if e.server == nil {
			return
		}
		e.server.Shutdown()

		done := make(chan struct{})
		go func() {
			e.server.WaitForShutdown()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
		}
	})
}

// ConnectToEmbedded connects a fresh client to srv.
func ConnectToEmbedded(srv *EmbeddedServer) (*nats.Conn, error) {
	return nats.Connect(srv.URL())
}
