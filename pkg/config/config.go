// Package config holds the stream worker's tunables: cache sizing,
// flow-control batching, and the identifiers it announces to the
// server.
package config

import (
	"fmt"

	"github.com/asaskevich/govalidator"
)

// Config collects every tunable the stream driver and aggregate
// definitions need. Build one with NewConfig, which applies defaults
// and then validates.
type Config struct {
	// ClientId identifies this process to the server.
	ClientId string

	// ComponentName identifies the logical component this client
	// belongs to. Defaults to ClientId.
	ComponentName string

	// CacheCapacity bounds the number of projections an aggregate
	// definition keeps warm.
	CacheCapacity int `valid:"range(1|1000000),required"`

	// PermitBatchSize is the flow-control batch size B: the driver
	// tops up permits once outstanding permits fall to B or below.
	PermitBatchSize int64 `valid:"range(1|1000000),required"`

	// InitialPermits is how many permits the driver grants the server
	// right after subscribing, before any command has been handled.
	InitialPermits int64 `valid:"range(1|2000000),required"`

	// OutboundQueueDepth bounds the channel between command dispatch
	// and the outbound response/flow-control generator.
	OutboundQueueDepth int `valid:"range(1|100000),required"`
}

// Option customizes a Config built by NewConfig.
type Option func(*Config)

// WithComponentName overrides ComponentName (default: ClientId).
func WithComponentName(name string) Option {
	return func(c *Config) { c.ComponentName = name }
}

// WithCacheCapacity overrides CacheCapacity (default: 1024).
func WithCacheCapacity(capacity int) Option {
	return func(c *Config) { c.CacheCapacity = capacity }
}

// WithPermitBatchSize overrides PermitBatchSize (default: 3) and
// InitialPermits (default: 2×batch) together, since the latter is
// conventionally derived from the former.
func WithPermitBatchSize(batch int64) Option {
	return func(c *Config) {
		c.PermitBatchSize = batch
		c.InitialPermits = 2 * batch
	}
}

// WithInitialPermits overrides InitialPermits independently of
// PermitBatchSize.
func WithInitialPermits(permits int64) Option {
	return func(c *Config) { c.InitialPermits = permits }
}

// WithOutboundQueueDepth overrides OutboundQueueDepth (default: 10).
func WithOutboundQueueDepth(depth int) Option {
	return func(c *Config) { c.OutboundQueueDepth = depth }
}

// NewConfig builds a validated Config for clientID, the way a
// functional-options constructor elsewhere in this module's lineage
// builds its options struct before checking it with govalidator.
func NewConfig(clientID string, opts ...Option) (*Config, error) {
	if clientID == "" {
		return nil, fmt.Errorf("client id must not be empty")
	}

	c := &Config{
		ClientId:           clientID,
		ComponentName:       clientID,
		CacheCapacity:       1024,
		PermitBatchSize:     3,
		InitialPermits:      6,
		OutboundQueueDepth:  10,
	}

	for _, opt := range opts {
		opt(c)
	}

	if _, err := govalidator.ValidateStruct(c); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return c, nil
}
