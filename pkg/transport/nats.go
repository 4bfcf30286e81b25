package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/plaenen/axoncmd/pkg/wire"
)

// NatsConfig configures the NATS-backed Stream and EventStoreClient.
// Mirrors the shape of a plain connection config elsewhere in this
// module's lineage: a URL, a client name, and reconnection behavior —
// authentication is deliberately out of scope here, the same way
// channel establishment is out of scope for the driver above.
type NatsConfig struct {
	URL             string
	Name            string
	MaxReconnects   int
	ReconnectWait   time.Duration
	RequestTimeout  time.Duration
	MaxRetries      int
}

// DefaultNatsConfig returns sane defaults for connecting to a local
// development server.
func DefaultNatsConfig(clientID string) *NatsConfig {
	return &NatsConfig{
		URL:            nats.DefaultURL,
		Name:           clientID,
		MaxReconnects:  5,
		ReconnectWait:  2 * time.Second,
		RequestTimeout: 10 * time.Second,
		MaxRetries:     3,
	}
}

// Connect opens a NATS connection with the given config's reconnection
// policy.
func Connect(cfg *NatsConfig) (*nats.Conn, error) {
	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
	}
	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to nats at %s: %w", cfg.URL, err)
	}
	return nc, nil
}

// commandSubject is the well-known subject the server listens on for a
// client's Subscribe/FlowControl/CommandResponse traffic.
const commandSubject = "axoncmd.commands"

// NatsStream implements Stream over a NATS connection: outbound control
// and response traffic is published to a shared subject carrying this
// client's private inbox as the reply-to, and inbound commands arrive
// on that inbox.
type NatsStream struct {
	nc     *nats.Conn
	inbox  string
	sub    *nats.Subscription
	msgCh  chan *nats.Msg
}

// OpenStream subscribes nc to a fresh private inbox and returns a
// Stream ready to drive.
func OpenStream(nc *nats.Conn) (*NatsStream, error) {
	inbox := nc.NewInbox()
	msgCh := make(chan *nats.Msg, 64)
	sub, err := nc.ChanSubscribe(inbox, msgCh)
	if err != nil {
		return nil, fmt.Errorf("subscribe to inbox %s: %w", inbox, err)
	}
	return &NatsStream{nc: nc, inbox: inbox, sub: sub, msgCh: msgCh}, nil
}

// Send implements Stream.
func (s *NatsStream) Send(ctx context.Context, msg wire.CommandProviderOutbound) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode outbound message: %w", err)
	}
	return s.nc.PublishRequest(commandSubject, s.inbox, data)
}

// Recv implements Stream.
func (s *NatsStream) Recv(ctx context.Context) (*wire.CommandProviderInbound, error) {
	select {
	case msg, ok := <-s.msgCh:
		if !ok {
			return nil, fmt.Errorf("command stream closed")
		}
		var inbound wire.CommandProviderInbound
		if err := json.Unmarshal(msg.Data, &inbound); err != nil {
			return nil, fmt.Errorf("decode inbound message: %w", err)
		}
		return &inbound, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close implements Stream.
func (s *NatsStream) Close() error {
	return s.sub.Unsubscribe()
}

// eventStoreClient implements aggregate.EventStore over NATS
// request/reply, with exponential-backoff retry on optimistic
// concurrency conflicts — the same retry shape used elsewhere in this
// module's lineage for handling a rejected append.
type eventStoreClient struct {
	nc         *nats.Conn
	timeout    time.Duration
	maxRetries int
}

// NewEventStoreClient returns an aggregate.EventStore backed by nc,
// using subjects under the "axoncmd.eventstore." namespace.
func NewEventStoreClient(nc *nats.Conn, cfg *NatsConfig) *eventStoreClient {
	return &eventStoreClient{nc: nc, timeout: cfg.RequestTimeout, maxRetries: cfg.MaxRetries}
}

type loadEventsRequest struct {
	AggregateID string `json:"aggregate_id"`
}

type loadEventsResponse struct {
	Events []wire.Event `json:"events"`
	Error  string       `json:"error,omitempty"`
}

// LoadEvents implements aggregate.EventStore.
func (c *eventStoreClient) LoadEvents(ctx context.Context, aggregateID string) ([]wire.Event, error) {
	reqData, err := json.Marshal(loadEventsRequest{AggregateID: aggregateID})
	if err != nil {
		return nil, fmt.Errorf("encode load request: %w", err)
	}

	msg, err := c.nc.Request("axoncmd.eventstore.load", reqData, c.timeout)
	if err != nil {
		return nil, fmt.Errorf("request load events for %s: %w", aggregateID, err)
	}

	var resp loadEventsResponse
	if err := json.Unmarshal(msg.Data, &resp); err != nil {
		return nil, fmt.Errorf("decode load response: %w", err)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("%s", resp.Error)
	}
	return resp.Events, nil
}

type appendEventsRequest struct {
	AggregateID     string      `json:"aggregate_id"`
	ExpectedLastSeq int64       `json:"expected_last_seq"`
	Events          []wire.Event `json:"events"`
}

type appendEventsResponse struct {
	Conflict bool   `json:"conflict"`
	Error    string `json:"error,omitempty"`
}

// AppendEvents implements aggregate.EventStore, retrying with
// exponential backoff (10ms, 20ms, 40ms, ...) only on a reported
// optimistic-concurrency conflict.
func (c *eventStoreClient) AppendEvents(ctx context.Context, aggregateID string, expectedLastSeq int64, events []wire.Event) error {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		reqData, err := json.Marshal(appendEventsRequest{
			AggregateID:     aggregateID,
			ExpectedLastSeq: expectedLastSeq,
			Events:          events,
		})
		if err != nil {
			return fmt.Errorf("encode append request: %w", err)
		}

		msg, err := c.nc.Request("axoncmd.eventstore.append", reqData, c.timeout)
		if err != nil {
			return fmt.Errorf("request append for %s: %w", aggregateID, err)
		}

		var resp appendEventsResponse
		if err := json.Unmarshal(msg.Data, &resp); err != nil {
			return fmt.Errorf("decode append response: %w", err)
		}
		if resp.Error == "" {
			return nil
		}
		if !resp.Conflict {
			return fmt.Errorf("%s", resp.Error)
		}

		lastErr = fmt.Errorf("%s", resp.Error)
		if attempt == c.maxRetries {
			break
		}
		backoff := time.Duration(10*(1<<uint(attempt))) * time.Millisecond
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return lastErr
}
