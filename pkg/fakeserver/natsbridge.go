package fakeserver

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/nats-io/nats.go"

	"github.com/plaenen/axoncmd/pkg/wire"
)

// NatsBridge answers the event-store subjects pkg/transport's
// eventStoreClient calls, and plays the server half of the command
// stream protocol: it tracks each connected client's subscriptions and
// the permits it has granted, and exposes PushCommand for a test to
// hand a command to whichever client subscribed to it.
type NatsBridge struct {
	nc    *nats.Conn
	store *EventStore

	mu            sync.Mutex
	subscribers   map[string]string // command name -> client inbox
	clientPermits map[string]int64  // client id -> permits outstanding

	subs []*nats.Subscription
}

// NewNatsBridge wires store to nc's "axoncmd.eventstore.*" subjects and
// "axoncmd.commands" subject.
func NewNatsBridge(nc *nats.Conn, store *EventStore) (*NatsBridge, error) {
	b := &NatsBridge{
		nc:            nc,
		store:         store,
		subscribers:   make(map[string]string),
		clientPermits: make(map[string]int64),
	}

	loadSub, err := nc.Subscribe("axoncmd.eventstore.load", b.handleLoad)
	if err != nil {
		return nil, err
	}
	appendSub, err := nc.Subscribe("axoncmd.eventstore.append", b.handleAppend)
	if err != nil {
		return nil, err
	}
	commandsSub, err := nc.Subscribe("axoncmd.commands", b.handleClientMessage)
	if err != nil {
		return nil, err
	}

	b.subs = []*nats.Subscription{loadSub, appendSub, commandsSub}
	return b, nil
}

// Close unsubscribes the bridge from every subject it registered.
func (b *NatsBridge) Close() {
	for _, sub := range b.subs {
		sub.Unsubscribe()
	}
}

type loadEventsRequest struct {
	AggregateID string `json:"aggregate_id"`
}

type loadEventsResponse struct {
	Events []wire.Event `json:"events"`
	Error  string       `json:"error,omitempty"`
}

func (b *NatsBridge) handleLoad(msg *nats.Msg) {
	var req loadEventsRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		b.respondLoad(msg, loadEventsResponse{Error: err.Error()})
		return
	}
	events, err := b.store.LoadEvents(context.Background(), req.AggregateID)
	if err != nil {
		b.respondLoad(msg, loadEventsResponse{Error: err.Error()})
		return
	}
	b.respondLoad(msg, loadEventsResponse{Events: events})
}

func (b *NatsBridge) respondLoad(msg *nats.Msg, resp loadEventsResponse) {
	data, _ := json.Marshal(resp)
	msg.Respond(data)
}

type appendEventsRequest struct {
	AggregateID     string       `json:"aggregate_id"`
	ExpectedLastSeq int64        `json:"expected_last_seq"`
	Events          []wire.Event `json:"events"`
}

type appendEventsResponse struct {
	Conflict bool   `json:"conflict"`
	Error    string `json:"error,omitempty"`
}

func (b *NatsBridge) handleAppend(msg *nats.Msg) {
	var req appendEventsRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		b.respondAppend(msg, appendEventsResponse{Error: err.Error()})
		return
	}

	err := b.store.AppendEvents(context.Background(), req.AggregateID, req.ExpectedLastSeq, req.Events)
	if err == nil {
		b.respondAppend(msg, appendEventsResponse{})
		return
	}

	var conflict *ConcurrencyConflictError
	b.respondAppend(msg, appendEventsResponse{
		Conflict: errors.As(err, &conflict),
		Error:    err.Error(),
	})
}

func (b *NatsBridge) respondAppend(msg *nats.Msg, resp appendEventsResponse) {
	data, _ := json.Marshal(resp)
	msg.Respond(data)
}

// handleClientMessage processes a client's Subscribe/FlowControl/
// CommandResponse traffic, published with its private inbox as the
// reply-to subject.
func (b *NatsBridge) handleClientMessage(msg *nats.Msg) {
	var outbound wire.CommandProviderOutbound
	if err := json.Unmarshal(msg.Data, &outbound); err != nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	switch {
	case outbound.Subscribe != nil:
		b.subscribers[outbound.Subscribe.Command] = msg.Reply
		b.clientPermits[outbound.Subscribe.ClientId] = 0
	case outbound.FlowControl != nil:
		b.clientPermits[outbound.FlowControl.ClientId] += outbound.FlowControl.Permits
	case outbound.CommandResponse != nil:
		// Nothing to do: in this fake, responses are observed by the
		// test directly from the client side, the way an end-to-end
		// test naturally would.
	}
}

// PushCommand delivers cmd to whichever client subscribed to
// cmd.Name. It neither checks nor decrements that client's tracked
// permits. It returns an error if no client has subscribed to the
// command yet.
func (b *NatsBridge) PushCommand(cmd wire.Command) error {
	b.mu.Lock()
	inbox, ok := b.subscribers[cmd.Name]
	b.mu.Unlock()
	if !ok {
		return errNoSubscriber(cmd.Name)
	}

	inbound := wire.CommandProviderInbound{Command: &cmd}
	data, err := json.Marshal(inbound)
	if err != nil {
		return err
	}
	return b.nc.Publish(inbox, data)
}

type errNoSubscriber string

func (e errNoSubscriber) Error() string {
	return "no client subscribed to command " + string(e)
}
