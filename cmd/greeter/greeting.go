package main

import (
	"encoding/json"
	"fmt"

	"github.com/plaenen/axoncmd/pkg/aggregate"
)

// greetingProjection is the smallest possible worked example: an
// aggregate that can be greeted exactly once.
type greetingProjection struct {
	ID      string
	Message string
	Greeted bool
}

func emptyGreeting() greetingProjection { return greetingProjection{} }

// createGreetingCommand is the payload of a "CreateGreeting" command.
// ID is the aggregate identifier the handler resolves through
// Context.GetProjection; the wire command itself carries none.
type createGreetingCommand struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}

// greetingCreatedEvent is the payload of a "GreetingCreated" event.
type greetingCreatedEvent struct {
	Message string `json:"message"`
}

func decodeJSON[T any](data []byte) (T, error) {
	var v T
	err := json.Unmarshal(data, &v)
	return v, err
}

var errAlreadyGreeted = fmt.Errorf("this greeting has already been created")

func newGreetingDefinition(store aggregate.EventStore, cacheCapacity int) (*aggregate.Definition[greetingProjection], error) {
	def, err := aggregate.NewDefinition("Greeting", emptyGreeting, cacheCapacity, store)
	if err != nil {
		return nil, err
	}

	err = aggregate.InsertSourcingFunc(def, "GreetingCreated",
		decodeJSON[greetingCreatedEvent],
		func(e greetingCreatedEvent, p greetingProjection) (greetingProjection, error) {
			p.Message = e.Message
			p.Greeted = true
			return p, nil
		})
	if err != nil {
		return nil, fmt.Errorf("register sourcing handler: %w", err)
	}

	handleCreate := func(cmd createGreetingCommand, ctx *aggregate.Context[greetingProjection]) error {
		projection, err := ctx.GetProjection(cmd.ID)
		if err != nil {
			return err
		}
		if projection.Greeted {
			return errAlreadyGreeted
		}
		payload, err := json.Marshal(greetingCreatedEvent{Message: cmd.Message})
		if err != nil {
			return fmt.Errorf("encode GreetingCreated: %w", err)
		}
		ctx.Emit("GreetingCreated", payload, func(p greetingProjection) greetingProjection {
			p.Message = cmd.Message
			p.Greeted = true
			return p
		})
		ctx.Respond(serializedOK())
		return nil
	}

	if err := insertCommandHandler(def, "CreateGreeting", handleCreate); err != nil {
		return nil, fmt.Errorf("register command handler: %w", err)
	}

	return def, nil
}
