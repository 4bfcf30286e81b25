package main

import (
	"github.com/plaenen/axoncmd/pkg/aggregate"
	"github.com/plaenen/axoncmd/pkg/handlerregistry"
	"github.com/plaenen/axoncmd/pkg/wire"
)

// insertCommandHandler registers a command handler whose business logic
// lives entirely in apply (it mutates ctx directly via Emit/Respond and
// only ever needs to report success or failure).
func insertCommandHandler[T any](def *aggregate.Definition[greetingProjection], name string, apply func(T, *aggregate.Context[greetingProjection]) error) error {
	return handlerregistry.InsertIgnoringOutput[T, *aggregate.Context[greetingProjection], struct{}](
		def.CommandHandlers(), name, decodeJSON[T], apply)
}

func serializedOK() wire.SerializedObject {
	return wire.SerializedObject{TypeName: "Ack", Data: []byte(`{"ok":true}`)}
}
