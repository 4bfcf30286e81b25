// Package wire defines the protocol messages exchanged with the command
// and event-store server. These are plain Go structs: translating them
// to and from the server's actual wire format is the concern of the
// transport package, not this one.
package wire

import (
	"time"

	"github.com/google/uuid"
)

// SerializedObject is an opaque, named payload: a type name the
// receiving side uses to pick a deserializer, plus the raw bytes.
type SerializedObject struct {
	TypeName string
	Revision string
	Data     []byte
}

// Command is an inbound request to change the state of one aggregate.
// It carries no aggregate identifier of its own: the handler resolves
// which aggregate instance it touches — typically from a field inside
// Payload — by calling Context.GetProjection.
type Command struct {
	MessageIdentifier string
	Name              string
	Payload           SerializedObject
	MetaData          map[string]string
}

// ErrorMessage describes why a Command could not be carried out.
type ErrorMessage struct {
	Message  string
	Location string
	Details  []string
}

// CommandResponse answers a Command with either a success payload or
// an ErrorMessage. ErrorCode is set to "ERROR" on failure, mirroring
// the wire convention used by the upstream server.
type CommandResponse struct {
	MessageIdentifier string
	RequestIdentifier string
	Payload           *SerializedObject
	ErrorCode         string
	ErrorMessage      *ErrorMessage
	MetaData          map[string]string
}

// Event is a single fact appended to, or read from, an aggregate's
// event stream.
type Event struct {
	MessageIdentifier       string
	AggregateIdentifier     string
	AggregateSequenceNumber int64
	AggregateType           string
	Timestamp               time.Time
	Payload                 SerializedObject
	MetaData                map[string]string
	Snapshot                bool
}

// CommandSubscription announces that this component can handle
// commands named Command, with LoadFactor advertising relative
// routing priority to the server.
type CommandSubscription struct {
	MessageIdentifier string
	Command           string
	ClientId          string
	ComponentName     string
	LoadFactor        int32
}

// FlowControl grants the server permission to deliver up to Permits
// more commands before the client must be asked again.
type FlowControl struct {
	ClientId string
	Permits  int64
}

// CommandProviderOutbound is one message on the client->server leg of
// the bidirectional command stream.
type CommandProviderOutbound struct {
	Subscribe       *CommandSubscription
	FlowControl     *FlowControl
	CommandResponse *CommandResponse
}

// CommandProviderInbound is one message on the server->client leg of
// the bidirectional command stream.
type CommandProviderInbound struct {
	Command *Command
}

// NewMessageID returns a fresh UUID v4 suitable for any MessageIdentifier
// field on the wire.
func NewMessageID() string {
	return uuid.NewString()
}

// NewSuccessResponse builds a CommandResponse carrying a result payload.
func NewSuccessResponse(requestID string, payload *SerializedObject) CommandResponse {
	return CommandResponse{
		MessageIdentifier: NewMessageID(),
		RequestIdentifier: requestID,
		Payload:           payload,
	}
}

// NewErrorResponse builds a CommandResponse carrying an ErrorMessage,
// with ErrorCode set to the wire's generic "ERROR" code.
func NewErrorResponse(requestID, location string, err error) CommandResponse {
	return CommandResponse{
		MessageIdentifier: NewMessageID(),
		RequestIdentifier: requestID,
		ErrorCode:         "ERROR",
		ErrorMessage: &ErrorMessage{
			Message:  err.Error(),
			Location: location,
		},
	}
}

// Summary renders a short, log-friendly description of a Command,
// trimming the payload to its type name only.
func Summary(c *Command) string {
	if c == nil {
		return "<nil command>"
	}
	return c.Name + "(" + c.Payload.TypeName + ")"
}
