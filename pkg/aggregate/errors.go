package aggregate

import "fmt"

// Sentinel errors covering the parts of the taxonomy that carry no
// structured fields.
var (
	ErrMissingHandler     = fmt.Errorf("no command handler registered for this command name")
	ErrMissingPayload     = fmt.Errorf("command carries no payload")
	ErrMissingAggregateID = fmt.Errorf("handler emitted events without resolving an aggregate identifier")
	ErrAlreadyRegistered  = fmt.Errorf("aggregate type or command name already registered")
	ErrConflictingCommand = fmt.Errorf("command name is already routed to a different aggregate type")
)

// MissingSourcingHandlerError reports that a stored event could not be
// folded onto a projection because no sourcing handler answers to its
// type name.
type MissingSourcingHandlerError struct {
	EventType string
}

func (e *MissingSourcingHandlerError) Error() string {
	return fmt.Sprintf("no sourcing handler registered for event type %q", e.EventType)
}

// InconsistentAggregateIDError reports that a handler called
// Context.GetProjection with an aggregate identifier different from the
// one an earlier call in the same command resolved.
type InconsistentAggregateIDError struct {
	Expected, Actual string
}

func (e *InconsistentAggregateIDError) Error() string {
	return fmt.Sprintf("inconsistent aggregate identifier: expected %q, got %q", e.Expected, e.Actual)
}

// DecodeError wraps a failure to decode a command or event payload.
type DecodeError struct {
	TypeName string
	Cause    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.TypeName, e.Cause)
}

func (e *DecodeError) Unwrap() error { return e.Cause }

// PersistFailureError wraps a failed append to the event store,
// including an optimistic-concurrency rejection.
type PersistFailureError struct {
	Cause error
}

func (e *PersistFailureError) Error() string {
	return fmt.Sprintf("persist failure: %v", e.Cause)
}

func (e *PersistFailureError) Unwrap() error { return e.Cause }

// HandlerError wraps any error a command handler itself returned, as
// opposed to a framework-level routing or persistence failure.
type HandlerError struct {
	Cause error
}

func (e *HandlerError) Error() string {
	return e.Cause.Error()
}

func (e *HandlerError) Unwrap() error { return e.Cause }
