package aggregate

import "fmt"

// SourcingHandler folds one stored event's raw payload onto a
// projection, returning the updated projection. Unlike a command
// handler it never fails validation — by the time an event is stored
// it is a fact — but it can fail to decode.
type SourcingHandler[P any] interface {
	Name() string
	Apply(payload []byte, projection P) (P, error)
}

// SourcingRegistry is a name-keyed table of SourcingHandler, used to
// replay an aggregate's history into a projection on a cache miss.
type SourcingRegistry[P any] struct {
	handlers map[string]SourcingHandler[P]
}

// NewSourcingRegistry returns an empty SourcingRegistry.
func NewSourcingRegistry[P any]() *SourcingRegistry[P] {
	return &SourcingRegistry[P]{handlers: make(map[string]SourcingHandler[P])}
}

// Insert registers h under h.Name(). Registering the same event type
// twice is an error.
func (r *SourcingRegistry[P]) Insert(h SourcingHandler[P]) error {
	if _, exists := r.handlers[h.Name()]; exists {
		return fmt.Errorf("sourcing handler already registered: %s", h.Name())
	}
	r.handlers[h.Name()] = h
	return nil
}

// Get returns the handler registered for eventType, or ok=false.
func (r *SourcingRegistry[P]) Get(eventType string) (SourcingHandler[P], bool) {
	h, ok := r.handlers[eventType]
	return h, ok
}

type funcSourcingHandler[T any, P any] struct {
	name   string
	decode func([]byte) (T, error)
	apply  func(T, P) (P, error)
}

func (f funcSourcingHandler[T, P]) Name() string { return f.name }

func (f funcSourcingHandler[T, P]) Apply(payload []byte, projection P) (P, error) {
	value, err := f.decode(payload)
	if err != nil {
		var zero P
		return zero, fmt.Errorf("decode %s: %w", f.name, err)
	}
	return f.apply(value, projection)
}

// InsertSourcingFunc registers a sourcing handler built from a decode
// function and a fold function onto the SourcingRegistry held by def.
func InsertSourcingFunc[T any, P any](def *Definition[P], name string, decode func([]byte) (T, error), apply func(T, P) (P, error)) error {
	return def.sourcing.Insert(funcSourcingHandler[T, P]{name: name, decode: decode, apply: apply})
}
