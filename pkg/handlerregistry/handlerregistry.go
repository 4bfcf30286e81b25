// Package handlerregistry is a generic, name-keyed table of handlers
// for a projection type P, each producing an optional wrapped result W.
// It underlies the per-aggregate command-handler tables; sourcing
// handlers live in a separate registry in package aggregate.
package handlerregistry

import "fmt"

// Handler decodes buf into a concrete payload type, applies it to
// projection, and returns an optional wrapped result.
type Handler[P any, W any] interface {
	// Name is the wire type name this handler answers to.
	Name() string
	// Handle decodes buf and applies it to projection.
	Handle(buf []byte, projection P) (*W, error)
}

// Registry is a name-keyed table of Handler[P, W].
//
// Used in this module with W = struct{} for each aggregate's command
// handlers (spec C1), which report their outcome through the aggregate
// context, so the wrapped result is always discarded. Sourcing handlers
// use aggregate.SourcingRegistry instead.
type Registry[P any, W any] struct {
	handlers map[string]Handler[P, W]
}

// New returns an empty Registry.
func New[P any, W any]() *Registry[P, W] {
	return &Registry[P, W]{handlers: make(map[string]Handler[P, W])}
}

// Insert registers h under h.Name(). It is an error to register the
// same name twice.
func (r *Registry[P, W]) Insert(h Handler[P, W]) error {
	name := h.Name()
	if _, exists := r.handlers[name]; exists {
		return fmt.Errorf("handler already registered: %s", name)
	}
	r.handlers[name] = h
	return nil
}

// Get returns the handler registered for name, or ok=false.
func (r *Registry[P, W]) Get(name string) (Handler[P, W], bool) {
	h, ok := r.handlers[name]
	return h, ok
}

// Names returns every registered handler name, in no particular order.
func (r *Registry[P, W]) Names() []string {
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	return names
}

// funcHandler adapts a decode function and an apply function into a
// Handler, the way a closure-based subscription is built in the
// upstream registry this package is modeled on.
type funcHandler[T any, P any, W any] struct {
	name    string
	decode  func([]byte) (T, error)
	apply   func(T, P) (*W, error)
}

func (f funcHandler[T, P, W]) Name() string { return f.name }

func (f funcHandler[T, P, W]) Handle(buf []byte, projection P) (*W, error) {
	payload, err := f.decode(buf)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", f.name, err)
	}
	return f.apply(payload, projection)
}

// InsertFunc registers a handler built from a decode function and an
// apply function that returns a wrapped result directly.
func InsertFunc[T any, P any, W any](r *Registry[P, W], name string, decode func([]byte) (T, error), apply func(T, P) (*W, error)) error {
	return r.Insert(funcHandler[T, P, W]{name: name, decode: decode, apply: apply})
}

// InsertIgnoringOutput registers a handler whose apply function
// returns no result of interest; Handle always reports (nil, err).
func InsertIgnoringOutput[T any, P any, W any](r *Registry[P, W], name string, decode func([]byte) (T, error), apply func(T, P) error) error {
	return r.Insert(funcHandler[T, P, W]{
		name:   name,
		decode: decode,
		apply: func(payload T, projection P) (*W, error) {
			return nil, apply(payload, projection)
		},
	})
}

// InsertWithMappedOutput registers a handler whose apply function
// returns an internal result type R, which convert then turns into the
// wrapped result W actually returned to the caller, carrying name as
// the wrapper's type_name the way the registry this package is modeled
// on does. This mirrors a handler that wants to keep its business-logic
// return type distinct from the wire-facing result type.
func InsertWithMappedOutput[T any, R any, P any, W any](r *Registry[P, W], name string, decode func([]byte) (T, error), apply func(T, P) (*R, error), convert func(typeName string, r R) (W, error)) error {
	return r.Insert(funcHandler[T, P, W]{
		name:   name,
		decode: decode,
		apply: func(payload T, projection P) (*W, error) {
			result, err := apply(payload, projection)
			if err != nil || result == nil {
				return nil, err
			}
			wrapped, err := convert(name, *result)
			if err != nil {
				return nil, err
			}
			return &wrapped, nil
		},
	})
}
