package aggregate

import (
	"fmt"
	"sync"
)

// Registry maps command names to the aggregate Handle responsible for
// them. Each command name routes to exactly one aggregate type; each
// aggregate type is registered at most once.
type Registry struct {
	mu         sync.RWMutex
	byAggregate map[string]Handle
	byCommand   map[string]Handle
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		byAggregate: make(map[string]Handle),
		byCommand:   make(map[string]Handle),
	}
}

// Register associates handle with every command name in commands.
// Registering the same aggregate type twice, or a command name that is
// already routed to a different aggregate type, is an error — the
// registry enforces that the command-to-aggregate mapping stays a
// function, never a relation.
func (r *Registry) Register(handle Handle, commands []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	aggregateType := handle.AggregateType()
	if _, exists := r.byAggregate[aggregateType]; exists {
		return fmt.Errorf("%w: aggregate type %q", ErrAlreadyRegistered, aggregateType)
	}
	for _, command := range commands {
		if existing, exists := r.byCommand[command]; exists && existing.AggregateType() != aggregateType {
			return fmt.Errorf("%w: command %q already routed to %q", ErrConflictingCommand, command, existing.AggregateType())
		}
	}

	r.byAggregate[aggregateType] = handle
	for _, command := range commands {
		r.byCommand[command] = handle
	}
	return nil
}

// Lookup returns the Handle registered for commandName, or ok=false.
func (r *Registry) Lookup(commandName string) (Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.byCommand[commandName]
	return h, ok
}

// CommandNames returns every command name this registry knows how to
// route, in no particular order. Used to build the stream driver's
// subscription list.
func (r *Registry) CommandNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.byCommand))
	for name := range r.byCommand {
		names = append(names, name)
	}
	return names
}
