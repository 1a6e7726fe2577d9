package conductor

import (
	"fmt"
	"sync"
)

// Registry stores component descriptors keyed by name. It is append-only for
// the lifetime of the process: components register once at startup and are
// never unregistered. A Registry is explicitly owned by the orchestrator it
// is passed to, so independent orchestrator instances (for example in tests)
// never share state.
type Registry struct {
	mu          sync.RWMutex
	descriptors map[string]*Descriptor
	order       []string
}

// NewRegistry creates an empty component registry.
func NewRegistry() *Registry {
	return &Registry{
		descriptors: make(map[string]*Descriptor),
	}
}

// Register adds a descriptor to the registry with status Registered.
// Registering a name that already exists fails and leaves the registry
// unchanged.
func (r *Registry) Register(d *Descriptor) error {
	if d == nil || d.Name == "" {
		return ErrComponentNameEmpty
	}
	if d.Factory == nil {
		return fmt.Errorf("%w: %s", ErrComponentFactoryNil, d.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.descriptors[d.Name]; exists {
		return fmt.Errorf("%w: %s", ErrComponentAlreadyRegistered, d.Name)
	}

	d.setStatus(StatusRegistered)
	r.descriptors[d.Name] = d
	r.order = append(r.order, d.Name)
	return nil
}

// Get returns the descriptor for the named component.
func (r *Registry) Get(name string) (*Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, exists := r.descriptors[name]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrComponentNotFound, name)
	}
	return d, nil
}

// List returns all descriptors in registration order.
func (r *Registry) List() []*Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*Descriptor, 0, len(r.order))
	for _, name := range r.order {
		result = append(result, r.descriptors[name])
	}
	return result
}

// Len returns the number of registered components.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}
