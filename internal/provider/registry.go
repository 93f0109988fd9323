package provider

import (
	"fmt"
	"slices"
	"sync"
)

// Registry holds named providers. It is instance-based (not global):
// the application constructs one at startup and passes it by reference
// to the components that select providers per run.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
	defaultID string
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

// Register adds a provider under the given id. The first provider
// registered becomes the default unless SetDefault is called.
func (r *Registry) Register(id string, p Provider) error {
	if id == "" {
		return fmt.Errorf("provider: empty id")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.providers[id]; exists {
		return fmt.Errorf("provider: duplicate id %q", id)
	}
	r.providers[id] = p
	if r.defaultID == "" {
		r.defaultID = id
	}
	return nil
}

// SetDefault marks the provider used when a run does not name one.
func (r *Registry) SetDefault(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.providers[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNoProvider, id)
	}
	r.defaultID = id
	return nil
}

// Get returns the provider with the given id. An empty id returns the default.
func (r *Registry) Get(id string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if id == "" {
		id = r.defaultID
	}
	p, ok := r.providers[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoProvider, id)
	}
	return p, nil
}

// IDs returns all registered provider ids sorted alphabetically.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.providers))
	for id := range r.providers {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
