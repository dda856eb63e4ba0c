package adapter

import (
	"fmt"
	"sync"

	"dev.aicounsel.server/internal/aierrors"
)

// Registry looks up a configured Adapter instance by the name
// participants reference in config.yaml (e.g. "claude-cli", "ollama",
// "openai-hosted"). It is built once at startup and read concurrently
// by every deliberation round thereafter.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

// Register adds or replaces the adapter under its own Name().
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.Name()] = a
}

// Get returns the adapter registered under name, or a validation error
// if no such adapter was configured.
func (r *Registry) Get(name string) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[name]
	if !ok {
		return nil, aierrors.NewValidationError("adapter", fmt.Sprintf("no adapter registered for %q", name))
	}
	return a, nil
}

// Names returns every registered adapter name, for diagnostics.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	return names
}
