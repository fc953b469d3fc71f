package authplugin

import (
	"fmt"
	"sort"
	"sync"

	"meridian-hq/oagw/pkg/credentials"
)

// Registry maps plugin names to constructors.
type Registry struct {
	mu           sync.RWMutex
	constructors map[string]Constructor
}

// NewRegistry creates a registry with the built-in plugins registered.
func NewRegistry() *Registry {
	r := &Registry{constructors: make(map[string]Constructor)}
	r.MustRegister("noop", newNoop)
	r.MustRegister("api-key", newAPIKey)
	return r
}

// Register adds a constructor under name. Registering a taken name fails.
func (r *Registry) Register(name string, ctor Constructor) error {
	if name == "" {
		return fmt.Errorf("plugin name must not be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.constructors[name]; ok {
		return fmt.Errorf("plugin %q already registered", name)
	}
	r.constructors[name] = ctor
	return nil
}

// MustRegister is Register that panics on error, for init-time wiring.
func (r *Registry) MustRegister(name string, ctor Constructor) {
	if err := r.Register(name, ctor); err != nil {
		panic(err)
	}
}

// Known reports whether a constructor is registered under name.
func (r *Registry) Known(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.constructors[name]
	return ok
}

// Names returns the registered plugin names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.constructors))
	for name := range r.constructors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New constructs a plugin instance by name.
func (r *Registry) New(name string, config map[string]any, creds credentials.Reader) (Plugin, error) {
	r.mu.RLock()
	ctor, ok := r.constructors[name]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown auth plugin: %q", name)
	}

	plugin, err := ctor(config, creds)
	if err != nil {
		return nil, fmt.Errorf("auth plugin %q: %w", name, err)
	}
	return plugin, nil
}
