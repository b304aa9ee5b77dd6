package adapter

import (
	"fmt"
	"slices"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Factory constructs a backend. It is called at most once per successful
// resolution.
type Factory func() (Backend, error)

// Registry maps backend identifiers to factories. The set of identifiers
// is fixed at construction; factories are registered by the backend
// packages from init.
type Registry struct {
	known map[string]struct{}

	mu        sync.Mutex
	factories map[string]Factory
	resolved  map[string]Backend
	group     singleflight.Group
}

// Default knows every bundled backend. A backend is only available when its
// package is linked into the binary.
var Default = NewRegistry(MySQL, PostgreSQL, SQLite, DuckDB)

// NewRegistry returns a registry accepting the given identifiers.
func NewRegistry(names ...string) *Registry {
	r := &Registry{
		known:     make(map[string]struct{}, len(names)),
		factories: make(map[string]Factory),
		resolved:  make(map[string]Backend),
	}
	for _, n := range names {
		r.known[n] = struct{}{}
	}
	return r
}

// Register adds a factory to the default registry.
func Register(name string, f Factory) {
	Default.Register(name, f)
}

// Register installs the factory for name, replacing any previous one. It
// panics if name is not one of the registry's identifiers.
func (r *Registry) Register(name string, f Factory) {
	if _, ok := r.known[name]; !ok {
		panic(fmt.Sprintf("adapter: Register of unknown backend %q", name))
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
	delete(r.resolved, name)
}

// Resolve returns the backend for name, constructing it on first use.
// Concurrent first calls share a single construction.
func (r *Registry) Resolve(name string) (Backend, error) {
	if _, ok := r.known[name]; !ok {
		return nil, fmt.Errorf("%w: %q (known: %v)", ErrUnknownBackend, name, r.Names())
	}

	r.mu.Lock()
	if b, ok := r.resolved[name]; ok {
		r.mu.Unlock()
		return b, nil
	}
	r.mu.Unlock()

	v, err, _ := r.group.Do(name, func() (any, error) {
		r.mu.Lock()
		if b, ok := r.resolved[name]; ok {
			r.mu.Unlock()
			return b, nil
		}
		f := r.factories[name]
		r.mu.Unlock()

		if f == nil {
			return nil, fmt.Errorf("%w: %s is not linked into this binary", ErrBackendUnavailable, name)
		}
		b, err := f()
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrBackendUnavailable, name, err)
		}

		r.mu.Lock()
		r.resolved[name] = b
		r.mu.Unlock()
		return b, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(Backend), nil
}

// Names returns the accepted identifiers in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.known))
	for n := range r.known {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// Available reports whether name resolves to a usable backend.
func (r *Registry) Available(name string) bool {
	_, err := r.Resolve(name)
	return err == nil
}
