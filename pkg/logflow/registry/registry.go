// Package registry maps component type names to constructors.
//
// Type names are matched case-insensitively so that "REPLICATING" and
// "replicating" select the same selector, as configuration files written
// for the original agent commonly use either form.
package registry

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	lferrors "github.com/randalmurphal/logflow/pkg/logflow/errors"
)

// Registry is a thread-safe registry of values keyed by type name.
type Registry[V any] struct {
	mu      sync.RWMutex
	entries map[string]V
}

// New creates a new empty registry.
func New[V any]() *Registry[V] {
	return &Registry[V]{
		entries: make(map[string]V),
	}
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Register adds or replaces the value for name.
func (r *Registry[V]) Register(name string, value V) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[normalize(name)] = value
}

// Get returns the value for name and whether it exists.
func (r *Registry[V]) Get(name string) (V, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.entries[normalize(name)]
	return v, ok
}

// Lookup returns the value for name, or an error wrapping
// ErrUnknownType that lists the known names.
func (r *Registry[V]) Lookup(name string) (V, error) {
	if v, ok := r.Get(name); ok {
		return v, nil
	}
	var zero V
	return zero, fmt.Errorf("%w %q (known: %s)",
		lferrors.ErrUnknownType, name, strings.Join(r.Names(), ", "))
}

// Has returns true if name is registered.
func (r *Registry[V]) Has(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// Names returns all registered names in sorted order.
func (r *Registry[V]) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entries))
	for k := range r.entries {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered names.
func (r *Registry[V]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
