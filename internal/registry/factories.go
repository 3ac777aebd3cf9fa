package registry

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/vk/modboot/internal/module"
)

// FactoryDeps is what a built-in module receives at construction: the shared
// registry it resolves collaborators from, and its manifest options.
type FactoryDeps struct {
	Registry *Registry
	Options  map[string]any
}

// Factory constructs a fresh instance of a built-in module.
type Factory func(deps FactoryDeps) (module.Module, error)

// Factories holds the compiled-in module constructors, keyed by canonical id.
// Built-in modules register a factory at startup; the loader consults this
// table for any module whose manifest declares no external source.
type Factories struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewFactories creates an empty factory table.
func NewFactories() *Factories {
	return &Factories{factories: make(map[string]Factory)}
}

// Register adds a factory under id. Registering the same id twice is a
// programmer error and panics, matching manifest/handler parity expectations.
func (f *Factories) Register(id string, factory Factory) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.factories[id]; exists {
		panic(fmt.Sprintf("module factory with id '%s' already registered", id))
	}
	slog.Debug("Registering module factory.", "id", id)
	f.factories[id] = factory
}

// Lookup returns the factory registered under id, if any.
func (f *Factories) Lookup(id string) (Factory, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	factory, ok := f.factories[id]
	return factory, ok
}

// IDs returns the sorted identifiers of all registered factories.
func (f *Factories) IDs() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	ids := make([]string, 0, len(f.factories))
	for id := range f.factories {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
