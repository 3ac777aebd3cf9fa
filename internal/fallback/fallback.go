// Package fallback synthesizes minimal, contract-compatible stand-ins for
// critical modules whose real implementation failed to load, so dependents
// never observe a missing registry entry.
package fallback

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/vk/modboot/internal/ctxlog"
	"github.com/vk/modboot/internal/module"
)

// Builder constructs a stand-in for one module id.
type Builder func() module.Module

// Factory holds the table of identifiers for which a stand-in exists.
type Factory struct {
	mu       sync.RWMutex
	builders map[string]Builder
}

// New creates an empty factory.
func New() *Factory {
	return &Factory{builders: make(map[string]Builder)}
}

// Register installs a custom stand-in builder for id, replacing any previous
// one.
func (f *Factory) Register(id string, build Builder) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.builders[id] = build
}

// RegisterStub installs the generic minimal stand-in for id: Initialize
// resolves immediately, every other contractual entry point is a no-op.
func (f *Factory) RegisterStub(id string) {
	f.Register(id, func() module.Module { return &Stub{ID: id} })
}

// Has reports whether a stand-in is defined for id.
func (f *Factory) Has(id string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, ok := f.builders[id]
	return ok
}

// Create synthesizes a stand-in for id, or returns nil when none is defined,
// in which case the failure stays a hard failure.
func (f *Factory) Create(ctx context.Context, id string) module.Module {
	f.mu.RLock()
	build, ok := f.builders[id]
	f.mu.RUnlock()
	if !ok {
		return nil
	}
	ctxlog.FromContext(ctx).Warn("Synthesizing fallback implementation.", "moduleID", id)
	return build()
}

// IDs returns the identifiers with a defined stand-in.
func (f *Factory) IDs() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	ids := make([]string, 0, len(f.builders))
	for id := range f.builders {
		ids = append(ids, id)
	}
	return ids
}

// Stub is the generic degraded stand-in. It satisfies the full optional
// module contract and tags itself as degraded for diagnostics.
type Stub struct {
	ID string

	initialized atomic.Bool
}

// Initialize implements module.Module; it resolves immediately.
func (s *Stub) Initialize(ctx context.Context) error {
	s.initialized.Store(true)
	return nil
}

// IsInitialized implements module.Initializable.
func (s *Stub) IsInitialized() bool {
	return s.initialized.Load()
}

// Cleanup implements module.Cleaner as a no-op.
func (s *Stub) Cleanup() {}

// Degraded implements module.Degraded.
func (s *Stub) Degraded() bool { return true }
