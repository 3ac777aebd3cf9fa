// Package registry provides the shared hand-off surface between the load
// pipeline and the rest of the application.
//
// The Registry maps canonical module identifiers to their resolved
// implementations. It is the externally visible result of the whole load
// sequence: collaborators resolve each other by identifier lookup rather than
// by direct reference, so a fallback substitution is transparent to them.
//
// Entries are write-once. The first writer for an identifier wins, whether
// that writer is the loader's success path or the fallback factory; a late
// post-timeout success fills an empty slot but never overwrites an installed
// value.
package registry

import (
	"sort"
	"sync"
	"time"

	"github.com/vk/modboot/internal/module"
)

// Entry is one installed registry slot.
type Entry struct {
	Module      module.Module
	Fallback    bool
	InstalledAt time.Time
}

// Registry is a write-once mapping of canonical id -> resolved module.
// It is safe for concurrent use; reads require no coordination with the
// writer because writes are monotonic (empty -> one terminal value).
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Entry
	order   []string
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{entries: make(map[string]Entry)}
}

// Install records a resolved module under id. It returns true if the value
// was installed, false if the slot was already occupied.
func (r *Registry) Install(id string, m module.Module, fallback bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[id]; exists {
		return false
	}
	r.entries[id] = Entry{Module: m, Fallback: fallback, InstalledAt: time.Now()}
	r.order = append(r.order, id)
	return true
}

// Lookup returns the module installed under id, if any.
func (r *Registry) Lookup(id string) (module.Module, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	if !ok {
		return nil, false
	}
	return e.Module, true
}

// Get returns the full entry installed under id, if any.
func (r *Registry) Get(id string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	return e, ok
}

// Len returns the number of installed entries.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// IDs returns the sorted identifiers of all installed entries.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// InstallOrder returns identifiers in the order they were installed. The
// shutdown path walks this in reverse.
func (r *Registry) InstallOrder() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Snapshot returns a copy of all entries for diagnostics.
func (r *Registry) Snapshot() map[string]Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]Entry, len(r.entries))
	for id, e := range r.entries {
		out[id] = e
	}
	return out
}
