// Package history keeps a bounded, in-memory record of completed tasks for
// the other feature modules to append to and query.
package history

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vk/modboot/internal/module"
	"github.com/vk/modboot/internal/registry"
)

// ID is the canonical identifier of this module.
const ID = "application/history"

// Register installs the module factory.
func Register(f *registry.Factories) {
	f.Register(ID, func(deps registry.FactoryDeps) (module.Module, error) {
		limit := 200
		if v, ok := deps.Options["limit"].(int64); ok && v > 0 {
			limit = int(v)
		}
		return &History{limit: limit}, nil
	})
}

// Entry is one recorded task.
type Entry struct {
	Kind       string
	Descriptor string
	FinishedAt time.Time
}

// History is a bounded task log; the oldest entries are evicted first.
type History struct {
	limit int

	mu      sync.Mutex
	entries []Entry

	initialized atomic.Bool
}

// Initialize implements module.Module.
func (h *History) Initialize(ctx context.Context) error {
	h.initialized.Store(true)
	return nil
}

// IsInitialized implements module.Initializable.
func (h *History) IsInitialized() bool {
	return h.initialized.Load()
}

// Record appends an entry, evicting the oldest when over the limit.
func (h *History) Record(kind, descriptor string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = append(h.entries, Entry{Kind: kind, Descriptor: descriptor, FinishedAt: time.Now()})
	if len(h.entries) > h.limit {
		h.entries = h.entries[len(h.entries)-h.limit:]
	}
}

// Recent returns up to n entries, newest last.
func (h *History) Recent(n int) []Entry {
	h.mu.Lock()
	defer h.mu.Unlock()
	if n <= 0 || n > len(h.entries) {
		n = len(h.entries)
	}
	out := make([]Entry, n)
	copy(out, h.entries[len(h.entries)-n:])
	return out
}
