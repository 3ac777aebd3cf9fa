// Package playlist is the playlist-download feature module: it queues
// download jobs for the backend and tracks their client-side state.
package playlist

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/vk/modboot/internal/module"
	"github.com/vk/modboot/internal/registry"
)

// ID is the canonical identifier of this module.
const ID = "feature/playlist"

// Register installs the module factory.
func Register(f *registry.Factories) {
	f.Register(ID, func(deps registry.FactoryDeps) (module.Module, error) {
		limit := 50
		if v, ok := deps.Options["queue_limit"].(int64); ok && v > 0 {
			limit = int(v)
		}
		return &Downloader{limit: limit}, nil
	})
}

// Job is one queued playlist download.
type Job struct {
	URL    string
	Format string
}

// Downloader queues playlist download jobs.
type Downloader struct {
	limit int

	mu    sync.Mutex
	queue []Job

	initialized atomic.Bool
}

// Initialize implements module.Module.
func (d *Downloader) Initialize(ctx context.Context) error {
	d.initialized.Store(true)
	return nil
}

// IsInitialized implements module.Initializable.
func (d *Downloader) IsInitialized() bool {
	return d.initialized.Load()
}

// Enqueue adds a job, rejecting when the queue is full.
func (d *Downloader) Enqueue(job Job) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.queue) >= d.limit {
		return fmt.Errorf("download queue full (%d jobs)", d.limit)
	}
	d.queue = append(d.queue, job)
	return nil
}

// Pending returns the number of queued jobs.
func (d *Downloader) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue)
}

// Cleanup implements module.Cleaner, dropping any queued jobs.
func (d *Downloader) Cleanup() {
	d.mu.Lock()
	d.queue = nil
	d.mu.Unlock()
}
