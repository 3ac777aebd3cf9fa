// Package eventbus provides the in-process publish/subscribe hub the feature
// modules communicate over.
package eventbus

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/vk/modboot/internal/module"
	"github.com/vk/modboot/internal/registry"
)

// ID is the canonical identifier of this module.
const ID = "core/eventbus"

// Register installs the module factory.
func Register(f *registry.Factories) {
	f.Register(ID, func(deps registry.FactoryDeps) (module.Module, error) {
		buffer := 64
		if v, ok := deps.Options["buffer"].(int64); ok && v > 0 {
			buffer = int(v)
		}
		return &Bus{buffer: buffer}, nil
	})
}

// Event is a topic-tagged payload.
type Event struct {
	Topic   string
	Payload any
}

// Bus is a minimal topic-based pub/sub hub.
type Bus struct {
	buffer int

	mu   sync.RWMutex
	subs map[string][]chan Event

	initialized atomic.Bool
	closed      atomic.Bool
}

// Initialize implements module.Module.
func (b *Bus) Initialize(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subs == nil {
		b.subs = make(map[string][]chan Event)
	}
	b.initialized.Store(true)
	return nil
}

// IsInitialized implements module.Initializable.
func (b *Bus) IsInitialized() bool {
	return b.initialized.Load()
}

// Subscribe returns a channel receiving events published to topic.
func (b *Bus) Subscribe(topic string) <-chan Event {
	ch := make(chan Event, b.buffer)
	b.mu.Lock()
	b.subs[topic] = append(b.subs[topic], ch)
	b.mu.Unlock()
	return ch
}

// Publish delivers an event to all current subscribers of its topic.
// Subscribers with full buffers are skipped rather than blocked on.
func (b *Bus) Publish(evt Event) {
	if b.closed.Load() {
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs[evt.Topic] {
		select {
		case ch <- evt:
		default:
		}
	}
}

// Cleanup implements module.Cleaner, closing all subscriber channels.
func (b *Bus) Cleanup() {
	if !b.closed.CompareAndSwap(false, true) {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, chans := range b.subs {
		for _, ch := range chans {
			close(ch)
		}
	}
	b.subs = make(map[string][]chan Event)
}
