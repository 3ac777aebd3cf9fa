package module

import (
	"sync"
	"sync/atomic"
	"time"
)

// State represents the lifecycle state of a module descriptor.
type State int32

const (
	// StatePending indicates the module has been referenced but no load has started.
	StatePending State = iota
	// StateLoading indicates a load attempt is currently in flight.
	StateLoading
	// StateLoaded indicates the real implementation resolved successfully.
	StateLoaded
	// StateFallback indicates a synthesized stand-in was installed after the
	// real implementation failed to load.
	StateFallback
	// StateFailed indicates the module could not be resolved at all.
	StateFailed
)

// String returns the lower-case name of the state.
func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateLoading:
		return "loading"
	case StateLoaded:
		return "loaded"
	case StateFallback:
		return "fallback"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Category classifies a module into one of the fixed load categories.
type Category string

const (
	CategoryCore        Category = "core"
	CategoryUtility     Category = "utility"
	CategoryApplication Category = "application"
	CategoryFeature     Category = "feature"
)

// ValidCategory reports whether c is one of the known categories.
func ValidCategory(c Category) bool {
	switch c {
	case CategoryCore, CategoryUtility, CategoryApplication, CategoryFeature:
		return true
	}
	return false
}

// Descriptor tracks one loadable unit through its lifecycle. Descriptors are
// created lazily on first reference and never destroyed during a session;
// state transitions pending -> loading -> {loaded | fallback | failed}, and
// may be force-reset back to pending by an explicit cache clear.
type Descriptor struct {
	// ID is the canonical identifier, stable across callers.
	ID string
	// Category is the module's load category.
	Category Category
	// DependsOn is the ordered set of declared soft dependencies.
	DependsOn []string

	// state is managed atomically; descriptors are shared between the
	// orchestrator, in-flight loads and the diagnostics reporter.
	state atomic.Int32

	mu         sync.Mutex
	retryCount int
	lastErr    error
	duration   time.Duration
}

// NewDescriptor creates a descriptor in the pending state.
func NewDescriptor(id string, category Category, dependsOn []string) *Descriptor {
	return &Descriptor{
		ID:        id,
		Category:  category,
		DependsOn: dependsOn,
	}
}

// State atomically returns the descriptor's current state.
func (d *Descriptor) State() State {
	return State(d.state.Load())
}

// SetState atomically sets the descriptor's state.
func (d *Descriptor) SetState(s State) {
	d.state.Store(int32(s))
}

// Terminal reports whether the descriptor has reached a terminal state.
func (d *Descriptor) Terminal() bool {
	switch d.State() {
	case StateLoaded, StateFallback, StateFailed:
		return true
	}
	return false
}

// RecordAttempt stores the outcome bookkeeping of a load attempt. It is
// called regardless of success or failure.
func (d *Descriptor) RecordAttempt(retries int, duration time.Duration, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.retryCount = retries
	d.duration = duration
	d.lastErr = err
}

// RetryCount returns the number of retries consumed by the last load attempt.
func (d *Descriptor) RetryCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.retryCount
}

// LastError returns the most recent load error, or nil.
func (d *Descriptor) LastError() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastErr
}

// LoadDuration returns the wall-clock duration of the last load attempt,
// including retries and backoff.
func (d *Descriptor) LoadDuration() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.duration
}

// Reset returns the descriptor to the pending state and clears attempt
// bookkeeping. Used by the explicit cache-clear operation.
func (d *Descriptor) Reset() {
	d.SetState(StatePending)
	d.mu.Lock()
	d.retryCount = 0
	d.lastErr = nil
	d.duration = 0
	d.mu.Unlock()
}
