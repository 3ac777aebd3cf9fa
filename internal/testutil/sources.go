// Package testutil provides scripted loader sources and probes for
// exercising the load pipeline in tests.
package testutil

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vk/modboot/internal/diagnostics"
	"github.com/vk/modboot/internal/loader"
	"github.com/vk/modboot/internal/module"
)

// TestModule is a minimal real module whose Initialize is observable.
type TestModule struct {
	Name string

	initialized atomic.Bool
	InitErr     error
	CleanedUp   atomic.Bool
}

// Initialize implements module.Module.
func (m *TestModule) Initialize(ctx context.Context) error {
	if m.InitErr != nil {
		return m.InitErr
	}
	m.initialized.Store(true)
	return nil
}

// IsInitialized implements module.Initializable.
func (m *TestModule) IsInitialized() bool {
	return m.initialized.Load()
}

// Cleanup implements module.Cleaner.
func (m *TestModule) Cleanup() {
	m.CleanedUp.Store(true)
}

// CountingSource succeeds immediately and counts fetches per id.
type CountingSource struct {
	mu     sync.Mutex
	counts map[string]int
}

// NewCountingSource creates an empty counting source.
func NewCountingSource() *CountingSource {
	return &CountingSource{counts: make(map[string]int)}
}

// Fetch implements loader.Source.
func (s *CountingSource) Fetch(ctx context.Context, id string) (module.Module, error) {
	s.mu.Lock()
	s.counts[id]++
	s.mu.Unlock()
	return &TestModule{Name: id}, nil
}

// Count returns how many fetches id has seen.
func (s *CountingSource) Count(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[id]
}

// FlakySource fails the first Failures fetches per id with a retryable fetch
// error, then succeeds.
type FlakySource struct {
	Failures int

	mu       sync.Mutex
	attempts map[string]int
}

// NewFlakySource creates a source failing the first n fetches per id.
func NewFlakySource(n int) *FlakySource {
	return &FlakySource{Failures: n, attempts: make(map[string]int)}
}

// Fetch implements loader.Source.
func (s *FlakySource) Fetch(ctx context.Context, id string) (module.Module, error) {
	s.mu.Lock()
	s.attempts[id]++
	n := s.attempts[id]
	s.mu.Unlock()
	if n <= s.Failures {
		return nil, fmt.Errorf("transient failure %d for %s", n, id)
	}
	return &TestModule{Name: id}, nil
}

// Attempts returns the number of fetches id has seen.
func (s *FlakySource) Attempts(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts[id]
}

// FailingSource always fails with the given error.
type FailingSource struct {
	Err error
}

// Fetch implements loader.Source.
func (s *FailingSource) Fetch(ctx context.Context, id string) (module.Module, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	return nil, fmt.Errorf("permanent failure for %s", id)
}

// SlowSource delays each fetch by Delay, then succeeds. It ignores ctx so
// the loader's timeout race, not the source, decides the outcome.
type SlowSource struct {
	Delay time.Duration
}

// Fetch implements loader.Source.
func (s *SlowSource) Fetch(ctx context.Context, id string) (module.Module, error) {
	time.Sleep(s.Delay)
	return &TestModule{Name: id}, nil
}

// BlockingSource blocks each fetch until released.
type BlockingSource struct {
	release chan struct{}
	once    sync.Once
}

// NewBlockingSource creates a source that parks fetches until Release.
func NewBlockingSource() *BlockingSource {
	return &BlockingSource{release: make(chan struct{})}
}

// Fetch implements loader.Source.
func (s *BlockingSource) Fetch(ctx context.Context, id string) (module.Module, error) {
	<-s.release
	return &TestModule{Name: id}, nil
}

// Release unblocks all pending and future fetches.
func (s *BlockingSource) Release() {
	s.once.Do(func() { close(s.release) })
}

// ConcurrencyProbe wraps a source and tracks the peak number of simultaneous
// fetches.
type ConcurrencyProbe struct {
	Inner loader.Source
	Hold  time.Duration

	current atomic.Int64
	peak    atomic.Int64
}

// Fetch implements loader.Source.
func (p *ConcurrencyProbe) Fetch(ctx context.Context, id string) (module.Module, error) {
	cur := p.current.Add(1)
	for {
		peak := p.peak.Load()
		if cur <= peak || p.peak.CompareAndSwap(peak, cur) {
			break
		}
	}
	if p.Hold > 0 {
		time.Sleep(p.Hold)
	}
	defer p.current.Add(-1)
	return p.Inner.Fetch(ctx, id)
}

// Peak returns the maximum number of simultaneous fetches observed.
func (p *ConcurrencyProbe) Peak() int {
	return int(p.peak.Load())
}

// SpyNotifier records recovery transitions.
type SpyNotifier struct {
	mu        sync.Mutex
	entered   int
	dismissed int
	report    *diagnostics.HealthReport
}

// EnterRecovery implements recovery.Notifier.
func (n *SpyNotifier) EnterRecovery(report *diagnostics.HealthReport) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.entered++
	n.report = report
}

// DismissRecovery implements recovery.Notifier.
func (n *SpyNotifier) DismissRecovery() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.dismissed++
}

// Entered returns how many times recovery was engaged.
func (n *SpyNotifier) Entered() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.entered
}

// Dismissed returns how many times recovery was dismissed.
func (n *SpyNotifier) Dismissed() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.dismissed
}

// Report returns the snapshot captured when recovery engaged.
func (n *SpyNotifier) Report() *diagnostics.HealthReport {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.report
}
