// Package recovery watches the load sequence against a single deadline and
// switches the application into a degraded, user-visible recovery mode when
// the sequence fails to reach a terminal state in time.
//
// Engaging recovery freezes nothing: loads already in flight continue and
// self-register into the registry when they finish. If the sequence later
// completes on its own, the recovery affordance is dismissed.
package recovery

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/vk/modboot/internal/ctxlog"
	"github.com/vk/modboot/internal/diagnostics"
)

// Notifier is the user-visible recovery affordance. The application supplies
// an implementation wired to whatever surface it renders on.
type Notifier interface {
	// EnterRecovery surfaces the recovery affordance along with a snapshot
	// of the stalled sequence.
	EnterRecovery(report *diagnostics.HealthReport)
	// DismissRecovery removes the affordance after a late completion.
	DismissRecovery()
}

// NopNotifier discards recovery notifications.
type NopNotifier struct{}

func (NopNotifier) EnterRecovery(*diagnostics.HealthReport) {}
func (NopNotifier) DismissRecovery()                        {}

// Manager is the watchdog. One Manager guards one orchestration run.
type Manager struct {
	deadline time.Duration
	notifier Notifier
	reporter *diagnostics.Reporter

	mu       sync.Mutex
	timer    *time.Timer
	engaged  bool
	finished bool
}

// New creates a watchdog with the given deadline. A nil notifier is replaced
// with NopNotifier.
func New(deadline time.Duration, notifier Notifier, reporter *diagnostics.Reporter) *Manager {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &Manager{
		deadline: deadline,
		notifier: notifier,
		reporter: reporter,
	}
}

// Start arms the deadline timer. It is a no-op for a non-positive deadline.
func (m *Manager) Start(ctx context.Context) {
	if m.deadline <= 0 {
		return
	}
	logger := ctxlog.FromContext(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.timer != nil || m.finished {
		return
	}
	m.timer = time.AfterFunc(m.deadline, func() {
		m.engage(logger)
	})
}

func (m *Manager) engage(logger *slog.Logger) {
	m.mu.Lock()
	if m.finished || m.engaged {
		m.mu.Unlock()
		return
	}
	m.engaged = true
	m.mu.Unlock()

	logger.Warn("Load sequence missed its deadline, entering recovery mode.", "deadline", m.deadline)
	var report *diagnostics.HealthReport
	if m.reporter != nil {
		report = m.reporter.Report()
	}
	m.notifier.EnterRecovery(report)
}

// Complete records that the sequence reached a terminal state. If recovery
// was already engaged, the affordance is dismissed; otherwise the timer is
// simply disarmed.
func (m *Manager) Complete(ctx context.Context) {
	m.mu.Lock()
	if m.finished {
		m.mu.Unlock()
		return
	}
	m.finished = true
	wasEngaged := m.engaged
	m.engaged = false
	if m.timer != nil {
		m.timer.Stop()
	}
	m.mu.Unlock()

	if wasEngaged {
		ctxlog.FromContext(ctx).Info("Load sequence completed after deadline, dismissing recovery mode.")
		m.notifier.DismissRecovery()
	}
}

// Abort engages recovery immediately, regardless of the deadline. Used when
// a required module fails with no fallback.
func (m *Manager) Abort(ctx context.Context) {
	m.mu.Lock()
	if m.finished {
		m.mu.Unlock()
		return
	}
	m.finished = true
	if m.timer != nil {
		m.timer.Stop()
	}
	alreadyEngaged := m.engaged
	m.engaged = true
	m.mu.Unlock()

	if alreadyEngaged {
		return
	}
	ctxlog.FromContext(ctx).Error("Load sequence aborted, entering recovery mode.")
	var report *diagnostics.HealthReport
	if m.reporter != nil {
		report = m.reporter.Report()
	}
	m.notifier.EnterRecovery(report)
}

// InRecovery reports whether the recovery affordance is currently surfaced.
func (m *Manager) InRecovery() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.engaged
}
