package app

import (
	"log/slog"
	"sync/atomic"

	"github.com/vk/modboot/internal/diagnostics"
)

// logNotifier is the recovery affordance for a headless run: it surfaces
// recovery mode through the log and an internal flag the health endpoint
// reflects. A UI frontend would supply its own Notifier instead.
type logNotifier struct {
	logger *slog.Logger
	active atomic.Bool
}

// EnterRecovery implements recovery.Notifier.
func (n *logNotifier) EnterRecovery(report *diagnostics.HealthReport) {
	n.active.Store(true)
	if report != nil {
		n.logger.Error("RECOVERY MODE: load sequence did not reach a terminal state.",
			"in_flight", report.InFlight, "failed", report.Failed, "elapsed_ms", report.ElapsedMs)
		return
	}
	n.logger.Error("RECOVERY MODE: load sequence did not reach a terminal state.")
}

// DismissRecovery implements recovery.Notifier.
func (n *logNotifier) DismissRecovery() {
	n.active.Store(false)
	n.logger.Info("Recovery mode dismissed, load sequence completed.")
}

// Active reports whether the affordance is currently shown.
func (n *logNotifier) Active() bool {
	return n.active.Load()
}
