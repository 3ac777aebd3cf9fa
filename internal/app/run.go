package app

import (
	"context"
	"fmt"

	"github.com/vk/modboot/internal/ctxlog"
	"github.com/vk/modboot/internal/phase"
)

// Run executes the full load sequence described by the manifest. The health
// server, when enabled, stays up for the lifetime of the run so the load
// process can be observed while it happens.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")

	if a.config.HealthcheckPort > 0 {
		a.startHealthcheckServer(ctx)
		defer a.closeHealthcheckServer(ctx)
	}
	defer a.orch.Shutdown(ctx)

	phases := a.phasePlan()
	if len(phases) == 0 {
		a.logger.Warn("Manifest declares no phases, nothing to load.")
		return nil
	}

	a.logger.Info("Starting module load sequence.", "phases", len(phases), "modules", len(a.manifest.Modules))
	results, err := a.orch.Run(ctx, phases)
	if err != nil {
		return fmt.Errorf("load sequence failed: %w", err)
	}

	for _, res := range results {
		if res.State == phase.Degraded {
			a.logger.Warn("Phase completed degraded.", "phase", res.Phase, "fallbacks", res.Fallback)
		}
	}
	a.logger.Info("Module load sequence finished.", "registry_size", a.registry.Len())
	return nil
}

// phasePlan translates the manifest's phase definitions into the runner's
// model, preserving declaration order.
func (a *App) phasePlan() []phase.Phase {
	plan := make([]phase.Phase, 0, len(a.manifest.Phases))
	for _, def := range a.manifest.Phases {
		plan = append(plan, phase.Phase{
			Name:             def.Name,
			ModuleIDs:        def.Modules,
			Required:         def.Required,
			ConcurrencyLimit: def.Concurrency,
		})
	}
	return plan
}
