package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/vk/modboot/internal/ctxlog"
	"github.com/vk/modboot/internal/diagnostics"
	"github.com/vk/modboot/internal/loader"
	"github.com/vk/modboot/internal/module"
	"github.com/vk/modboot/internal/phase"
)

// Run executes the full phase sequence. The recovery watchdog is armed when
// the sequence begins and resolved when it reaches a terminal state. An
// aborted phase surfaces as an *phase.ErrPhaseAborted and leaves the
// application in recovery mode.
func (o *Orchestrator) Run(ctx context.Context, phases []phase.Phase) ([]phase.Result, error) {
	logger := ctxlog.FromContext(ctx)
	o.baseCtx.Store(&ctx)

	// Every declared module gets its descriptor up front so diagnostics can
	// see pending work before dispatch.
	for _, p := range phases {
		for _, id := range p.ModuleIDs {
			o.Descriptor(o.resolver.Resolve(id))
		}
	}

	o.recovery.Start(ctx)
	logger.Info("Load sequence starting.", "phases", len(phases), "runID", o.reporter.RunID)

	results, err := o.runner.Run(ctx, phases)
	if err != nil {
		var aborted *phase.ErrPhaseAborted
		if errors.As(err, &aborted) {
			o.recovery.Abort(ctx)
		} else {
			o.recovery.Complete(ctx)
		}
		logger.Error("Load sequence failed.", "error", err)
		return results, err
	}

	o.recovery.Complete(ctx)
	o.initialized.Store(true)
	logger.Info("Load sequence finished.", "phases", len(results), "registry_size", o.registry.Len())
	return results, nil
}

// LoadModule loads a single module through the full cache/retry/timeout
// pipeline and installs it into the registry on success.
func (o *Orchestrator) LoadModule(ctx context.Context, id string, opts *loader.Options) (module.Module, error) {
	canonical := o.resolver.Resolve(id)
	desc := o.Descriptor(canonical)

	mod, err := o.cache.GetOrLoad(ctx, canonical, func(ctx context.Context) (module.Module, error) {
		return o.loader.Load(ctx, desc, o.sourceFor(canonical), opts)
	})
	if err != nil {
		desc.SetState(module.StateFailed)
		return nil, err
	}

	// Initialize before installing: a module that cannot initialize must
	// never become visible to dependents through the write-once registry.
	if initErr := initialize(ctx, mod); initErr != nil {
		desc.SetState(module.StateFailed)
		return nil, fmt.Errorf("initialize %s: %w", canonical, initErr)
	}

	// The slot may already be held, e.g. by a fallback installed before a
	// cache clear. First writer wins; the caller still gets the fresh,
	// initialized module.
	o.registry.Install(canonical, mod, false)
	desc.SetState(module.StateLoaded)
	return mod, nil
}

// LoadModules performs a batch load with phase semantics: modules are ordered
// by declared dependencies and loaded concurrently, failures route through
// the fallback factory. With required=true a hard failure is returned if any
// listed module resolved to neither loaded nor fallback. The result maps each
// canonical id to its resolved module, or nil for hard failures.
func (o *Orchestrator) LoadModules(ctx context.Context, ids []string, required bool) (map[string]module.Module, error) {
	canonical := make([]string, len(ids))
	for i, id := range ids {
		canonical[i] = o.resolver.Resolve(id)
	}

	res := o.runner.RunPhase(ctx, phase.Phase{
		Name:      "batch",
		ModuleIDs: canonical,
		Required:  required,
	})

	out := make(map[string]module.Module, len(canonical))
	for _, id := range canonical {
		if m, ok := o.registry.Lookup(id); ok {
			out[id] = m
		} else {
			out[id] = nil
		}
	}

	if required && res.State == phase.Aborted {
		return out, &phase.ErrPhaseAborted{Phase: res.Phase, Cause: res.Err}
	}
	return out, nil
}

// Status is the compact liveness view consumed by callers that do not need a
// full health report.
type Status struct {
	Initialized bool     `json:"initialized"`
	Loaded      []string `json:"loaded"`
	Failed      []string `json:"failed"`
}

// GetStatus reports whether the sequence completed and which modules are
// currently loaded or failed. Fallback modules are intentionally excluded
// from Loaded: degraded functionality is visible in the health report.
func (o *Orchestrator) GetStatus() Status {
	st := Status{
		Initialized: o.initialized.Load(),
		Loaded:      []string{},
		Failed:      []string{},
	}
	for _, desc := range o.snapshotDescriptors() {
		switch desc.State() {
		case module.StateLoaded:
			st.Loaded = append(st.Loaded, desc.ID)
		case module.StateFailed:
			st.Failed = append(st.Failed, desc.ID)
		}
	}
	sort.Strings(st.Loaded)
	sort.Strings(st.Failed)
	return st
}

// GenerateHealthReport returns a point-in-time snapshot of the whole load
// process.
func (o *Orchestrator) GenerateHealthReport() *diagnostics.HealthReport {
	return o.reporter.Report()
}

// InRecovery reports whether the recovery affordance is currently surfaced.
func (o *Orchestrator) InRecovery() bool {
	return o.recovery.InRecovery()
}

// ClearCache invalidates memoized load results. With no arguments the whole
// cache is dropped; otherwise only the given ids. Affected descriptors are
// reset to pending so a subsequent load triggers exactly one new attempt.
func (o *Orchestrator) ClearCache(ids ...string) {
	if len(ids) == 0 {
		o.cache.Clear()
		for _, desc := range o.snapshotDescriptors() {
			desc.Reset()
		}
		return
	}
	for _, id := range ids {
		canonical := o.resolver.Resolve(id)
		o.cache.Invalidate(canonical)
		o.Descriptor(canonical).Reset()
	}
}

// Shutdown releases resources held by loaded modules, walking the registry in
// reverse install order.
func (o *Orchestrator) Shutdown(ctx context.Context) {
	logger := ctxlog.FromContext(ctx)
	order := o.registry.InstallOrder()
	for i := len(order) - 1; i >= 0; i-- {
		id := order[i]
		m, ok := o.registry.Lookup(id)
		if !ok {
			continue
		}
		if cleaner, ok := m.(module.Cleaner); ok {
			logger.Debug("Cleaning up module.", "moduleID", id)
			cleaner.Cleanup()
		}
	}
}
