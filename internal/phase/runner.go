package phase

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/vk/modboot/internal/ctxlog"
	"github.com/vk/modboot/internal/depgraph"
	"github.com/vk/modboot/internal/fallback"
	"github.com/vk/modboot/internal/module"
	"github.com/vk/modboot/internal/registry"
)

// LoadFn loads one module through the full cache/retry/timeout pipeline.
type LoadFn func(ctx context.Context, id string) (module.Module, error)

// Runner executes phases strictly sequentially. Within a phase, modules are
// dispatched in dependency-aware order up to the phase's concurrency limit;
// completion order is unconstrained.
type Runner struct {
	Graph     *depgraph.Graph
	Fallbacks *fallback.Factory
	Registry  *registry.Registry
	Load      LoadFn

	// Descriptor returns the (lazily created) descriptor for an id.
	Descriptor func(id string) *module.Descriptor
	// ModuleRequired reports whether the module itself is marked required.
	// Effective requiredness is the conjunction with the phase flag.
	ModuleRequired func(id string) bool

	mu      sync.Mutex
	phases  []Phase
	states  []State
	current int
}

// Current reports the name and index of the phase being executed, along with
// the total count. Before the first phase it reports index -1.
func (r *Runner) Current() (name string, index, count int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current < 0 || r.current >= len(r.phases) {
		return "", r.current, len(r.phases)
	}
	return r.phases[r.current].Name, r.current, len(r.phases)
}

// PhaseStates returns a copy of the per-phase states.
func (r *Runner) PhaseStates() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]State, len(r.states))
	copy(out, r.states)
	return out
}

// Run executes all phases in order. It stops at the first aborted phase,
// returning the results accumulated so far together with an ErrPhaseAborted.
func (r *Runner) Run(ctx context.Context, phases []Phase) ([]Result, error) {
	logger := ctxlog.FromContext(ctx)

	r.mu.Lock()
	r.phases = phases
	r.states = make([]State, len(phases))
	r.current = -1
	r.mu.Unlock()

	results := make([]Result, 0, len(phases))
	for i, p := range phases {
		r.mu.Lock()
		r.current = i
		r.states[i] = InProgress
		r.mu.Unlock()

		logger.Info("Phase starting.", "phase", p.Name, "modules", len(p.ModuleIDs), "required", p.Required)
		res := r.runPhase(ctx, p)
		results = append(results, res)

		r.mu.Lock()
		r.states[i] = res.State
		r.mu.Unlock()

		logger.Info("Phase finished.",
			"phase", p.Name, "state", res.State.String(),
			"loaded", len(res.Loaded), "fallback", len(res.Fallback), "failed", len(res.Failed))

		if res.State == Aborted {
			return results, &ErrPhaseAborted{Phase: p.Name, Cause: res.Err}
		}
	}
	return results, nil
}

// RunPhase executes a single ad-hoc phase outside the tracked sequence. Batch
// loads use it to get phase semantics without advancing the phase index.
func (r *Runner) RunPhase(ctx context.Context, p Phase) Result {
	return r.runPhase(ctx, p)
}

// runPhase loads every module of one phase and derives the phase's terminal
// state from the per-module outcomes.
func (r *Runner) runPhase(ctx context.Context, p Phase) Result {
	logger := ctxlog.FromContext(ctx)

	limit := int64(p.ConcurrencyLimit)
	if limit <= 0 {
		limit = int64(len(p.ModuleIDs))
		if limit == 0 {
			limit = 1
		}
	}
	sem := semaphore.NewWeighted(limit)

	ordered := r.Graph.OrderWithinPhase(ctx, p.ModuleIDs)

	var wg sync.WaitGroup
	var mu sync.Mutex
	outcomes := make(map[string]module.State, len(ordered))
	var rootCause error

	for _, id := range ordered {
		if err := sem.Acquire(ctx, 1); err != nil {
			// Context canceled; everything not yet dispatched is a failure.
			mu.Lock()
			outcomes[id] = module.StateFailed
			if rootCause == nil {
				rootCause = err
			}
			mu.Unlock()
			continue
		}

		if unmet := r.Graph.Unmet(id, func(dep string) bool {
			_, ok := r.Registry.Lookup(dep)
			return ok
		}); len(unmet) > 0 {
			// Soft dependencies: warn and load anyway.
			logger.Warn("Loading module with unmet declared dependencies.", "moduleID", id, "unmet", unmet)
		}

		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			defer sem.Release(1)

			state, err := r.loadOne(ctx, id)
			mu.Lock()
			outcomes[id] = state
			if err != nil && state == module.StateFailed && rootCause == nil && r.effectiveRequired(p, id) {
				rootCause = err
			}
			mu.Unlock()
		}(id)
	}
	wg.Wait()

	return r.summarize(p, ordered, outcomes, rootCause)
}

// loadOne drives a single module to a terminal descriptor state: loaded on
// success, fallback when a stand-in exists, failed otherwise.
func (r *Runner) loadOne(ctx context.Context, id string) (module.State, error) {
	logger := ctxlog.FromContext(ctx)
	desc := r.Descriptor(id)

	mod, err := r.Load(ctx, id)
	if err == nil {
		if initErr := initialize(ctx, mod); initErr != nil {
			logger.Error("Module loaded but failed to initialize.", "moduleID", id, "error", initErr)
			err = fmt.Errorf("initialize %s: %w", id, initErr)
			mod = nil
		}
	}

	if err == nil {
		r.Registry.Install(id, mod, false)
		desc.SetState(module.StateLoaded)
		return module.StateLoaded, nil
	}

	if fb := r.Fallbacks.Create(ctx, id); fb != nil {
		if initErr := initialize(ctx, fb); initErr != nil {
			// A stand-in that cannot initialize is useless; treat as failed.
			logger.Error("Fallback failed to initialize.", "moduleID", id, "error", initErr)
			desc.SetState(module.StateFailed)
			return module.StateFailed, err
		}
		r.Registry.Install(id, fb, true)
		desc.SetState(module.StateFallback)
		return module.StateFallback, err
	}

	desc.SetState(module.StateFailed)
	return module.StateFailed, err
}

// initialize runs the module's Initialize contract unless it already reports
// itself initialized. Units lacking the optional IsInitialized are
// initialized unconditionally.
func initialize(ctx context.Context, m module.Module) error {
	if init, ok := m.(module.Initializable); ok && init.IsInitialized() {
		return nil
	}
	return m.Initialize(ctx)
}

func (r *Runner) effectiveRequired(p Phase, id string) bool {
	if !p.Required {
		return false
	}
	if r.ModuleRequired == nil {
		return true
	}
	return r.ModuleRequired(id)
}

func (r *Runner) summarize(p Phase, ordered []string, outcomes map[string]module.State, rootCause error) Result {
	res := Result{Phase: p.Name}
	aborted := false
	degraded := false

	for _, id := range ordered {
		switch outcomes[id] {
		case module.StateLoaded:
			res.Loaded = append(res.Loaded, id)
		case module.StateFallback:
			res.Fallback = append(res.Fallback, id)
			degraded = true
		case module.StateFailed:
			res.Failed = append(res.Failed, id)
			if r.effectiveRequired(p, id) {
				aborted = true
			}
		}
	}
	sort.Strings(res.Loaded)
	sort.Strings(res.Fallback)
	sort.Strings(res.Failed)

	switch {
	case aborted:
		res.State = Aborted
		if rootCause == nil {
			rootCause = fmt.Errorf("required module failed in phase '%s'", p.Name)
		}
		res.Err = rootCause
	case degraded:
		res.State = Degraded
	default:
		res.State = Completed
	}
	return res
}
