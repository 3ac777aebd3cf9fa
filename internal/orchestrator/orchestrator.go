// Package orchestrator is the externally consumed surface of the module
// loading core. It ties the resolver, cache, loader, dependency graph, phase
// runner, fallback factory, recovery watchdog and diagnostics reporter into
// one object and owns the descriptor table shared by all of them.
package orchestrator

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/vk/modboot/internal/ctxlog"
	"github.com/vk/modboot/internal/depgraph"
	"github.com/vk/modboot/internal/diagnostics"
	"github.com/vk/modboot/internal/fallback"
	"github.com/vk/modboot/internal/loadcache"
	"github.com/vk/modboot/internal/loader"
	"github.com/vk/modboot/internal/module"
	"github.com/vk/modboot/internal/phase"
	"github.com/vk/modboot/internal/recovery"
	"github.com/vk/modboot/internal/registry"
	"github.com/vk/modboot/internal/resolver"
)

// Config assembles an Orchestrator. Zero-value collaborators are replaced
// with fresh instances so tests can inject only what they care about.
type Config struct {
	// Source selects the loader source for a canonical id. Required.
	Source func(id string) loader.Source
	// ModuleRequired reports whether a module is individually marked
	// required. Defaults to required for every module.
	ModuleRequired func(id string) bool

	Registry  *registry.Registry
	Fallbacks *fallback.Factory
	Graph     *depgraph.Graph
	Resolver  *resolver.Resolver

	LoadOptions      loader.Options
	RecoveryDeadline time.Duration
	Notifier         recovery.Notifier
	SlowThreshold    time.Duration
}

// Orchestrator drives the full load sequence and answers status queries.
type Orchestrator struct {
	resolver  *resolver.Resolver
	cache     *loadcache.Cache
	loader    *loader.Loader
	graph     *depgraph.Graph
	fallbacks *fallback.Factory
	registry  *registry.Registry
	runner    *phase.Runner
	recovery  *recovery.Manager
	reporter  *diagnostics.Reporter

	sourceFor func(id string) loader.Source

	mu          sync.Mutex
	descriptors map[string]*module.Descriptor

	initialized atomic.Bool

	// baseCtx carries the logger for work that outlives a single call, such
	// as late post-timeout results.
	baseCtx atomic.Pointer[context.Context]
}

// New wires an orchestrator from cfg.
func New(cfg Config) *Orchestrator {
	if cfg.Source == nil {
		panic("orchestrator: Config.Source is required")
	}
	if cfg.Registry == nil {
		cfg.Registry = registry.New()
	}
	if cfg.Fallbacks == nil {
		cfg.Fallbacks = fallback.New()
	}
	if cfg.Graph == nil {
		cfg.Graph = depgraph.New()
	}
	if cfg.Resolver == nil {
		cfg.Resolver = resolver.New(nil)
	}
	if cfg.SlowThreshold <= 0 {
		cfg.SlowThreshold = 2 * time.Second
	}

	o := &Orchestrator{
		resolver:    cfg.Resolver,
		cache:       loadcache.New(),
		loader:      loader.New(cfg.LoadOptions),
		graph:       cfg.Graph,
		fallbacks:   cfg.Fallbacks,
		registry:    cfg.Registry,
		sourceFor:   cfg.Source,
		descriptors: make(map[string]*module.Descriptor),
	}

	o.runner = &phase.Runner{
		Graph:          o.graph,
		Fallbacks:      o.fallbacks,
		Registry:       o.registry,
		Load:           o.loadThroughCache,
		Descriptor:     o.Descriptor,
		ModuleRequired: cfg.ModuleRequired,
	}

	o.reporter = &diagnostics.Reporter{
		RunID:         uuid.NewString(),
		StartedAt:     time.Now(),
		SlowThreshold: cfg.SlowThreshold,
		Descriptors:   o.snapshotDescriptors,
		Registry:      o.registry,
		Unresolved:    o.resolver.Unresolved,
		CurrentPhase: func() diagnostics.PhaseInfo {
			name, idx, count := o.runner.Current()
			return diagnostics.PhaseInfo{Name: name, Index: idx, Count: count}
		},
	}

	o.recovery = recovery.New(cfg.RecoveryDeadline, cfg.Notifier, o.reporter)
	o.reporter.InRecovery = o.recovery.InRecovery

	// Late post-timeout successes fill still-empty registry slots; they
	// never overwrite an installed fallback or earlier success.
	o.loader.OnLateResult(o.acceptLateResult)

	return o
}

// Registry returns the shared module registry, the hand-off surface for the
// rest of the application.
func (o *Orchestrator) Registry() *registry.Registry {
	return o.registry
}

// Descriptor returns the descriptor for a canonical id, creating it lazily on
// first reference.
func (o *Orchestrator) Descriptor(id string) *module.Descriptor {
	o.mu.Lock()
	defer o.mu.Unlock()
	if d, ok := o.descriptors[id]; ok {
		return d
	}
	d := module.NewDescriptor(id, o.resolver.Category(id), o.graph.Dependencies(id))
	o.descriptors[id] = d
	return d
}

func (o *Orchestrator) snapshotDescriptors() []*module.Descriptor {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]*module.Descriptor, 0, len(o.descriptors))
	for _, d := range o.descriptors {
		out = append(out, d)
	}
	return out
}

// loadThroughCache is the single-module pipeline: resolve -> cache ->
// loader. It is the LoadFn handed to the phase runner.
func (o *Orchestrator) loadThroughCache(ctx context.Context, id string) (module.Module, error) {
	canonical := o.resolver.Resolve(id)
	desc := o.Descriptor(canonical)
	return o.cache.GetOrLoad(ctx, canonical, func(ctx context.Context) (module.Module, error) {
		return o.loader.Load(ctx, desc, o.sourceFor(canonical), nil)
	})
}

// initialize runs the module's Initialize contract unless it already reports
// itself initialized, so cache hits are never initialized twice.
func initialize(ctx context.Context, m module.Module) error {
	if init, ok := m.(module.Initializable); ok && init.IsInitialized() {
		return nil
	}
	return m.Initialize(ctx)
}

// acceptLateResult installs a post-timeout success if its slot is still
// empty. First writer wins: an installed fallback or earlier success is
// never overwritten.
func (o *Orchestrator) acceptLateResult(id string, m module.Module) {
	ctx := context.Background()
	if p := o.baseCtx.Load(); p != nil {
		ctx = *p
	}
	logger := ctxlog.FromContext(ctx)

	if err := initialize(ctx, m); err != nil {
		logger.Warn("Late-arriving module failed to initialize, discarding.", "moduleID", id, "error", err)
		return
	}
	if o.registry.Install(id, m, false) {
		o.Descriptor(id).SetState(module.StateLoaded)
		logger.Info("Late-arriving module result installed.", "moduleID", id)
	} else {
		logger.Debug("Late-arriving module result discarded, slot already occupied.", "moduleID", id)
	}
}
