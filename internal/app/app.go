// Package app wires the manifest, the built-in module factories and the
// orchestrator into a runnable application.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/vk/modboot/internal/config"
	"github.com/vk/modboot/internal/ctxlog"
	"github.com/vk/modboot/internal/depgraph"
	"github.com/vk/modboot/internal/fallback"
	"github.com/vk/modboot/internal/loader"
	"github.com/vk/modboot/internal/orchestrator"
	"github.com/vk/modboot/internal/registry"
	"github.com/vk/modboot/internal/resolver"
	"github.com/vk/modboot/internal/scriptsource"
)

// App encapsulates the application's dependencies, configuration and
// lifecycle.
type App struct {
	outW     io.Writer
	logger   *slog.Logger
	config   *Config
	manifest *config.Manifest

	factories *registry.Factories
	registry  *registry.Registry
	orch      *orchestrator.Orchestrator
	notifier  *logNotifier
	scripts   *scriptsource.Source

	httpServer *http.Server
}

// RegisterFunc installs one built-in module's factory.
type RegisterFunc func(*registry.Factories)

// NewApp is the constructor for the main application. It loads the manifest,
// registers the built-in modules and assembles the orchestrator. A nil or
// empty module list falls back to the core set.
func NewApp(outW io.Writer, appConfig *Config, manifestLoader config.Loader, moduleRegs ...RegisterFunc) (*App, error) {
	logger := newLogger(appConfig, outW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	manifest, err := manifestLoader.Load(ctx, appConfig.ManifestPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load manifest: %w", err)
	}

	factories := registry.NewFactories()
	if len(moduleRegs) == 0 {
		moduleRegs = coreModules
	}
	for _, reg := range moduleRegs {
		reg(factories)
	}
	logger.Debug("Built-in module factories registered.", "count", len(factories.IDs()))

	app := &App{
		outW:      outW,
		logger:    logger,
		config:    appConfig,
		manifest:  manifest,
		factories: factories,
		registry:  registry.New(),
		notifier:  &logNotifier{logger: logger},
	}
	app.orch = app.buildOrchestrator()
	return app, nil
}

// buildOrchestrator assembles the load pipeline from the manifest.
func (a *App) buildOrchestrator() *orchestrator.Orchestrator {
	graph := depgraph.New()
	fallbacks := fallback.New()
	for id, def := range a.manifest.Modules {
		// Declare never fails here: manifest validation already rejected
		// self-dependencies.
		_ = graph.Declare(id, def.DependsOn)
		if def.Fallback {
			fallbacks.RegisterStub(id)
		}
	}

	return orchestrator.New(orchestrator.Config{
		Source:         a.sourceFor,
		ModuleRequired: a.moduleRequired,
		Registry:       a.registry,
		Fallbacks:      fallbacks,
		Graph:          graph,
		Resolver:       resolver.New(a.manifest.CategoryTable()),
		LoadOptions: loader.Options{
			Timeout:           a.config.LoadTimeout,
			MaxRetries:        a.config.MaxRetries,
			BackoffBase:       250 * time.Millisecond,
			BackoffMultiplier: 2,
			BackoffMax:        5 * time.Second,
		},
		RecoveryDeadline: a.config.RecoveryDeadline,
		Notifier:         a.notifier,
		SlowThreshold:    a.config.SlowThreshold,
	})
}

func (a *App) moduleRequired(id string) bool {
	if def, ok := a.manifest.Modules[id]; ok {
		return def.Required
	}
	return true
}

// Orchestrator exposes the assembled orchestrator, primarily for testing.
func (a *App) Orchestrator() *orchestrator.Orchestrator {
	return a.orch
}

// Registry returns the shared module registry.
func (a *App) Registry() *registry.Registry {
	return a.registry
}
