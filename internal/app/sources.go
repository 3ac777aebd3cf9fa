package app

import (
	"context"
	"fmt"

	"github.com/vk/modboot/internal/loader"
	"github.com/vk/modboot/internal/module"
	"github.com/vk/modboot/internal/registry"
	"github.com/vk/modboot/internal/scriptsource"
)

// sourceFor selects the loader source for a module: the script source when
// the manifest declares an external body, the built-in factory table
// otherwise.
func (a *App) sourceFor(id string) loader.Source {
	if def, ok := a.manifest.Modules[id]; ok && def.Source != "" {
		return a.scriptSource()
	}
	return a.factorySource()
}

func (a *App) scriptSource() loader.Source {
	if a.scripts == nil {
		a.scripts = scriptsource.New(func(id string) (string, bool) {
			def, ok := a.manifest.Modules[id]
			if !ok || def.Source == "" {
				return "", false
			}
			return def.Source, true
		})
	}
	return a.scripts
}

// factorySource constructs built-in modules from the registered factories,
// handing each one the shared registry and its manifest options.
func (a *App) factorySource() loader.Source {
	return loader.SourceFunc(func(ctx context.Context, id string) (module.Module, error) {
		factory, ok := a.factories.Lookup(id)
		if !ok {
			return nil, loader.NewError(loader.KindFetch, id, fmt.Errorf("no factory registered"))
		}
		var options map[string]any
		if def, ok := a.manifest.Modules[id]; ok {
			options = def.Options
		}
		mod, err := factory(registry.FactoryDeps{Registry: a.registry, Options: options})
		if err != nil {
			return nil, loader.NewError(loader.KindEvaluation, id, err)
		}
		return mod, nil
	})
}
