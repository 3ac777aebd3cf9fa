// Package config holds the format-agnostic model of the load manifest: which
// modules exist, what they declare, and how they are grouped into phases.
package config

import (
	"context"
	"fmt"
	"strings"

	"github.com/vk/modboot/internal/module"
)

// ModuleDef is the format-agnostic representation of a `module` block.
type ModuleDef struct {
	// ID is the canonical identifier, "category/name".
	ID string
	// Category is the module's load category.
	Category module.Category
	// DependsOn lists declared soft dependencies, in declaration order.
	DependsOn []string
	// Required marks the module as individually required. Defaults to true.
	Required bool
	// Source points at an external module body (file path or http/https
	// URL). Empty means the module resolves from the built-in factory table.
	Source string
	// Fallback requests a generic minimal stand-in when the real
	// implementation fails to load.
	Fallback bool
	// Options carries free-form per-module settings, handed to the module
	// on construction.
	Options map[string]any
}

// PhaseDef is the format-agnostic representation of a `phase` block.
type PhaseDef struct {
	Name        string
	Modules     []string
	Required    bool
	Concurrency int
}

// Manifest is the complete loaded configuration.
type Manifest struct {
	Modules map[string]*ModuleDef
	// Phases keep their file declaration order; phase order is load order.
	Phases []*PhaseDef
}

// Loader translates configuration files into the unified manifest model.
type Loader interface {
	Load(ctx context.Context, paths ...string) (*Manifest, error)
}

// Validate checks cross-references the decoder cannot: phases referencing
// unknown modules, unknown categories, dangling declared dependencies.
// Dangling dependencies are allowed (they are advisory) but categories and
// phase membership must line up.
func (m *Manifest) Validate() error {
	var errs []string

	for id, def := range m.Modules {
		if !module.ValidCategory(def.Category) {
			errs = append(errs, fmt.Sprintf("module '%s': unknown category '%s'", id, def.Category))
		}
		for _, dep := range def.DependsOn {
			if dep == id {
				errs = append(errs, fmt.Sprintf("module '%s': depends on itself", id))
			}
		}
	}

	seen := make(map[string]string)
	for _, p := range m.Phases {
		if p.Name == "" {
			errs = append(errs, "phase with empty name")
		}
		for _, id := range p.Modules {
			if _, ok := m.Modules[id]; !ok {
				errs = append(errs, fmt.Sprintf("phase '%s': unknown module '%s'", p.Name, id))
			}
			if prev, dup := seen[id]; dup {
				errs = append(errs, fmt.Sprintf("module '%s' assigned to both phase '%s' and phase '%s'", id, prev, p.Name))
			}
			seen[id] = p.Name
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("manifest validation failed:\n- %s", strings.Join(errs, "\n- "))
	}
	return nil
}

// CategoryTable derives the resolver's name -> category table from the
// manifest, keyed by the bare module name.
func (m *Manifest) CategoryTable() map[string]module.Category {
	table := make(map[string]module.Category, len(m.Modules))
	for id, def := range m.Modules {
		name := id
		if idx := strings.LastIndex(id, "/"); idx >= 0 {
			name = id[idx+1:]
		}
		table[name] = def.Category
	}
	return table
}
