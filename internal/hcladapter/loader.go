// Package hcladapter is the HCL implementation of the config.Loader
// interface. It parses `module` and `phase` blocks from one or more manifest
// files or directories and translates them into the format-agnostic model.
package hcladapter

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	"github.com/vk/modboot/internal/config"
	"github.com/vk/modboot/internal/ctxlog"
	"github.com/vk/modboot/internal/fsutil"
	"github.com/vk/modboot/internal/module"
)

// Loader parses HCL manifests.
type Loader struct{}

// NewLoader creates a new HCL manifest loader.
func NewLoader() *Loader {
	return &Loader{}
}

// moduleBlock mirrors a `module "id" { ... }` block.
type moduleBlock struct {
	ID        string        `hcl:"id,label"`
	Category  string        `hcl:"category,optional"`
	DependsOn []string      `hcl:"depends_on,optional"`
	Required  *bool         `hcl:"required,optional"`
	Source    string        `hcl:"source,optional"`
	Fallback  bool          `hcl:"fallback,optional"`
	Options   *optionsBlock `hcl:"options,block"`
}

// optionsBlock captures free-form attributes under `options { ... }`.
type optionsBlock struct {
	Remain hcl.Body `hcl:",remain"`
}

// phaseBlock mirrors a `phase "name" { ... }` block.
type phaseBlock struct {
	Name        string   `hcl:"name,label"`
	Modules     []string `hcl:"modules"`
	Required    *bool    `hcl:"required,optional"`
	Concurrency int      `hcl:"concurrency,optional"`
}

// fileRoot decodes all top-level blocks of one manifest file.
type fileRoot struct {
	Modules []*moduleBlock `hcl:"module,block"`
	Phases  []*phaseBlock  `hcl:"phase,block"`
	Remain  hcl.Body       `hcl:",remain"`
}

// Load parses every .hcl file under the given paths and merges them into one
// manifest. Phase declaration order across files follows lexical file order.
func (l *Loader) Load(ctx context.Context, paths ...string) (*config.Manifest, error) {
	logger := ctxlog.FromContext(ctx)

	files, err := l.findManifestFiles(paths)
	if err != nil {
		return nil, err
	}
	logger.Debug("Discovered manifest files.", "count", len(files))

	manifest := &config.Manifest{Modules: make(map[string]*config.ModuleDef)}
	parser := hclparse.NewParser()

	for _, file := range files {
		hclFile, diags := parser.ParseHCLFile(file)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to parse manifest %s: %w", file, diags)
		}

		var root fileRoot
		if diags := gohcl.DecodeBody(hclFile.Body, nil, &root); diags.HasErrors() {
			return nil, fmt.Errorf("failed to decode manifest %s: %w", file, diags)
		}

		for _, mb := range root.Modules {
			def, err := l.translateModule(mb)
			if err != nil {
				return nil, fmt.Errorf("manifest %s: %w", file, err)
			}
			if _, dup := manifest.Modules[def.ID]; dup {
				return nil, fmt.Errorf("manifest %s: duplicate module block '%s'", file, def.ID)
			}
			manifest.Modules[def.ID] = def
		}
		for _, pb := range root.Phases {
			manifest.Phases = append(manifest.Phases, l.translatePhase(pb))
		}
	}

	if err := manifest.Validate(); err != nil {
		return nil, err
	}
	logger.Info("Manifest loaded.", "modules", len(manifest.Modules), "phases", len(manifest.Phases))
	return manifest, nil
}

func (l *Loader) translateModule(mb *moduleBlock) (*config.ModuleDef, error) {
	def := &config.ModuleDef{
		ID:        mb.ID,
		DependsOn: mb.DependsOn,
		Required:  true,
		Source:    mb.Source,
		Fallback:  mb.Fallback,
	}
	if mb.Required != nil {
		def.Required = *mb.Required
	}

	switch {
	case mb.Category != "":
		def.Category = module.Category(mb.Category)
	case strings.Contains(mb.ID, "/"):
		def.Category = module.Category(mb.ID[:strings.Index(mb.ID, "/")])
	default:
		def.Category = module.CategoryFeature
	}

	if mb.Options != nil {
		opts, err := decodeOptions(mb.Options.Remain)
		if err != nil {
			return nil, fmt.Errorf("module '%s': %w", mb.ID, err)
		}
		def.Options = opts
	}
	return def, nil
}

func (l *Loader) translatePhase(pb *phaseBlock) *config.PhaseDef {
	def := &config.PhaseDef{
		Name:        pb.Name,
		Modules:     pb.Modules,
		Required:    true,
		Concurrency: pb.Concurrency,
	}
	if pb.Required != nil {
		def.Required = *pb.Required
	}
	return def
}

// findManifestFiles accepts files and directories; directories are searched
// recursively for .hcl files. Missing paths are skipped, not errors.
func (l *Loader) findManifestFiles(paths []string) ([]string, error) {
	var all []string
	seen := make(map[string]struct{})

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("error accessing path %s: %w", path, err)
		}

		var found []string
		if info.IsDir() {
			found, err = fsutil.FindFilesByExtension(path, ".hcl")
			if err != nil {
				return nil, err
			}
		} else if filepath.Ext(path) == ".hcl" {
			found = []string{path}
		}
		for _, f := range found {
			if _, dup := seen[f]; !dup {
				all = append(all, f)
				seen[f] = struct{}{}
			}
		}
	}
	return all, nil
}
