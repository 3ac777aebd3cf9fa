// Package fileproc is the file-processing feature module. It validates and
// stages files dropped into a working directory and records finished work in
// the shared history module when one is present.
package fileproc

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"

	"github.com/vk/modboot/internal/module"
	"github.com/vk/modboot/internal/registry"
	"github.com/vk/modboot/modules/history"
)

// ID is the canonical identifier of this module.
const ID = "feature/fileproc"

// Register installs the module factory.
func Register(f *registry.Factories) {
	f.Register(ID, func(deps registry.FactoryDeps) (module.Module, error) {
		p := &Processor{registry: deps.Registry, workDir: os.TempDir()}
		if v, ok := deps.Options["work_dir"].(string); ok && v != "" {
			p.workDir = v
		}
		return p, nil
	})
}

// Processor stages files for server-side processing.
type Processor struct {
	registry *registry.Registry
	workDir  string

	initialized atomic.Bool
}

// Initialize implements module.Module, ensuring the working directory exists.
func (p *Processor) Initialize(ctx context.Context) error {
	if err := os.MkdirAll(p.workDir, 0o755); err != nil {
		return fmt.Errorf("create work dir: %w", err)
	}
	p.initialized.Store(true)
	return nil
}

// IsInitialized implements module.Initializable.
func (p *Processor) IsInitialized() bool {
	return p.initialized.Load()
}

// Process validates that path exists and records the task. The actual
// transformation is performed server-side; this module only stages.
func (p *Processor) Process(ctx context.Context, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", path)
	}
	p.record(path)
	return nil
}

// record appends to the history module when it is available. History is a
// soft collaborator; its absence is not an error.
func (p *Processor) record(descriptor string) {
	if p.registry == nil {
		return
	}
	if m, ok := p.registry.Lookup(history.ID); ok {
		if h, ok := m.(*history.History); ok {
			h.Record("fileproc", descriptor)
		}
	}
}
