// Package theme persists the user's theme preference across sessions.
package theme

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/vk/modboot/internal/module"
	"github.com/vk/modboot/internal/registry"
)

// ID is the canonical identifier of this module.
const ID = "utility/theme"

// Register installs the module factory.
func Register(f *registry.Factories) {
	f.Register(ID, func(deps registry.FactoryDeps) (module.Module, error) {
		m := &Manager{current: "dark"}
		if v, ok := deps.Options["default"].(string); ok && v != "" {
			m.current = v
		}
		if v, ok := deps.Options["path"].(string); ok {
			m.path = v
		}
		return m, nil
	})
}

// Manager holds the active theme and persists changes to disk when a path is
// configured.
type Manager struct {
	path string

	mu      sync.Mutex
	current string

	initialized atomic.Bool
}

// Initialize implements module.Module, restoring a persisted preference if
// one exists.
func (m *Manager) Initialize(ctx context.Context) error {
	if m.path != "" {
		data, err := os.ReadFile(m.path)
		switch {
		case err == nil:
			if theme := strings.TrimSpace(string(data)); theme != "" {
				m.mu.Lock()
				m.current = theme
				m.mu.Unlock()
			}
		case !errors.Is(err, os.ErrNotExist):
			return err
		}
	}
	m.initialized.Store(true)
	return nil
}

// IsInitialized implements module.Initializable.
func (m *Manager) IsInitialized() bool {
	return m.initialized.Load()
}

// Current returns the active theme.
func (m *Manager) Current() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Set switches the active theme and persists it when a path is configured.
func (m *Manager) Set(theme string) error {
	m.mu.Lock()
	m.current = theme
	m.mu.Unlock()
	if m.path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(m.path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(m.path, []byte(theme+"\n"), 0o644)
}
