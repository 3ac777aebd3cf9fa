// Package research is the academic-search feature module: it builds search
// queries for the backend's scholarly indexes.
package research

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync/atomic"

	"github.com/vk/modboot/internal/module"
	"github.com/vk/modboot/internal/registry"
)

// ID is the canonical identifier of this module.
const ID = "feature/research"

// Register installs the module factory.
func Register(f *registry.Factories) {
	f.Register(ID, func(deps registry.FactoryDeps) (module.Module, error) {
		s := &Search{endpoint: "https://api.crossref.org/works"}
		if v, ok := deps.Options["endpoint"].(string); ok && v != "" {
			s.endpoint = v
		}
		return s, nil
	})
}

// Search builds queries against the configured scholarly endpoint.
type Search struct {
	endpoint string

	initialized atomic.Bool
}

// Initialize implements module.Module, validating the configured endpoint.
func (s *Search) Initialize(ctx context.Context) error {
	u, err := url.Parse(s.endpoint)
	if err != nil {
		return fmt.Errorf("invalid endpoint: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid endpoint scheme '%s'", u.Scheme)
	}
	s.initialized.Store(true)
	return nil
}

// IsInitialized implements module.Initializable.
func (s *Search) IsInitialized() bool {
	return s.initialized.Load()
}

// QueryURL returns the request URL for a free-text query.
func (s *Search) QueryURL(query string) string {
	q := url.Values{}
	q.Set("query", strings.TrimSpace(query))
	return s.endpoint + "?" + q.Encode()
}
