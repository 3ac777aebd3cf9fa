// Package scraper is the web-scraping feature module: it fetches pages and
// hands extraction off to the backend, recording finished work in history.
package scraper

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/vk/modboot/internal/module"
	"github.com/vk/modboot/internal/registry"
	"github.com/vk/modboot/modules/history"
)

// ID is the canonical identifier of this module.
const ID = "feature/scraper"

// Register installs the module factory.
func Register(f *registry.Factories) {
	f.Register(ID, func(deps registry.FactoryDeps) (module.Module, error) {
		timeout := 15 * time.Second
		if v, ok := deps.Options["timeout"].(string); ok {
			parsed, err := time.ParseDuration(v)
			if err != nil {
				return nil, fmt.Errorf("invalid timeout option: %w", err)
			}
			timeout = parsed
		}
		return &Scraper{
			registry: deps.Registry,
			client: &http.Client{
				Timeout: timeout,
				Transport: &http.Transport{
					MaxIdleConns:        100,
					MaxIdleConnsPerHost: 10,
					IdleConnTimeout:     90 * time.Second,
				},
			},
		}, nil
	})
}

// Scraper fetches page bodies for extraction.
type Scraper struct {
	registry *registry.Registry
	client   *http.Client

	initialized atomic.Bool
}

// Initialize implements module.Module.
func (s *Scraper) Initialize(ctx context.Context) error {
	s.initialized.Store(true)
	return nil
}

// IsInitialized implements module.Initializable.
func (s *Scraper) IsInitialized() bool {
	return s.initialized.Load()
}

// Fetch retrieves the raw body of url.
func (s *Scraper) Fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d fetching %s", resp.StatusCode, url)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if m, ok := s.registry.Lookup(history.ID); ok {
		if h, ok := m.(*history.History); ok {
			h.Record("scrape", url)
		}
	}
	return body, nil
}

// Cleanup implements module.Cleaner.
func (s *Scraper) Cleanup() {
	s.client.CloseIdleConnections()
}
