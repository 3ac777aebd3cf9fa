// Package scriptsource loads module implementations from external bodies: a
// Go source file fetched from disk or over HTTP and evaluated with the yaegi
// interpreter. It is the load path that gives the fetch/evaluation/contract
// error classes their full meaning.
//
// A script declares its entry points as plain functions in package main:
//
//	func Initialize(ctx context.Context) error { ... }
//	func Cleanup()                              // optional
//
// A script without Initialize is treated as already-initialized, per the
// module contract.
package scriptsource

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"

	"github.com/vk/modboot/internal/ctxlog"
	"github.com/vk/modboot/internal/loader"
	"github.com/vk/modboot/internal/module"
)

// Source fetches and evaluates script-backed modules.
type Source struct {
	client *http.Client
	// locate maps a canonical module id to its body location (file path or
	// http/https URL).
	locate func(id string) (string, bool)
}

// New creates a script source. The locate function comes from the manifest.
func New(locate func(id string) (string, bool)) *Source {
	return &Source{
		client: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		locate: locate,
	}
}

// Fetch implements loader.Source.
func (s *Source) Fetch(ctx context.Context, id string) (module.Module, error) {
	location, ok := s.locate(id)
	if !ok {
		return nil, loader.NewError(loader.KindFetch, id, fmt.Errorf("no source location for module"))
	}

	body, err := s.fetchBody(ctx, location)
	if err != nil {
		return nil, loader.NewError(loader.KindFetch, id, err)
	}
	ctxlog.FromContext(ctx).Debug("Fetched module body.", "moduleID", id, "location", location, "bytes", len(body))

	return evaluate(id, body)
}

// fetchBody retrieves the script text from a URL or the local filesystem.
func (s *Source) fetchBody(ctx context.Context, location string) (string, error) {
	if strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://") {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
		if err != nil {
			return "", err
		}
		resp, err := s.client.Do(req)
		if err != nil {
			return "", err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return "", fmt.Errorf("unexpected status %d fetching %s", resp.StatusCode, location)
		}
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}

	data, err := os.ReadFile(location)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// evaluate interprets the script and extracts its contractual entry points.
func evaluate(id, body string) (module.Module, error) {
	i := interp.New(interp.Options{})
	if err := i.Use(stdlib.Symbols); err != nil {
		return nil, loader.NewError(loader.KindEvaluation, id, err)
	}
	if _, err := i.Eval(body); err != nil {
		return nil, loader.NewError(loader.KindEvaluation, id, err)
	}

	mod := &scriptModule{id: id}

	if v, err := i.Eval("main.Initialize"); err == nil {
		fn, ok := v.Interface().(func(context.Context) error)
		if !ok {
			return nil, loader.NewError(loader.KindContract, id,
				fmt.Errorf("Initialize has type %T, want func(context.Context) error", v.Interface()))
		}
		mod.init = fn
	} else {
		// No Initialize entry point: the unit is treated as
		// already-initialized.
		mod.initialized.Store(true)
	}

	if v, err := i.Eval("main.Cleanup"); err == nil {
		if fn, ok := v.Interface().(func()); ok {
			mod.cleanup = fn
		} else {
			return nil, loader.NewError(loader.KindContract, id,
				fmt.Errorf("Cleanup has type %T, want func()", v.Interface()))
		}
	}

	return mod, nil
}

// scriptModule adapts evaluated entry points to the module contract.
type scriptModule struct {
	id      string
	init    func(context.Context) error
	cleanup func()

	initialized atomic.Bool
}

// Initialize implements module.Module.
func (m *scriptModule) Initialize(ctx context.Context) error {
	if m.init == nil {
		m.initialized.Store(true)
		return nil
	}
	if err := m.init(ctx); err != nil {
		return err
	}
	m.initialized.Store(true)
	return nil
}

// IsInitialized implements module.Initializable.
func (m *scriptModule) IsInitialized() bool {
	return m.initialized.Load()
}

// Cleanup implements module.Cleaner.
func (m *scriptModule) Cleanup() {
	if m.cleanup != nil {
		m.cleanup()
	}
}
