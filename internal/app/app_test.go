package app_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/modboot/internal/app"
	"github.com/vk/modboot/internal/hcladapter"
	"github.com/vk/modboot/internal/phase"
)

func writeManifest(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "boot.hcl")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func testConfig(t *testing.T, manifestPath string) *app.Config {
	t.Helper()
	cfg, err := app.NewConfig(app.Config{
		ManifestPath: manifestPath,
		LogFormat:    "text",
		LogLevel:     "error",
		LoadTimeout:  2 * time.Second,
		MaxRetries:   1,
	})
	require.NoError(t, err)
	return cfg
}

func TestNewApp_RunLoadsBuiltinModules(t *testing.T) {
	manifest := writeManifest(t, `
module "core/eventbus" {}

module "application/history" {
  depends_on = ["core/eventbus"]
}

phase "core" {
  modules = ["core/eventbus"]
}

phase "application" {
  modules  = ["application/history"]
  required = false
}
`)

	var out bytes.Buffer
	a, err := app.NewApp(&out, testConfig(t, manifest), hcladapter.NewLoader())
	require.NoError(t, err)

	require.NoError(t, a.Run(context.Background()))

	for _, id := range []string{"core/eventbus", "application/history"} {
		_, ok := a.Registry().Lookup(id)
		assert.True(t, ok, id)
	}

	st := a.Orchestrator().GetStatus()
	assert.True(t, st.Initialized)
	assert.Equal(t, []string{"application/history", "core/eventbus"}, st.Loaded)
}

func TestNewApp_UnknownModuleWithFallbackDegrades(t *testing.T) {
	manifest := writeManifest(t, `
module "feature/imaginary" {
  required = false
  fallback = true
}

phase "features" {
  modules  = ["feature/imaginary"]
  required = false
}
`)

	var out bytes.Buffer
	a, err := app.NewApp(&out, testConfig(t, manifest), hcladapter.NewLoader())
	require.NoError(t, err)

	require.NoError(t, a.Run(context.Background()))

	entry, ok := a.Registry().Get("feature/imaginary")
	require.True(t, ok)
	assert.True(t, entry.Fallback)

	report := a.Orchestrator().GenerateHealthReport()
	assert.Equal(t, []string{"feature/imaginary"}, report.Fallback)
}

func TestNewApp_RequiredUnknownModuleAborts(t *testing.T) {
	manifest := writeManifest(t, `
module "core/imaginary" {}

phase "core" {
  modules = ["core/imaginary"]
}
`)

	var out bytes.Buffer
	a, err := app.NewApp(&out, testConfig(t, manifest), hcladapter.NewLoader())
	require.NoError(t, err)

	err = a.Run(context.Background())
	var aborted *phase.ErrPhaseAborted
	require.ErrorAs(t, err, &aborted)
	assert.True(t, a.Orchestrator().InRecovery())
}

func TestNewApp_ManifestErrorSurfaces(t *testing.T) {
	manifest := writeManifest(t, `
phase "core" {
  modules = ["core/ghost"]
}
`)

	var out bytes.Buffer
	_, err := app.NewApp(&out, testConfig(t, manifest), hcladapter.NewLoader())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load manifest")
}

func TestNewApp_EmptyPhasePlanIsANoOp(t *testing.T) {
	manifest := writeManifest(t, `
module "core/eventbus" {}
`)

	var out bytes.Buffer
	a, err := app.NewApp(&out, testConfig(t, manifest), hcladapter.NewLoader())
	require.NoError(t, err)

	require.NoError(t, a.Run(context.Background()))
	assert.Zero(t, a.Registry().Len())
}

func TestNewApp_ScriptBackedModule(t *testing.T) {
	script := filepath.Join(t.TempDir(), "mod.go")
	require.NoError(t, os.WriteFile(script, []byte(`
package main

import "context"

func Initialize(ctx context.Context) error { return nil }
`), 0o644))

	manifest := writeManifest(t, `
module "feature/scripted" {
  source   = "`+script+`"
  required = false
}

phase "features" {
  modules  = ["feature/scripted"]
  required = false
}
`)

	var out bytes.Buffer
	a, err := app.NewApp(&out, testConfig(t, manifest), hcladapter.NewLoader())
	require.NoError(t, err)

	require.NoError(t, a.Run(context.Background()))

	_, ok := a.Registry().Lookup("feature/scripted")
	assert.True(t, ok)
}
