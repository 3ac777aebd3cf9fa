package scriptsource

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/modboot/internal/loader"
	"github.com/vk/modboot/internal/module"
)

const goodScript = `
package main

import "context"

var ready bool

func Initialize(ctx context.Context) error {
	ready = true
	return nil
}

func Cleanup() {
	ready = false
}
`

func writeScript(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mod.go")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func locateAs(location string) func(string) (string, bool) {
	return func(string) (string, bool) { return location, true }
}

func TestFetch_FromFile(t *testing.T) {
	src := New(locateAs(writeScript(t, goodScript)))

	mod, err := src.Fetch(context.Background(), "feature/scripted")
	require.NoError(t, err)
	require.NotNil(t, mod)

	init, ok := mod.(module.Initializable)
	require.True(t, ok)
	assert.False(t, init.IsInitialized())

	require.NoError(t, mod.Initialize(context.Background()))
	assert.True(t, init.IsInitialized())

	cleaner, ok := mod.(module.Cleaner)
	require.True(t, ok)
	cleaner.Cleanup()
}

func TestFetch_FromHTTP(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(goodScript))
	}))
	defer server.Close()

	src := New(locateAs(server.URL + "/mod.go"))

	mod, err := src.Fetch(context.Background(), "feature/scripted")
	require.NoError(t, err)
	require.NoError(t, mod.Initialize(context.Background()))
}

func TestFetch_HTTPErrorStatusIsFetchError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer server.Close()

	src := New(locateAs(server.URL + "/mod.go"))

	_, err := src.Fetch(context.Background(), "feature/scripted")
	require.Error(t, err)
	kind, ok := loader.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, loader.KindFetch, kind)
}

func TestFetch_MissingFileIsFetchError(t *testing.T) {
	src := New(locateAs(filepath.Join(t.TempDir(), "nope.go")))

	_, err := src.Fetch(context.Background(), "feature/scripted")
	require.Error(t, err)
	kind, _ := loader.KindOf(err)
	assert.Equal(t, loader.KindFetch, kind)
}

func TestFetch_NoLocationIsFetchError(t *testing.T) {
	src := New(func(string) (string, bool) { return "", false })

	_, err := src.Fetch(context.Background(), "feature/unmapped")
	require.Error(t, err)
	kind, _ := loader.KindOf(err)
	assert.Equal(t, loader.KindFetch, kind)
}

func TestFetch_MalformedScriptIsEvaluationError(t *testing.T) {
	src := New(locateAs(writeScript(t, `package main func {{{`)))

	_, err := src.Fetch(context.Background(), "feature/broken")
	require.Error(t, err)
	kind, ok := loader.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, loader.KindEvaluation, kind)
	assert.False(t, loader.Retryable(err))
}

func TestFetch_WrongInitializeSignatureIsContractViolation(t *testing.T) {
	script := `
package main

func Initialize() {}
`
	src := New(locateAs(writeScript(t, script)))

	_, err := src.Fetch(context.Background(), "feature/misshapen")
	require.Error(t, err)
	kind, ok := loader.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, loader.KindContract, kind)
}

func TestFetch_ScriptWithoutInitializeIsAlreadyInitialized(t *testing.T) {
	script := `
package main

var x = 42
`
	src := New(locateAs(writeScript(t, script)))

	mod, err := src.Fetch(context.Background(), "feature/passive")
	require.NoError(t, err)

	init, ok := mod.(module.Initializable)
	require.True(t, ok)
	assert.True(t, init.IsInitialized())
	require.NoError(t, mod.Initialize(context.Background()))
}

func TestScriptModule_InitializeFailurePropagates(t *testing.T) {
	script := `
package main

import (
	"context"
	"errors"
)

func Initialize(ctx context.Context) error {
	return errors.New("dependency not ready")
}
`
	src := New(locateAs(writeScript(t, script)))

	mod, err := src.Fetch(context.Background(), "feature/failing")
	require.NoError(t, err)

	err = mod.Initialize(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dependency not ready")

	init, ok := mod.(module.Initializable)
	require.True(t, ok)
	assert.False(t, init.IsInitialized())
}
