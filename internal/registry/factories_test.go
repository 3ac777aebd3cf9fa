package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/modboot/internal/module"
)

func TestFactories_RegisterAndLookup(t *testing.T) {
	f := NewFactories()
	f.Register("core/eventbus", func(deps FactoryDeps) (module.Module, error) {
		return &fakeModule{name: "bus"}, nil
	})

	build, ok := f.Lookup("core/eventbus")
	require.True(t, ok)

	m, err := build(FactoryDeps{})
	require.NoError(t, err)
	require.NoError(t, m.Initialize(context.Background()))

	_, ok = f.Lookup("core/ghost")
	assert.False(t, ok)
}

func TestFactories_DuplicateRegistrationPanics(t *testing.T) {
	f := NewFactories()
	factory := func(deps FactoryDeps) (module.Module, error) { return &fakeModule{}, nil }

	f.Register("core/eventbus", factory)
	assert.Panics(t, func() {
		f.Register("core/eventbus", factory)
	})
}

func TestFactories_IDsSorted(t *testing.T) {
	f := NewFactories()
	factory := func(deps FactoryDeps) (module.Module, error) { return &fakeModule{}, nil }
	f.Register("utility/theme", factory)
	f.Register("core/eventbus", factory)

	assert.Equal(t, []string{"core/eventbus", "utility/theme"}, f.IDs())
}
