package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/modboot/internal/module"
)

func validManifest() *Manifest {
	return &Manifest{
		Modules: map[string]*ModuleDef{
			"core/eventbus": {ID: "core/eventbus", Category: module.CategoryCore, Required: true},
			"utility/theme": {ID: "utility/theme", Category: module.CategoryUtility, Required: true},
		},
		Phases: []*PhaseDef{
			{Name: "core", Modules: []string{"core/eventbus"}, Required: true},
			{Name: "utilities", Modules: []string{"utility/theme"}},
		},
	}
}

func TestValidate_OK(t *testing.T) {
	assert.NoError(t, validManifest().Validate())
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(m *Manifest)
		wantMsg string
	}{
		{
			name: "unknown category",
			mutate: func(m *Manifest) {
				m.Modules["core/eventbus"].Category = "kernel"
			},
			wantMsg: "unknown category 'kernel'",
		},
		{
			name: "self dependency",
			mutate: func(m *Manifest) {
				m.Modules["core/eventbus"].DependsOn = []string{"core/eventbus"}
			},
			wantMsg: "depends on itself",
		},
		{
			name: "phase references unknown module",
			mutate: func(m *Manifest) {
				m.Phases[0].Modules = append(m.Phases[0].Modules, "core/ghost")
			},
			wantMsg: "unknown module 'core/ghost'",
		},
		{
			name: "module in two phases",
			mutate: func(m *Manifest) {
				m.Phases[1].Modules = append(m.Phases[1].Modules, "core/eventbus")
			},
			wantMsg: "assigned to both phase",
		},
		{
			name: "empty phase name",
			mutate: func(m *Manifest) {
				m.Phases[0].Name = ""
			},
			wantMsg: "phase with empty name",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			m := validManifest()
			tc.mutate(m)
			err := m.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantMsg)
		})
	}
}

func TestValidate_DanglingDependencyIsAllowed(t *testing.T) {
	m := validManifest()
	m.Modules["core/eventbus"].DependsOn = []string{"core/not-declared"}
	assert.NoError(t, m.Validate())
}

func TestCategoryTable(t *testing.T) {
	table := validManifest().CategoryTable()
	assert.Equal(t, map[string]module.Category{
		"eventbus": module.CategoryCore,
		"theme":    module.CategoryUtility,
	}, table)
}
