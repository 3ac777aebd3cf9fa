package diagnostics_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/modboot/internal/diagnostics"
	"github.com/vk/modboot/internal/module"
	"github.com/vk/modboot/internal/registry"
	"github.com/vk/modboot/internal/testutil"
)

func descriptorInState(id string, s module.State) *module.Descriptor {
	d := module.NewDescriptor(id, module.CategoryFeature, nil)
	d.SetState(s)
	return d
}

func TestReport_BucketsDescriptorsByState(t *testing.T) {
	descs := []*module.Descriptor{
		descriptorInState("core/eventbus", module.StateLoaded),
		descriptorInState("utility/theme", module.StateFallback),
		descriptorInState("feature/scraper", module.StateFailed),
		descriptorInState("feature/playlist", module.StateLoading),
		descriptorInState("feature/research", module.StatePending),
	}

	r := &diagnostics.Reporter{
		RunID:       "run-1",
		StartedAt:   time.Now().Add(-time.Second),
		Descriptors: func() []*module.Descriptor { return descs },
	}

	report := r.Report()

	assert.Equal(t, "run-1", report.RunID)
	assert.GreaterOrEqual(t, report.ElapsedMs, int64(1000))
	assert.Equal(t, []string{"core/eventbus"}, report.Loaded)
	assert.Equal(t, []string{"utility/theme"}, report.Fallback)
	assert.Equal(t, []string{"feature/scraper"}, report.Failed)
	assert.Equal(t, []string{"feature/playlist", "feature/research"}, report.InFlight)
	assert.Equal(t, map[string]int{
		"loaded":   1,
		"fallback": 1,
		"failed":   1,
		"loading":  1,
		"pending":  1,
	}, report.Counts)
}

func TestReport_FlagsSlowModules(t *testing.T) {
	slow := descriptorInState("feature/scraper", module.StateLoaded)
	slow.RecordAttempt(0, 3*time.Second, nil)
	fast := descriptorInState("core/eventbus", module.StateLoaded)
	fast.RecordAttempt(0, 5*time.Millisecond, nil)

	r := &diagnostics.Reporter{
		RunID:         "run-1",
		StartedAt:     time.Now(),
		SlowThreshold: 2 * time.Second,
		Descriptors:   func() []*module.Descriptor { return []*module.Descriptor{slow, fast} },
	}

	report := r.Report()

	require.Len(t, report.SlowModules, 1)
	assert.Equal(t, "feature/scraper", report.SlowModules[0].ID)
	assert.Equal(t, int64(3000), report.SlowModules[0].DurationMs)
}

func TestReport_RegistryView(t *testing.T) {
	reg := registry.New()
	require.True(t, reg.Install("core/eventbus", &testutil.TestModule{Name: "bus"}, false))
	require.True(t, reg.Install("utility/theme", &testutil.TestModule{Name: "theme"}, true))

	r := &diagnostics.Reporter{RunID: "run-1", StartedAt: time.Now(), Registry: reg}
	report := r.Report()

	require.Len(t, report.Registry, 2)
	assert.Equal(t, diagnostics.RegistryEntry{ID: "core/eventbus", Fallback: false}, report.Registry[0])
	assert.Equal(t, diagnostics.RegistryEntry{ID: "utility/theme", Fallback: true}, report.Registry[1])
}

func TestReport_PhaseAndRecoveryViews(t *testing.T) {
	r := &diagnostics.Reporter{
		RunID:     "run-1",
		StartedAt: time.Now(),
		CurrentPhase: func() diagnostics.PhaseInfo {
			return diagnostics.PhaseInfo{Name: "features", Index: 2, Count: 4}
		},
		InRecovery: func() bool { return true },
		Unresolved: func() []string { return []string{"ghost"} },
	}

	report := r.Report()

	assert.Equal(t, "features", report.CurrentPhase)
	assert.Equal(t, 2, report.PhaseIndex)
	assert.Equal(t, 4, report.PhaseCount)
	assert.True(t, report.RecoveryMode)
	assert.Equal(t, []string{"ghost"}, report.Unresolved)
}

func TestReport_IsSideEffectFree(t *testing.T) {
	desc := descriptorInState("core/eventbus", module.StateLoaded)
	r := &diagnostics.Reporter{
		RunID:       "run-1",
		StartedAt:   time.Now(),
		Descriptors: func() []*module.Descriptor { return []*module.Descriptor{desc} },
	}

	first := r.Report()
	second := r.Report()

	assert.Equal(t, first.Loaded, second.Loaded)
	assert.Equal(t, module.StateLoaded, desc.State())
}
