package resolver

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vk/modboot/internal/module"
)

func newTestResolver() *Resolver {
	return New(map[string]module.Category{
		"eventbus": module.CategoryCore,
		"theme":    module.CategoryUtility,
		"history":  module.CategoryApplication,
		"scraper":  module.CategoryFeature,
	})
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name      string
		requested string
		want      string
	}{
		{"canonical id passes through", "core/eventbus", "core/eventbus"},
		{"bare name gets its category", "eventbus", "core/eventbus"},
		{"relative prefix is stripped", "./theme", "utility/theme"},
		{"parent-relative prefix is stripped", "../../scraper", "feature/scraper"},
		{"path form resolves by base name", "modules/history", "application/history"},
		{"whitespace is trimmed", "  eventbus ", "core/eventbus"},
		{"unknown id passes through unchanged", "something/odd/here", "something/odd/here"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := newTestResolver()
			assert.Equal(t, tc.want, r.Resolve(tc.requested))
		})
	}
}

func TestResolve_DifferentSpellingsConverge(t *testing.T) {
	r := newTestResolver()

	canonical := r.Resolve("core/eventbus")
	assert.Equal(t, canonical, r.Resolve("eventbus"))
	assert.Equal(t, canonical, r.Resolve("./eventbus"))
	assert.Empty(t, r.Unresolved())
}

func TestResolve_TracksUnresolved(t *testing.T) {
	r := newTestResolver()

	r.Resolve("ghost")
	r.Resolve("core/eventbus")
	r.Resolve("another-ghost")
	r.Resolve("ghost")

	assert.Equal(t, []string{"another-ghost", "ghost"}, r.Unresolved())
}

func TestCategory(t *testing.T) {
	r := newTestResolver()

	assert.Equal(t, module.CategoryCore, r.Category("core/eventbus"))
	assert.Equal(t, module.CategoryUtility, r.Category("utility/theme"))
	assert.Equal(t, module.CategoryFeature, r.Category("no-category"))
	assert.Equal(t, module.CategoryFeature, r.Category("bogus/name"))
}
