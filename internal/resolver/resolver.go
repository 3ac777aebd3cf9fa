// Package resolver normalizes requested module identifiers into canonical
// "category/name" form, independent of caller-relative syntax.
package resolver

import (
	"sort"
	"strings"
	"sync"

	"github.com/vk/modboot/internal/module"
)

// Resolver maps requested identifiers to canonical ones using a static
// name -> category table. Resolution never fails; identifiers that match
// nothing are passed through unchanged and remembered as unresolved so the
// diagnostics reporter can surface them.
type Resolver struct {
	categories map[string]module.Category

	mu         sync.Mutex
	unresolved map[string]struct{}
}

// New creates a resolver over the given name -> category table.
func New(categories map[string]module.Category) *Resolver {
	if categories == nil {
		categories = make(map[string]module.Category)
	}
	return &Resolver{
		categories: categories,
		unresolved: make(map[string]struct{}),
	}
}

// Resolve returns the canonical identifier for a requested one. Rules, in
// priority order: an already-canonical "category/name" id is returned
// unchanged; a bare or relative name found in the category table becomes
// "category/name"; anything else is returned as-is and flagged unresolved.
func (r *Resolver) Resolve(requested string) string {
	name := strings.TrimSpace(requested)
	// Strip relative prefixes callers tend to use.
	for strings.HasPrefix(name, "./") || strings.HasPrefix(name, "../") {
		name = strings.TrimPrefix(name, "./")
		name = strings.TrimPrefix(name, "../")
	}

	if cat, rest, ok := splitCanonical(name); ok {
		if module.ValidCategory(module.Category(cat)) && rest != "" {
			return name
		}
	}

	base := name
	if idx := strings.LastIndex(base, "/"); idx >= 0 {
		base = base[idx+1:]
	}
	if cat, ok := r.categories[base]; ok {
		return string(cat) + "/" + base
	}

	r.mu.Lock()
	r.unresolved[requested] = struct{}{}
	r.mu.Unlock()
	return name
}

// Category returns the category of a canonical identifier, or CategoryFeature
// when the identifier carries no recognizable category prefix.
func (r *Resolver) Category(canonical string) module.Category {
	if cat, _, ok := splitCanonical(canonical); ok {
		c := module.Category(cat)
		if module.ValidCategory(c) {
			return c
		}
	}
	return module.CategoryFeature
}

// Unresolved returns the sorted set of identifiers that passed through
// resolution without matching anything.
func (r *Resolver) Unresolved() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.unresolved))
	for id := range r.unresolved {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func splitCanonical(id string) (category, name string, ok bool) {
	idx := strings.Index(id, "/")
	if idx <= 0 || idx == len(id)-1 {
		return "", "", false
	}
	return id[:idx], id[idx+1:], true
}
