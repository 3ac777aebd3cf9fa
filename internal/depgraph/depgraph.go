// Package depgraph holds the static table of declared soft dependencies
// between modules and produces dependency-aware load orderings.
//
// Dependencies here are advisory, not enforced preconditions: a module may
// still attempt to load even if its declared dependency has not resolved.
// That relaxed policy is spelled out explicitly via Policy rather than left
// as an implicit absence of enforcement.
package depgraph

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/vk/modboot/internal/ctxlog"
)

// Policy controls how unmet declared dependencies are treated.
type Policy int

const (
	// SoftDeps orders loads by declared dependencies but never blocks a
	// module whose dependencies are unmet; unmet dependencies only produce
	// diagnostics.
	SoftDeps Policy = iota
	// StrictDeps is reserved for callers that want unmet dependencies
	// reported as errors before dispatch.
	StrictDeps
)

// Graph is a concurrency-safe adjacency table of declared dependencies.
type Graph struct {
	Policy Policy

	mu    sync.RWMutex
	nodes map[string]*node
}

type node struct {
	id         string
	deps       map[string]*node
	dependents map[string]*node
}

// New creates an empty graph with the soft-dependency policy.
func New() *Graph {
	return &Graph{Policy: SoftDeps, nodes: make(map[string]*node)}
}

// AddNode registers id in the graph. Adding an existing id is a no-op.
func (g *Graph) AddNode(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.addNodeLocked(id)
}

func (g *Graph) addNodeLocked(id string) *node {
	if n, ok := g.nodes[id]; ok {
		return n
	}
	n := &node{
		id:         id,
		deps:       make(map[string]*node),
		dependents: make(map[string]*node),
	}
	g.nodes[id] = n
	return n
}

// Declare records that id depends on each entry of dependsOn. Unknown
// dependency ids are created implicitly; a dependency on oneself is rejected.
func (g *Graph) Declare(id string, dependsOn []string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	n := g.addNodeLocked(id)
	for _, depID := range dependsOn {
		if depID == id {
			return fmt.Errorf("self-referential dependency not allowed: %s -> %s", id, id)
		}
		dep := g.addNodeLocked(depID)
		n.deps[depID] = dep
		dep.dependents[id] = n
	}
	return nil
}

// Dependencies returns the sorted declared dependencies of id.
func (g *Graph) Dependencies(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.nodes[id]
	if !ok {
		return nil
	}
	deps := make([]string, 0, len(n.deps))
	for depID := range n.deps {
		deps = append(deps, depID)
	}
	sort.Strings(deps)
	return deps
}

// Dependents returns the sorted ids that declared a dependency on id.
func (g *Graph) Dependents(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.nodes[id]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(n.dependents))
	for depID := range n.dependents {
		out = append(out, depID)
	}
	sort.Strings(out)
	return out
}

// Unmet returns the declared dependencies of id that are absent from the
// resolved set. Used for soft-dependency warnings only.
func (g *Graph) Unmet(id string, resolved func(string) bool) []string {
	var unmet []string
	for _, dep := range g.Dependencies(id) {
		if !resolved(dep) {
			unmet = append(unmet, dep)
		}
	}
	return unmet
}

// OrderWithinPhase performs a best-effort topological sort of moduleIDs,
// honoring declared dependencies restricted to ids present in the same
// phase. Cycles are broken by falling back to declaration order for the
// cyclic subset, with a diagnostic warning. The result is always a
// permutation of the input.
func (g *Graph) OrderWithinPhase(ctx context.Context, moduleIDs []string) []string {
	logger := ctxlog.FromContext(ctx)

	inPhase := make(map[string]int, len(moduleIDs))
	for i, id := range moduleIDs {
		inPhase[id] = i
	}

	// In-degree counts only edges whose both endpoints are in the phase.
	g.mu.RLock()
	indegree := make(map[string]int, len(moduleIDs))
	edges := make(map[string][]string, len(moduleIDs)) // dep -> dependents in phase
	for _, id := range moduleIDs {
		indegree[id] = 0
	}
	for _, id := range moduleIDs {
		n, ok := g.nodes[id]
		if !ok {
			continue
		}
		for depID := range n.deps {
			if _, ok := inPhase[depID]; !ok {
				continue
			}
			indegree[id]++
			edges[depID] = append(edges[depID], id)
		}
	}
	g.mu.RUnlock()

	// Kahn's algorithm; ties resolved by declaration order so the output is
	// deterministic.
	ready := make([]string, 0, len(moduleIDs))
	for _, id := range moduleIDs {
		if indegree[id] == 0 {
			ready = append(ready, id)
		}
	}

	ordered := make([]string, 0, len(moduleIDs))
	for len(ready) > 0 {
		sort.Slice(ready, func(i, j int) bool { return inPhase[ready[i]] < inPhase[ready[j]] })
		id := ready[0]
		ready = ready[1:]
		ordered = append(ordered, id)
		for _, dependent := range edges[id] {
			indegree[dependent]--
			if indegree[dependent] == 0 {
				ready = append(ready, dependent)
			}
		}
	}

	if len(ordered) < len(moduleIDs) {
		// The remainder forms at least one cycle. Dependencies are advisory,
		// so append it in declaration order rather than failing.
		var cyclic []string
		for _, id := range moduleIDs {
			if indegree[id] > 0 {
				cyclic = append(cyclic, id)
			}
		}
		logger.Warn("Dependency cycle detected within phase, falling back to declaration order for the cyclic subset.",
			"modules", cyclic)
		ordered = append(ordered, cyclic...)
	}

	return ordered
}
