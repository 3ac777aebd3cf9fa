// Package loadcache memoizes module load operations for the session and
// collapses concurrent requests for the same identifier into a single flight.
package loadcache

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/vk/modboot/internal/module"
)

// LoadFunc performs the actual fetch/evaluate work for one identifier.
type LoadFunc func(ctx context.Context) (module.Module, error)

// outcome is a memoized terminal result. Failures are memoized too: repeated
// calls do not silently retry, callers wanting another attempt must
// invalidate first.
type outcome struct {
	mod module.Module
	err error
}

// Cache guarantees at most one in-flight load per identifier and memoizes the
// result for the session.
type Cache struct {
	group singleflight.Group

	mu      sync.Mutex
	results map[string]outcome
	// gens invalidation counters per id. A flight only memoizes its result
	// if no invalidation happened while it was in the air.
	gens map[string]uint64
}

// New creates an empty cache.
func New() *Cache {
	return &Cache{
		results: make(map[string]outcome),
		gens:    make(map[string]uint64),
	}
}

// GetOrLoad returns the memoized result for id, joining an in-flight load if
// one exists, or starting a new one via loadFn otherwise. Identical
// concurrent calls observe the exact same result from a single execution of
// loadFn.
func (c *Cache) GetOrLoad(ctx context.Context, id string, loadFn LoadFunc) (module.Module, error) {
	c.mu.Lock()
	if res, ok := c.results[id]; ok {
		c.mu.Unlock()
		return res.mod, res.err
	}
	gen := c.gens[id]
	c.gens[id] = gen // ensure the key exists so Clear can see the flight
	c.mu.Unlock()

	v, err, _ := c.group.Do(id, func() (any, error) {
		// Re-check under the group: another flight may have memoized between
		// our miss and this execution.
		c.mu.Lock()
		if res, ok := c.results[id]; ok {
			c.mu.Unlock()
			return res.mod, res.err
		}
		c.mu.Unlock()

		mod, loadErr := loadFn(ctx)

		c.mu.Lock()
		if c.gens[id] == gen {
			c.results[id] = outcome{mod: mod, err: loadErr}
		}
		c.mu.Unlock()
		return mod, loadErr
	})
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, nil
	}
	return v.(module.Module), nil
}

// Peek returns the memoized result for id without triggering a load.
func (c *Cache) Peek(id string) (module.Module, error, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	res, ok := c.results[id]
	if !ok {
		return nil, nil, false
	}
	return res.mod, res.err, true
}

// Invalidate drops the memoized result for id so the next GetOrLoad
// re-triggers its load function. An in-flight load is detached from the key
// and allowed to finish, but its result is no longer memoized.
func (c *Cache) Invalidate(id string) {
	c.group.Forget(id)
	c.mu.Lock()
	delete(c.results, id)
	c.gens[id]++
	c.mu.Unlock()
}

// Clear drops every memoized result.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.results = make(map[string]outcome)
	ids := make([]string, 0, len(c.gens))
	for id := range c.gens {
		c.gens[id]++
		ids = append(ids, id)
	}
	c.mu.Unlock()

	for _, id := range ids {
		c.group.Forget(id)
	}
}
