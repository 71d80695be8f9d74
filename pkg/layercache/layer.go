package layercache

import (
	"sync"

	"github.com/matzehuels/layerview/pkg/geometry"
	"github.com/matzehuels/layerview/pkg/observability"
)

// Source builds the geometry of individual layers.
// [*geometry.ProjectSource] is the production implementation.
type Source interface {
	BuildLayer(i int) *geometry.LayerGeometry
	LayerCount() int
}

// LayerCache memoizes per-layer geometry for one project at a time.
type LayerCache struct {
	mu      sync.RWMutex
	src     Source
	gen     uint64
	entries map[int]*geometry.LayerGeometry
}

// New returns an empty cache building from src. src may be nil, in which case
// the cache behaves as an empty project until [LayerCache.Reset] binds one.
func New(src Source) *LayerCache {
	return &LayerCache{
		src:     src,
		entries: make(map[int]*geometry.LayerGeometry),
	}
}

// GetOrBuild returns the cached geometry of layer i, building and storing it
// on a miss. The build runs without holding the lock. Indices outside the
// bound project yield an empty geometry that is not stored.
func (c *LayerCache) GetOrBuild(i int) *geometry.LayerGeometry {
	c.mu.RLock()
	g, ok := c.entries[i]
	src, gen := c.src, c.gen
	c.mu.RUnlock()

	if ok {
		observability.Cache().OnCacheHit(observability.CacheLayer, i)
		return g
	}
	if src == nil || i < 0 || i >= src.LayerCount() {
		return &geometry.LayerGeometry{Index: i}
	}
	observability.Cache().OnCacheMiss(observability.CacheLayer, i)

	built := src.BuildLayer(i)

	c.mu.Lock()
	if c.gen != gen {
		// Reloaded while building: the result belongs to the old project.
		c.mu.Unlock()
		return built
	}
	if existing, ok := c.entries[i]; ok {
		c.mu.Unlock()
		return existing
	}
	c.entries[i] = built
	c.mu.Unlock()

	observability.Cache().OnCacheSet(observability.CacheLayer, i, len(built.Vertices))
	return built
}

// Lookup returns the cached geometry of layer i without building it.
func (c *LayerCache) Lookup(i int) (*geometry.LayerGeometry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	g, ok := c.entries[i]
	return g, ok
}

// Contains reports whether layer i is cached.
func (c *LayerCache) Contains(i int) bool {
	_, ok := c.Lookup(i)
	return ok
}

// Len returns the number of cached layers.
func (c *LayerCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// LayerCount returns the number of layers in the bound project.
func (c *LayerCache) LayerCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.src == nil {
		return 0
	}
	return c.src.LayerCount()
}

// Generation returns the current generation. It advances on Clear and Reset.
func (c *LayerCache) Generation() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.gen
}

// Clear drops every entry.
func (c *LayerCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.entries = make(map[int]*geometry.LayerGeometry)
}

// Reset drops every entry and binds the cache to src in one step.
func (c *LayerCache) Reset(src Source) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.src = src
	c.entries = make(map[int]*geometry.LayerGeometry)
}
