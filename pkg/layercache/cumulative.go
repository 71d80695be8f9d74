package layercache

import (
	"slices"
	"sort"
	"sync"

	"github.com/matzehuels/layerview/pkg/geometry"
	"github.com/matzehuels/layerview/pkg/observability"
)

// DefaultCapacity is the number of cumulative meshes kept by default.
const DefaultCapacity = 100

// CumulativeCache is a bounded map from top layer to merged geometry.
//
// When full, inserting key k evicts the key farthest from k. Because keys are
// kept sorted, the farthest key is always the first or the last one; on a tie
// the lower key goes.
type CumulativeCache struct {
	mu       sync.RWMutex
	capacity int
	gen      uint64
	entries  map[int]*geometry.CumulativeGeometry
	keys     []int // sorted ascending, mirrors entries
}

// NewCumulative returns an empty cache holding at most capacity entries.
// A capacity below 1 selects [DefaultCapacity].
func NewCumulative(capacity int) *CumulativeCache {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	return &CumulativeCache{
		capacity: capacity,
		entries:  make(map[int]*geometry.CumulativeGeometry, capacity),
		keys:     make([]int, 0, capacity),
	}
}

// Get returns the geometry cached for top.
func (c *CumulativeCache) Get(top int) (*geometry.CumulativeGeometry, bool) {
	c.mu.RLock()
	g, ok := c.entries[top]
	c.mu.RUnlock()

	if ok {
		observability.Cache().OnCacheHit(observability.CacheCumulative, top)
	} else {
		observability.Cache().OnCacheMiss(observability.CacheCumulative, top)
	}
	return g, ok
}

// Contains reports whether top is cached without reporting a hit or miss.
func (c *CumulativeCache) Contains(top int) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.entries[top]
	return ok
}

// Nearest returns the cached geometry with the greatest key strictly below
// top.
func (c *CumulativeCache) Nearest(top int) (*geometry.CumulativeGeometry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	i := sort.SearchInts(c.keys, top)
	if i == 0 {
		return nil, false
	}
	return c.entries[c.keys[i-1]], true
}

// Put stores g under top, evicting the farthest entry if the cache is full.
// An existing entry for top is kept.
func (c *CumulativeCache) Put(top int, g *geometry.CumulativeGeometry) {
	c.mu.Lock()
	evicted, stored := c.putLocked(top, g)
	c.mu.Unlock()
	c.report(top, g, evicted, stored)
}

// PutIfGeneration stores g only if the cache has not been cleared since gen
// was read from [CumulativeCache.Generation]. It reports whether g was
// accepted.
func (c *CumulativeCache) PutIfGeneration(gen uint64, top int, g *geometry.CumulativeGeometry) bool {
	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return false
	}
	evicted, stored := c.putLocked(top, g)
	c.mu.Unlock()
	c.report(top, g, evicted, stored)
	return true
}

func (c *CumulativeCache) putLocked(top int, g *geometry.CumulativeGeometry) (evicted []int, stored bool) {
	if _, ok := c.entries[top]; ok {
		return nil, false
	}
	for len(c.keys) >= c.capacity {
		victim := c.farthestLocked(top)
		delete(c.entries, victim)
		c.keys = slices.DeleteFunc(c.keys, func(k int) bool { return k == victim })
		evicted = append(evicted, victim)
	}
	i := sort.SearchInts(c.keys, top)
	c.keys = slices.Insert(c.keys, i, top)
	c.entries[top] = g
	return evicted, true
}

// farthestLocked returns the key with the largest distance from top.
func (c *CumulativeCache) farthestLocked(top int) int {
	lo, hi := c.keys[0], c.keys[len(c.keys)-1]
	if abs(hi-top) > abs(lo-top) {
		return hi
	}
	return lo
}

func (c *CumulativeCache) report(top int, g *geometry.CumulativeGeometry, evicted []int, stored bool) {
	hooks := observability.Cache()
	for _, k := range evicted {
		hooks.OnCacheEvict(observability.CacheCumulative, k)
	}
	if stored {
		hooks.OnCacheSet(observability.CacheCumulative, top, len(g.Vertices))
	}
}

// Len returns the number of cached entries.
func (c *CumulativeCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.keys)
}

// Cap returns the configured capacity.
func (c *CumulativeCache) Cap() int { return c.capacity }

// Keys returns a sorted copy of the cached keys.
func (c *CumulativeCache) Keys() []int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.keys)
}

// Generation returns the current generation. It advances on Clear.
func (c *CumulativeCache) Generation() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.gen
}

// Clear drops every entry.
func (c *CumulativeCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.entries = make(map[int]*geometry.CumulativeGeometry, c.capacity)
	c.keys = c.keys[:0]
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
