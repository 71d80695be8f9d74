package layercache

import (
	"context"
	"time"

	"github.com/matzehuels/layerview/pkg/geometry"
	"github.com/matzehuels/layerview/pkg/observability"
)

// Merger builds cumulative geometry incrementally from the two caches.
type Merger struct {
	layers     *LayerCache
	cumulative *CumulativeCache
}

// NewMerger returns a merger reading layers from layers and storing merged
// results in cumulative.
func NewMerger(layers *LayerCache, cumulative *CumulativeCache) *Merger {
	return &Merger{layers: layers, cumulative: cumulative}
}

// Layers returns the per-layer cache.
func (m *Merger) Layers() *LayerCache { return m.layers }

// Cumulative returns the cumulative cache.
func (m *Merger) Cumulative() *CumulativeCache { return m.cumulative }

// Build returns the merged geometry of layers 0..top.
//
// A cached result is returned immediately. Otherwise the nearest cached
// ancestor is copied and the layers above it are appended one by one, with
// ctx checked before each. If ctx ends, Build returns (nil, false) and stores
// nothing in the cumulative cache. The same happens when either cache is
// cleared or rebound during the merge, since the layers read so far may then
// belong to another project. A top outside the bound project also returns
// (nil, false).
func (m *Merger) Build(ctx context.Context, top int) (*geometry.CumulativeGeometry, bool) {
	gen := m.cumulative.Generation()
	layerGen := m.layers.Generation()
	if top < 0 || top >= m.layers.LayerCount() {
		return nil, false
	}

	if g, ok := m.cumulative.Get(top); ok {
		return g, true
	}

	hooks := observability.Build()
	hooks.OnBuildStart(ctx, top)
	start := time.Now()

	var acc geometry.Mesh
	from := 0
	if anc, ok := m.cumulative.Nearest(top); ok {
		acc = anc.Mesh.Clone()
		from = anc.Top + 1
	}

	for i := from; i <= top; i++ {
		if ctx.Err() != nil || m.stale(gen, layerGen) {
			hooks.OnBuildCancel(ctx, top)
			return nil, false
		}
		acc.AppendRebased(m.layers.GetOrBuild(i).Mesh)
	}
	if m.stale(gen, layerGen) {
		hooks.OnBuildCancel(ctx, top)
		return nil, false
	}

	g := &geometry.CumulativeGeometry{Top: top, Mesh: acc}
	m.cumulative.PutIfGeneration(gen, top, g)
	hooks.OnBuildComplete(ctx, top, top-from+1, time.Since(start))
	return g, true
}

// stale reports whether either cache moved past the given generations.
func (m *Merger) stale(gen, layerGen uint64) bool {
	return m.cumulative.Generation() != gen || m.layers.Generation() != layerGen
}
