package pipeline

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/matzehuels/layerview/pkg/geometry"
	"github.com/matzehuels/layerview/pkg/layercache"
	"github.com/matzehuels/layerview/pkg/slice"
)

const (
	timeout = 5 * time.Second
	tick    = time.Millisecond
)

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	t.Cleanup(cancel)
	return ctx
}

// fakeSource builds tiny one-triangle layers and counts builds.
type fakeSource struct {
	n       int
	panicAt int // -1 for never
	builds  atomic.Int64
}

func newFakeSource(n int) *fakeSource { return &fakeSource{n: n, panicAt: -1} }

func (s *fakeSource) LayerCount() int { return s.n }

func (s *fakeSource) BuildLayer(i int) *geometry.LayerGeometry {
	if i == s.panicAt {
		panic("corrupt layer")
	}
	s.builds.Add(1)
	z := float32(i)
	return &geometry.LayerGeometry{
		Index: i,
		Z:     z,
		Mesh: geometry.Mesh{
			Vertices: []geometry.Vertex{
				{Position: [3]float32{0, 0, z}},
				{Position: [3]float32{1, 0, z}},
				{Position: [3]float32{0, 1, z}},
			},
			Indices: []uint32{0, 1, 2},
		},
	}
}

// gatedSource blocks every layer build until release is closed. The first
// blocked build is announced on entered.
type gatedSource struct {
	inner   layercache.Source
	release chan struct{}
	entered chan int
}

func (g *gatedSource) LayerCount() int { return g.inner.LayerCount() }

func (g *gatedSource) BuildLayer(i int) *geometry.LayerGeometry {
	select {
	case g.entered <- i:
	default:
	}
	<-g.release
	return g.inner.BuildLayer(i)
}

// gate rebinds the session's layer cache to a gated view of p.
func gate(s *Session, p *slice.Project) *gatedSource {
	g := &gatedSource{
		inner:   s.builder.Bind(p),
		release: make(chan struct{}),
		entered: make(chan int, 1),
	}
	s.layers.Reset(g)
	return g
}

func waitEntered(t *testing.T, g *gatedSource) {
	t.Helper()
	select {
	case <-g.entered:
	case <-time.After(timeout):
		t.Fatal("build never reached the layer source")
	}
}

// recorder collects session callbacks.
type recorder struct {
	mu       sync.Mutex
	frames   []Frame
	loading  []bool
	progress []Progress
}

func (r *recorder) attach(o *Options) {
	o.OnFrame = func(f Frame) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.frames = append(r.frames, f)
	}
	o.OnLoading = func(b bool) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.loading = append(r.loading, b)
	}
	o.OnProgress = func(p Progress) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.progress = append(r.progress, p)
	}
}

func (r *recorder) frameLayers() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]int, len(r.frames))
	for i, f := range r.frames {
		out[i] = f.Layers
	}
	return out
}

func (r *recorder) loadingEvents() []bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]bool(nil), r.loading...)
}

func (r *recorder) progressEvents() []Progress {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Progress(nil), r.progress...)
}

func newTestSession(t *testing.T, opts Options) (*Session, *recorder) {
	t.Helper()
	rec := &recorder{}
	rec.attach(&opts)
	s, err := NewSession(opts)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	t.Cleanup(s.Close)
	return s, rec
}

func synthetic(layers int) *slice.Project {
	return slice.Synthetic(slice.SyntheticOptions{Layers: layers, Parts: 1, PartSize: 4, HatchSpacing: 1})
}
