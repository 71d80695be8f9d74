package pipeline

import (
	"context"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/matzehuels/layerview/pkg/errors"
	"github.com/matzehuels/layerview/pkg/geometry"
	"github.com/matzehuels/layerview/pkg/observability"
	"github.com/matzehuels/layerview/pkg/slice"
)

func TestSetCurrentLayerWithoutProject(t *testing.T) {
	s, rec := newTestSession(t, Options{})

	err := s.SetCurrentLayer(1)
	require.True(t, errors.Is(err, errors.ErrCodeNoProject), "got %v", err)
	require.NoError(t, s.WaitIdle(testContext(t)))
	require.Empty(t, rec.frameLayers())
}

func TestEmptyProject(t *testing.T) {
	s, rec := newTestSession(t, Options{})

	id, err := s.LoadProject(&slice.Project{Name: "empty"})
	require.NoError(t, err)

	err = s.SetCurrentLayer(1)
	require.True(t, errors.Is(err, errors.ErrCodeInvalidLayer), "got %v", err)

	require.NoError(t, s.WaitPopulated(testContext(t)))
	require.NoError(t, s.WaitIdle(testContext(t)))

	_, ok := s.Current()
	require.False(t, ok)
	require.Empty(t, rec.frameLayers())
	require.Zero(t, s.Status().Scheduler.Requested)
	require.Equal(t, []Progress{{ProjectID: id, Complete: true}}, rec.progressEvents())
}

func TestSetCurrentLayerBounds(t *testing.T) {
	s, _ := newTestSession(t, Options{ManualPopulate: true})
	_, err := s.LoadProject(synthetic(20))
	require.NoError(t, err)

	for _, n := range []int{-1, 0, 21} {
		err := s.SetCurrentLayer(n)
		require.True(t, errors.Is(err, errors.ErrCodeInvalidLayer), "layer %d: got %v", n, err)
	}
	for _, n := range []int{1, 20} {
		require.NoError(t, s.SetCurrentLayer(n))
	}
	require.NoError(t, s.WaitIdle(testContext(t)))

	f, ok := s.Current()
	require.True(t, ok)
	require.Equal(t, 20, f.Layers)
}

func TestFrameMatchesConcatenation(t *testing.T) {
	s, rec := newTestSession(t, Options{ManualPopulate: true})
	p := synthetic(20)
	id, err := s.LoadProject(p)
	require.NoError(t, err)

	require.NoError(t, s.SetCurrentLayer(5))
	require.NoError(t, s.WaitIdle(testContext(t)))

	f, ok := s.Current()
	require.True(t, ok)
	require.Equal(t, id, f.ProjectID)
	require.Equal(t, 5, f.Layers)
	require.Equal(t, []int{5}, rec.frameLayers())

	b := geometry.NewBuilder(geometry.Options{})
	var want geometry.Mesh
	for i := 0; i < 5; i++ {
		l, _ := p.Layer(i)
		want.AppendRebased(b.Build(i, l, p.LayerZ(i)).Mesh)
	}
	if diff := cmp.Diff(want, f.Geometry.Mesh); diff != "" {
		t.Errorf("frame mesh mismatch (-want +got):\n%s", diff)
	}
}

func TestSupersededRequestNotDelivered(t *testing.T) {
	s, rec := newTestSession(t, Options{ManualPopulate: true, DisablePrefetch: true})
	p := synthetic(20)
	_, err := s.LoadProject(p)
	require.NoError(t, err)
	g := gate(s, p)

	require.NoError(t, s.SetCurrentLayer(5))
	waitEntered(t, g)
	require.NoError(t, s.SetCurrentLayer(9))
	close(g.release)

	require.NoError(t, s.WaitIdle(testContext(t)))
	require.Equal(t, []int{9}, rec.frameLayers())

	f, ok := s.Current()
	require.True(t, ok)
	require.Equal(t, 9, f.Layers)
}

func TestBurstCoalesces(t *testing.T) {
	s, rec := newTestSession(t, Options{ManualPopulate: true})
	p := synthetic(50)
	_, err := s.LoadProject(p)
	require.NoError(t, err)
	g := gate(s, p)

	require.NoError(t, s.SetCurrentLayer(1))
	waitEntered(t, g)
	for n := 2; n <= 50; n++ {
		require.NoError(t, s.SetCurrentLayer(n))
	}
	require.Equal(t, "building+pending", s.Status().State)
	close(g.release)

	require.NoError(t, s.WaitIdle(testContext(t)))
	require.Equal(t, []int{50}, rec.frameLayers())

	st := s.Status().Scheduler
	require.Equal(t, 50, st.Requested)
	require.Equal(t, 2, st.Started)
	require.LessOrEqual(t, st.Completed, 2)
	require.Equal(t, 1, st.Delivered)

	// Prefetch ran one layer behind the delivered top.
	require.True(t, s.CumulativeCache().Contains(48))
}

func TestLoadingCallbacks(t *testing.T) {
	s, rec := newTestSession(t, Options{ManualPopulate: true})
	_, err := s.LoadProject(synthetic(10))
	require.NoError(t, err)

	require.NoError(t, s.SetCurrentLayer(3))
	require.NoError(t, s.WaitIdle(testContext(t)))

	require.Equal(t, []bool{true, false}, rec.loadingEvents())
	require.False(t, s.Status().Loading)
}

func TestProgressCallbacks(t *testing.T) {
	s, rec := newTestSession(t, Options{})
	id, err := s.LoadProject(synthetic(25))
	require.NoError(t, err)

	require.NoError(t, s.WaitPopulated(testContext(t)))
	require.NoError(t, s.WaitIdle(testContext(t)))

	want := []Progress{
		{ProjectID: id, Done: 10, Total: 25},
		{ProjectID: id, Done: 20, Total: 25},
		{ProjectID: id, Done: 25, Total: 25, Complete: true},
	}
	require.Equal(t, want, rec.progressEvents())
	require.Equal(t, want[2], s.Status().Progress)
	require.Equal(t, 25, s.LayerCache().Len())
}

func TestLoadProjectClearsCaches(t *testing.T) {
	s, _ := newTestSession(t, Options{ManualPopulate: true})
	ctx := testContext(t)

	_, err := s.LoadProject(synthetic(50))
	require.NoError(t, err)
	require.NoError(t, s.StartPopulation())
	require.NoError(t, s.WaitPopulated(ctx))
	require.NoError(t, s.SetCurrentLayer(50))
	require.NoError(t, s.WaitIdle(ctx))
	require.Equal(t, 50, s.LayerCache().Len())
	require.NotZero(t, s.CumulativeCache().Len())

	idB, err := s.LoadProject(synthetic(10))
	require.NoError(t, err)
	require.Zero(t, s.LayerCache().Len())
	require.Zero(t, s.CumulativeCache().Len())
	_, ok := s.Current()
	require.False(t, ok)

	require.NoError(t, s.StartPopulation())
	require.NoError(t, s.WaitPopulated(ctx))
	require.Equal(t, 10, s.LayerCache().Len())

	require.NoError(t, s.SetCurrentLayer(10))
	require.NoError(t, s.WaitIdle(ctx))
	f, ok := s.Current()
	require.True(t, ok)
	require.Equal(t, idB, f.ProjectID)
	for _, top := range s.CumulativeCache().Keys() {
		require.Less(t, top, 10)
	}
}

func TestReloadDuringPopulation(t *testing.T) {
	s, rec := newTestSession(t, Options{DisablePrefetch: true})
	ctx := testContext(t)

	_, err := s.LoadProject(synthetic(400))
	require.NoError(t, err)
	b := slice.Synthetic(slice.SyntheticOptions{Layers: 12, Parts: 2, PartSize: 7, HatchSpacing: 2})
	idB, err := s.LoadProject(b)
	require.NoError(t, err)
	require.NoError(t, s.WaitPopulated(ctx))

	require.Equal(t, 12, s.LayerCache().Len())
	want := s.builder.Bind(b)
	for i := 0; i < 12; i++ {
		got, ok := s.LayerCache().Lookup(i)
		require.True(t, ok, "layer %d not cached", i)
		if diff := cmp.Diff(want.BuildLayer(i), got); diff != "" {
			t.Fatalf("layer %d does not belong to the loaded project (-want +got):\n%s", i, diff)
		}
	}
	for _, top := range s.CumulativeCache().Keys() {
		require.Less(t, top, 12)
	}

	require.Eventually(t, func() bool {
		events := rec.progressEvents()
		if len(events) == 0 {
			return false
		}
		last := events[len(events)-1]
		return last.ProjectID == idB && last.Complete
	}, timeout, tick)
}

// reloadOnMiss loads another project when a given layer misses the cache.
type reloadOnMiss struct {
	observability.NoopCacheHooks
	once  sync.Once
	layer int
	load  func()
}

func (h *reloadOnMiss) OnCacheMiss(cache string, key int) {
	if cache == observability.CacheLayer && key == h.layer {
		h.once.Do(h.load)
	}
}

func TestBuildSyncReloadMidMerge(t *testing.T) {
	s, _ := newTestSession(t, Options{ManualPopulate: true, DisablePrefetch: true})
	_, err := s.LoadProject(synthetic(20))
	require.NoError(t, err)

	b := slice.Synthetic(slice.SyntheticOptions{Layers: 30, Parts: 2, PartSize: 7, HatchSpacing: 2})
	observability.SetCacheHooks(&reloadOnMiss{layer: 5, load: func() {
		_, err := s.LoadProject(b)
		require.NoError(t, err)
	}})
	t.Cleanup(observability.Reset)

	g, err := s.Build(context.Background(), 9)
	require.Nil(t, g, "merge spanning a reload returned geometry")
	require.True(t, errors.Is(err, errors.ErrCodeNoProject), "got %v", err)
	require.Zero(t, s.CumulativeCache().Len())

	// The new project builds normally afterwards.
	g, err = s.Build(context.Background(), 9)
	require.NoError(t, err)
	require.Equal(t, 10, g.LayerCount())
}

func TestReloadDropsInFlightFrame(t *testing.T) {
	s, rec := newTestSession(t, Options{ManualPopulate: true})
	a := synthetic(30)
	_, err := s.LoadProject(a)
	require.NoError(t, err)
	g := gate(s, a)

	require.NoError(t, s.SetCurrentLayer(20))
	waitEntered(t, g)

	_, err = s.LoadProject(synthetic(5))
	require.NoError(t, err)
	close(g.release)

	require.NoError(t, s.WaitIdle(testContext(t)))
	require.Empty(t, rec.frameLayers())
	_, ok := s.Current()
	require.False(t, ok)
	require.Zero(t, s.LayerCache().Len(), "layers built for the old project must not survive")
	require.Zero(t, s.CumulativeCache().Len())
}

func TestBuildSync(t *testing.T) {
	s, _ := newTestSession(t, Options{ManualPopulate: true})

	_, err := s.Build(context.Background(), 0)
	require.True(t, errors.Is(err, errors.ErrCodeNoProject), "got %v", err)

	_, err = s.LoadProject(synthetic(10))
	require.NoError(t, err)

	g, err := s.Build(context.Background(), 4)
	require.NoError(t, err)
	require.Equal(t, 5, g.LayerCount())

	_, err = s.Build(context.Background(), 10)
	require.True(t, errors.Is(err, errors.ErrCodeInvalidLayer), "got %v", err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.Build(ctx, 8)
	require.ErrorIs(t, err, context.Canceled)
}

func TestStatus(t *testing.T) {
	s, _ := newTestSession(t, Options{ManualPopulate: true, DisablePrefetch: true, Capacity: 8})

	st := s.Status()
	require.Equal(t, "idle", st.State)
	require.Zero(t, st.Layers)
	require.Equal(t, 8, st.MergedCapacity)

	id, err := s.LoadProject(synthetic(12))
	require.NoError(t, err)
	require.NoError(t, s.SetCurrentLayer(7))
	require.NoError(t, s.WaitIdle(testContext(t)))

	st = s.Status()
	require.Equal(t, id, st.ProjectID)
	require.Equal(t, "synthetic", st.ProjectName)
	require.Equal(t, 12, st.Layers)
	require.Equal(t, 7, st.RequestedLayer)
	require.Equal(t, 7, st.DisplayedLayer)
	require.Equal(t, 7, st.CachedLayers)
	require.False(t, st.Populating)
}

func TestCloseIdempotent(t *testing.T) {
	s, err := NewSession(Options{})
	require.NoError(t, err)
	_, err = s.LoadProject(synthetic(30))
	require.NoError(t, err)
	s.Close()
	s.Close()
	require.NoError(t, s.SetCurrentLayer(3), "requests after Close are accepted and ignored")
}

func TestNewSessionInvalidOptions(t *testing.T) {
	_, err := NewSession(Options{Capacity: -5})
	require.Error(t, err)
}
