package pipeline

import (
	"context"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/matzehuels/layerview/pkg/errors"
	"github.com/matzehuels/layerview/pkg/geometry"
	"github.com/matzehuels/layerview/pkg/layercache"
	"github.com/matzehuels/layerview/pkg/scheduler"
	"github.com/matzehuels/layerview/pkg/slice"
)

// buildResult tags a merged mesh with the project it was built for, so a
// frame finishing across a reload is recognised and dropped.
type buildResult struct {
	projectID string
	geometry  *geometry.CumulativeGeometry
}

// Session is one preview of one project at a time.
type Session struct {
	opts    Options
	logger  *log.Logger
	builder *geometry.Builder

	layers     *layercache.LayerCache
	cumulative *layercache.CumulativeCache
	merger     *layercache.Merger
	sched      *scheduler.Scheduler[buildResult]
	populator  *Populator
	prefetcher *Prefetcher
	events     *dispatcher

	mu         sync.RWMutex
	project    *slice.Project
	projectID  string
	requested  int // 1-based, 0 when none
	current    Frame
	hasCurrent bool
	loading    bool
	progress   Progress
}

// Status is a snapshot of a session for display and the HTTP API.
type Status struct {
	ProjectID      string          `json:"project_id,omitempty"`
	ProjectName    string          `json:"project_name,omitempty"`
	Layers         int             `json:"layers"`
	RequestedLayer int             `json:"requested_layer"`
	DisplayedLayer int             `json:"displayed_layer"`
	Loading        bool            `json:"loading"`
	State          string          `json:"state"`
	CachedLayers   int             `json:"cached_layers"`
	CachedMerged   int             `json:"cached_merged"`
	MergedCapacity int             `json:"merged_capacity"`
	Populating     bool            `json:"populating"`
	Progress       Progress        `json:"progress"`
	Scheduler      scheduler.Stats `json:"scheduler"`
	CumulativeKeys []int           `json:"-"`
}

// NewSession returns a session with no project loaded.
func NewSession(opts Options) (*Session, error) {
	if err := opts.ValidateAndSetDefaults(); err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}

	s := &Session{
		opts:       opts,
		logger:     opts.Logger,
		builder:    geometry.NewBuilder(opts.Geometry),
		layers:     layercache.New(nil),
		cumulative: layercache.NewCumulative(opts.Capacity),
		events:     newDispatcher(),
	}
	s.merger = layercache.NewMerger(s.layers, s.cumulative)
	s.populator = NewPopulator(s.layers, opts, s.onProgress)
	s.prefetcher = NewPrefetcher(s.merger, opts.PrefetchOffsets, opts.Logger)
	s.sched = scheduler.New(scheduler.Options[buildResult]{
		Build:    s.build,
		Deliver:  s.deliver,
		OnStart:  func(int) { s.setLoading(true) },
		OnFinish: func(int, bool) { s.setLoading(false) },
		Logger:   opts.Logger,
	})
	return s, nil
}

// LoadProject replaces the loaded project. Population and any build in
// flight are cancelled and both caches are emptied before it returns. The
// returned ID identifies the project in frames and progress reports.
func (s *Session) LoadProject(p *slice.Project) (string, error) {
	if err := errors.ValidateProject(p); err != nil {
		return "", err
	}

	s.populator.Stop()
	s.sched.Cancel()

	id := uuid.NewString()
	n := p.LayerCount()

	s.mu.Lock()
	s.project, s.projectID = p, id
	s.requested = 0
	s.current, s.hasCurrent = Frame{}, false
	s.progress = Progress{ProjectID: id, Total: n, Complete: n == 0}
	s.layers.Reset(s.builder.Bind(p))
	s.cumulative.Clear()
	s.mu.Unlock()

	s.logger.Info("loaded project", "name", p.Name, "layers", n, "id", id)

	if !s.opts.ManualPopulate {
		s.populator.Start(id, n)
	}
	return id, nil
}

// StartPopulation starts background population of the loaded project. It is
// only needed with Options.ManualPopulate.
func (s *Session) StartPopulation() error {
	s.mu.RLock()
	p, id := s.project, s.projectID
	s.mu.RUnlock()
	if p == nil {
		return errors.New(errors.ErrCodeNoProject, "no project loaded")
	}
	s.populator.Start(id, p.LayerCount())
	return nil
}

// WaitPopulated blocks until background population finishes or ctx ends.
func (s *Session) WaitPopulated(ctx context.Context) error {
	return s.populator.Wait(ctx)
}

// SetCurrentLayer asks for the cumulative mesh of layers 1..n. It returns at
// once; the frame arrives through Options.OnFrame and [Session.Current].
func (s *Session) SetCurrentLayer(n int) error {
	s.mu.Lock()
	if s.project == nil {
		s.mu.Unlock()
		return errors.New(errors.ErrCodeNoProject, "no project loaded")
	}
	if err := errors.ValidateLayer(n, s.project.LayerCount()); err != nil {
		s.mu.Unlock()
		return err
	}
	s.requested = n
	s.mu.Unlock()

	s.sched.Request(n - 1)
	return nil
}

// Build synchronously returns the cumulative mesh of layers 0..top. It
// shares the caches with the interactive path. If ctx ends first, Build
// returns ctx.Err(); if the project is replaced mid-merge it returns a
// NO_PROJECT error rather than a mesh mixing both projects.
func (s *Session) Build(ctx context.Context, top int) (*geometry.CumulativeGeometry, error) {
	s.mu.RLock()
	p := s.project
	s.mu.RUnlock()
	if p == nil {
		return nil, errors.New(errors.ErrCodeNoProject, "no project loaded")
	}
	if err := errors.ValidateLayer(top+1, p.LayerCount()); err != nil {
		return nil, err
	}

	g, ok := s.merger.Build(ctx, top)
	if !ok {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		// The project was replaced while merging.
		return nil, errors.New(errors.ErrCodeNoProject, "project changed during build")
	}
	return g, nil
}

// Project returns the loaded project and its ID.
func (s *Session) Project() (*slice.Project, string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.project, s.projectID
}

// Current returns the most recently delivered frame.
func (s *Session) Current() (Frame, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current, s.hasCurrent
}

// Status returns a snapshot of the session.
func (s *Session) Status() Status {
	s.mu.RLock()
	st := Status{
		ProjectID:      s.projectID,
		Layers:         s.project.LayerCount(),
		RequestedLayer: s.requested,
		Loading:        s.loading,
		Progress:       s.progress,
	}
	if s.project != nil {
		st.ProjectName = s.project.Name
	}
	if s.hasCurrent {
		st.DisplayedLayer = s.current.Layers
	}
	s.mu.RUnlock()

	st.State = s.sched.State().String()
	st.Scheduler = s.sched.Stats()
	st.CachedLayers = s.layers.Len()
	st.CachedMerged = s.cumulative.Len()
	st.MergedCapacity = s.cumulative.Cap()
	st.CumulativeKeys = s.cumulative.Keys()
	st.Populating = s.populator.Running()
	return st
}

// WaitIdle blocks until no foreground build or prefetch is running and every
// callback raised so far has been invoked.
func (s *Session) WaitIdle(ctx context.Context) error {
	if err := s.sched.Wait(ctx); err != nil {
		return err
	}
	if err := s.prefetcher.Wait(ctx); err != nil {
		return err
	}
	return s.events.flush(ctx)
}

// Close stops all background work. The session must not be used afterwards.
// Close must not be called from a callback.
func (s *Session) Close() {
	s.sched.Close()
	s.populator.Stop()
	ctx := context.Background()
	_ = s.sched.Wait(ctx)
	_ = s.prefetcher.Wait(ctx)
	s.events.close()
}

// GeometryOptions returns the builder options in effect.
func (s *Session) GeometryOptions() geometry.Options { return s.builder.Options() }

// LayerCache exposes the per-layer cache, mainly for inspection.
func (s *Session) LayerCache() *layercache.LayerCache { return s.layers }

// CumulativeCache exposes the cumulative cache, mainly for inspection.
func (s *Session) CumulativeCache() *layercache.CumulativeCache { return s.cumulative }

// =============================================================================
// Scheduler plumbing
// =============================================================================

func (s *Session) build(ctx context.Context, top int) (buildResult, bool) {
	s.mu.RLock()
	id := s.projectID
	s.mu.RUnlock()

	g, ok := s.merger.Build(ctx, top)
	return buildResult{projectID: id, geometry: g}, ok
}

// deliver runs under the scheduler lock with a live request context.
func (s *Session) deliver(ctx context.Context, top int, r buildResult) {
	s.mu.Lock()
	if r.projectID != s.projectID {
		s.mu.Unlock()
		return
	}
	frame := Frame{ProjectID: r.projectID, Layers: r.geometry.LayerCount(), Geometry: r.geometry}
	s.current, s.hasCurrent = frame, true
	count := s.project.LayerCount()
	s.mu.Unlock()

	s.logger.Debug("frame ready", "layers", frame.Layers, "vertices", len(r.geometry.Vertices))
	if s.opts.OnFrame != nil {
		s.events.post(func() { s.opts.OnFrame(frame) })
	}
	s.prefetcher.Trigger(ctx, top, count)
}

func (s *Session) setLoading(loading bool) {
	s.mu.Lock()
	s.loading = loading
	s.mu.Unlock()
	if s.opts.OnLoading != nil {
		s.events.post(func() { s.opts.OnLoading(loading) })
	}
}

func (s *Session) onProgress(p Progress) {
	s.mu.Lock()
	if p.ProjectID != s.projectID {
		s.mu.Unlock()
		return
	}
	s.progress = p
	s.mu.Unlock()

	if s.opts.OnProgress != nil {
		s.events.post(func() { s.opts.OnProgress(p) })
	}
}
