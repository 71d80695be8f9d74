// Package scheduler serializes foreground build requests.
//
// A [Scheduler] runs at most one build at a time and remembers at most one
// request behind it. Every request cancels the build in flight and replaces
// whatever was waiting, so a burst of requests collapses into the build that
// was already running plus one build for the latest request.
//
//	          Request                 Request
//	  Idle ───────────▶ Building ──────────────▶ BuildingPending
//	   ▲                 │   ▲                        │
//	   │  done, no       │   │  done, pending         │ Request
//	   └─ pending ───────┘   └────── consumed ────────┴─ (overwrite)
//
// Results reach the consumer through [Options.Deliver], which is only invoked
// while the build's context is still live. A superseded build that happens to
// finish is counted as completed but never delivered.
package scheduler

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/log"
)

// State is the scheduler's position in its state machine.
type State int

const (
	Idle State = iota
	Building
	BuildingPending
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Building:
		return "building"
	case BuildingPending:
		return "building+pending"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Options configures a [Scheduler].
type Options[T any] struct {
	// Build produces the result for a layer. It must return ok=false when ctx
	// is cancelled. Required.
	Build func(ctx context.Context, layer int) (result T, ok bool)

	// Deliver hands a result to the consumer. It runs with the scheduler's
	// lock held and must not call Request or Cancel synchronously.
	Deliver func(ctx context.Context, layer int, result T)

	// OnStart and OnFinish bracket every build, delivered or not.
	OnStart  func(layer int)
	OnFinish func(layer int, delivered bool)

	Logger *log.Logger
}

// Stats counts what the scheduler has done since it was created.
type Stats struct {
	Requested int `json:"requested"`
	Started   int `json:"started"`
	Completed int `json:"completed"` // builds that returned ok
	Cancelled int `json:"cancelled"` // builds that returned !ok
	Delivered int `json:"delivered"`
}

// Scheduler runs builds one at a time with a single-slot pending mailbox.
type Scheduler[T any] struct {
	opts Options[T]

	mu         sync.Mutex
	state      State
	ctx        context.Context // token of the latest request
	cancel     context.CancelFunc
	pending    int
	hasPending bool
	idle       chan struct{} // closed while Idle
	closed     bool
	stats      Stats
}

// New returns an idle scheduler. It panics if opts.Build is nil.
func New[T any](opts Options[T]) *Scheduler[T] {
	if opts.Build == nil {
		panic("scheduler: Options.Build is required")
	}
	if opts.Logger == nil {
		opts.Logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	idle := make(chan struct{})
	close(idle)
	return &Scheduler[T]{opts: opts, idle: idle}
}

// Request asks for layer to be built. It cancels the build in flight; if one
// is running, layer replaces any pending request and runs once it finishes.
func (s *Scheduler[T]) Request(layer int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	s.stats.Requested++
	if s.cancel != nil {
		s.cancel()
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())

	switch s.state {
	case Idle:
		s.state = Building
		s.idle = make(chan struct{})
		s.stats.Started++
		go s.run(s.ctx, layer)
	case Building, BuildingPending:
		s.pending, s.hasPending = layer, true
		s.state = BuildingPending
	}
}

func (s *Scheduler[T]) run(ctx context.Context, layer int) {
	for {
		if s.opts.OnStart != nil {
			s.opts.OnStart(layer)
		}

		result, ok := s.build(ctx, layer)

		s.mu.Lock()
		delivered := false
		if ok {
			s.stats.Completed++
			if ctx.Err() == nil {
				if s.opts.Deliver != nil {
					s.opts.Deliver(ctx, layer, result)
				}
				s.stats.Delivered++
				delivered = true
			}
		} else {
			s.stats.Cancelled++
		}
		s.mu.Unlock()

		if s.opts.OnFinish != nil {
			s.opts.OnFinish(layer, delivered)
		}

		s.mu.Lock()
		if !s.hasPending {
			s.state = Idle
			close(s.idle)
			s.mu.Unlock()
			return
		}
		layer, ctx = s.pending, s.ctx
		s.hasPending = false
		s.state = Building
		s.stats.Started++
		s.mu.Unlock()
	}
}

// build runs Options.Build, turning a panic into a cancelled build.
func (s *Scheduler[T]) build(ctx context.Context, layer int) (result T, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			s.opts.Logger.Error("build panicked", "layer", layer, "panic", r)
			ok = false
		}
	}()
	return s.opts.Build(ctx, layer)
}

// Cancel aborts the build in flight and drops the pending request.
func (s *Scheduler[T]) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
	s.hasPending = false
	if s.state == BuildingPending {
		s.state = Building
	}
}

// Wait blocks until the scheduler is idle or ctx ends.
func (s *Scheduler[T]) Wait(ctx context.Context) error {
	for {
		s.mu.Lock()
		if s.state == Idle {
			s.mu.Unlock()
			return nil
		}
		idle := s.idle
		s.mu.Unlock()

		select {
		case <-idle:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close cancels outstanding work and rejects further requests.
func (s *Scheduler[T]) Close() {
	s.Cancel()
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

// State returns the current state.
func (s *Scheduler[T]) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Pending returns the layer waiting behind the current build, if any.
func (s *Scheduler[T]) Pending() (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending, s.hasPending
}

// Stats returns a snapshot of the counters.
func (s *Scheduler[T]) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}
