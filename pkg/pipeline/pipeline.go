// Package pipeline wires the layer caches, the merger and the build scheduler
// into a preview session for one build job at a time.
//
// This package is shared by the CLI, the terminal scrubber and the HTTP
// preview server. By centralizing the wiring here, every entry point gets the
// same cancellation, population and prefetch behaviour.
//
// # Architecture
//
// A [Session] owns:
//
//  1. A [layercache.LayerCache] and a [layercache.CumulativeCache]
//  2. A [layercache.Merger] extending cached cumulative meshes
//  3. A [scheduler.Scheduler] serializing operator requests
//  4. A [Populator] filling the layer cache in the background after a load
//  5. A [Prefetcher] extending the cumulative cache around each delivered frame
//
// # Usage
//
//	sess, err := pipeline.NewSession(pipeline.Options{
//	    OnFrame: func(f pipeline.Frame) { upload(f.Geometry) },
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer sess.Close()
//
//	if _, err := sess.LoadProject(project); err != nil {
//	    log.Fatal(err)
//	}
//	sess.SetCurrentLayer(120) // 1-based, returns at once
//
// Callbacks run on a single dispatch goroutine in the order events occur.
// They may call back into the session.
//
// For one-off exports, use [Runner] which adds artifact caching on top of
// [Session.Build].
package pipeline

import (
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/layerview/pkg/geometry"
	"github.com/matzehuels/layerview/pkg/layercache"
)

// =============================================================================
// Default Values - Single Source of Truth for CLI, TUI, and Server
// =============================================================================

const (
	// DefaultCapacity is the number of cumulative meshes a session keeps.
	DefaultCapacity = layercache.DefaultCapacity

	// DefaultYieldEvery is how many layers the populator builds between
	// pauses.
	DefaultYieldEvery = 5

	// DefaultYieldDelay is the length of each populator pause.
	DefaultYieldDelay = time.Millisecond

	// DefaultProgressEvery is how many layers pass between progress reports.
	DefaultProgressEvery = 10
)

// DefaultPrefetchOffsets are tried in order after each delivered frame:
// three layers ahead and one behind.
var DefaultPrefetchOffsets = []int{1, 2, 3, -1}

// =============================================================================
// Events
// =============================================================================

// Frame is a delivered cumulative mesh ready for rendering.
type Frame struct {
	ProjectID string                       `json:"project_id"`
	Layers    int                          `json:"layers"` // layer count represented, Top+1
	Geometry  *geometry.CumulativeGeometry `json:"-"`
}

// Progress reports background population of the layer cache.
type Progress struct {
	ProjectID string `json:"project_id"`
	Done      int    `json:"done"`
	Total     int    `json:"total"`
	Complete  bool   `json:"complete"`
}

// Percent returns Done as a percentage of Total.
func (p Progress) Percent() float64 {
	if p.Total == 0 {
		return 100
	}
	return 100 * float64(p.Done) / float64(p.Total)
}

// =============================================================================
// Options - Session Configuration
// =============================================================================

// Options contains all configuration for a [Session].
type Options struct {
	// Capacity bounds the cumulative cache. Default 100.
	Capacity int

	// YieldEvery, YieldDelay and ProgressEvery tune background population.
	YieldEvery    int
	YieldDelay    time.Duration
	ProgressEvery int

	// PrefetchOffsets are relative tops built after each frame. Nil selects
	// DefaultPrefetchOffsets; set DisablePrefetch to turn prefetch off.
	PrefetchOffsets []int
	DisablePrefetch bool

	// ManualPopulate leaves population to an explicit StartPopulation call
	// instead of starting it from LoadProject.
	ManualPopulate bool

	// Geometry configures the layer mesh builder.
	Geometry geometry.Options

	// Callbacks, all optional.
	OnFrame    func(Frame)
	OnProgress func(Progress)
	OnLoading  func(loading bool)

	Logger *log.Logger

	// validated tracks whether ValidateAndSetDefaults has been called.
	validated bool
}

// ValidateAndSetDefaults checks fields and applies defaults.
// This method is idempotent - calling it multiple times has the same effect as calling it once.
func (o *Options) ValidateAndSetDefaults() error {
	if o.validated {
		return nil
	}
	if o.Capacity < 0 {
		return fmt.Errorf("capacity must not be negative: %d", o.Capacity)
	}
	if o.YieldEvery < 0 || o.ProgressEvery < 0 || o.YieldDelay < 0 {
		return fmt.Errorf("populate settings must not be negative")
	}
	if o.Geometry.LineWidth < 0 {
		return fmt.Errorf("line width must not be negative: %v", o.Geometry.LineWidth)
	}

	if o.Capacity == 0 {
		o.Capacity = DefaultCapacity
	}
	if o.YieldEvery == 0 {
		o.YieldEvery = DefaultYieldEvery
	}
	if o.YieldDelay == 0 {
		o.YieldDelay = DefaultYieldDelay
	}
	if o.ProgressEvery == 0 {
		o.ProgressEvery = DefaultProgressEvery
	}
	if o.PrefetchOffsets == nil {
		o.PrefetchOffsets = DefaultPrefetchOffsets
	}
	if o.DisablePrefetch {
		o.PrefetchOffsets = nil
	}
	if o.Logger == nil {
		o.Logger = log.NewWithOptions(io.Discard, log.Options{})
	}

	o.validated = true
	return nil
}
