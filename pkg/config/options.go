package config

import (
	"github.com/charmbracelet/log"

	"github.com/matzehuels/layerview/pkg/geometry"
	"github.com/matzehuels/layerview/pkg/pipeline"
)

// PipelineOptions converts the configuration into session options. Callbacks
// are left for the caller to fill in.
func (c *Config) PipelineOptions(logger *log.Logger) pipeline.Options {
	opts := pipeline.Options{
		Capacity:      c.Cache.Capacity,
		YieldEvery:    c.Populate.YieldEvery,
		YieldDelay:    c.YieldDelay(),
		ProgressEvery: c.Populate.ProgressEvery,
		Geometry: geometry.Options{
			LineWidth:  c.Geometry.LineWidth,
			FillStride: c.Geometry.FillStride,
		},
		Logger: logger,
	}
	if c.Prefetch.Enabled {
		opts.PrefetchOffsets = append([]int{}, c.Prefetch.Offsets...)
		opts.DisablePrefetch = len(c.Prefetch.Offsets) == 0
	} else {
		opts.DisablePrefetch = true
	}
	return opts
}
