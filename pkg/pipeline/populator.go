package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/layerview/pkg/layercache"
	"github.com/matzehuels/layerview/pkg/observability"
)

// Populator fills a layer cache in the background, one layer at a time.
//
// It walks layers 0..total-1 in order, skipping those already cached, pauses
// briefly every YieldEvery layers so foreground builds get the CPU, and
// reports progress every ProgressEvery layers plus once at the end. Each run
// has its own context; starting a new run cancels the previous one.
type Populator struct {
	layers        *layercache.LayerCache
	yieldEvery    int
	yieldDelay    time.Duration
	progressEvery int
	onProgress    func(Progress)
	logger        *log.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewPopulator returns an idle populator for layers. opts must have been
// validated.
func NewPopulator(layers *layercache.LayerCache, opts Options, onProgress func(Progress)) *Populator {
	return &Populator{
		layers:        layers,
		yieldEvery:    opts.YieldEvery,
		yieldDelay:    opts.YieldDelay,
		progressEvery: opts.ProgressEvery,
		onProgress:    onProgress,
		logger:        opts.Logger,
	}
}

// Start cancels any running population, waits for it to stop and begins a
// new one over total layers.
func (p *Populator) Start(projectID string, total int) {
	p.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	p.mu.Lock()
	p.cancel, p.done = cancel, done
	p.mu.Unlock()

	go func() {
		defer close(done)
		p.run(ctx, projectID, total)
	}()
}

// Stop cancels the running population and waits for it to return.
func (p *Populator) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

// Running reports whether a population is in progress.
func (p *Populator) Running() bool {
	p.mu.Lock()
	done := p.done
	p.mu.Unlock()
	if done == nil {
		return false
	}
	select {
	case <-done:
		return false
	default:
		return true
	}
}

// Wait blocks until the current population finishes or ctx ends.
func (p *Populator) Wait(ctx context.Context) error {
	p.mu.Lock()
	done := p.done
	p.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Populator) run(ctx context.Context, projectID string, total int) {
	hooks := observability.Populate()
	start := time.Now()
	built := 0
	p.logger.Debug("populating layer cache", "project", projectID, "layers", total)

	for i := 0; i < total; i++ {
		if ctx.Err() != nil {
			hooks.OnPopulateComplete(ctx, total, time.Since(start), true)
			p.logger.Debug("population cancelled", "project", projectID, "at", i)
			return
		}

		if !p.layers.Contains(i) {
			if err := p.buildLayer(i); err != nil {
				p.logger.Error("layer build failed", "project", projectID, "layer", i, "err", err)
				hooks.OnPopulateError(ctx, i, err)
			} else {
				built++
			}
		}

		n := i + 1
		if n%p.progressEvery == 0 || n == total {
			if ctx.Err() == nil {
				hooks.OnPopulateProgress(ctx, n, total)
				p.report(Progress{ProjectID: projectID, Done: n, Total: total, Complete: n == total})
			}
		}
		if n%p.yieldEvery == 0 && n < total {
			select {
			case <-ctx.Done():
			case <-time.After(p.yieldDelay):
			}
		}
	}

	if total == 0 {
		p.report(Progress{ProjectID: projectID, Complete: true})
	}
	hooks.OnPopulateComplete(ctx, total, time.Since(start), false)
	p.logger.Debug("population complete", "project", projectID, "built", built, "duration", time.Since(start).Round(time.Millisecond))
}

// buildLayer caches one layer, converting a panic into an error.
func (p *Populator) buildLayer(i int) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	p.layers.GetOrBuild(i)
	return nil
}

func (p *Populator) report(pr Progress) {
	if p.onProgress != nil {
		p.onProgress(pr)
	}
}
