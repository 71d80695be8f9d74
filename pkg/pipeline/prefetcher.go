package pipeline

import (
	"context"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/layerview/pkg/layercache"
)

// Prefetcher extends the cumulative cache around the operator's position.
//
// After a frame for top L is delivered, Trigger builds L+offset for each
// configured offset in order, skipping tops outside the project and tops
// already cached. It runs under the context of the request that produced the
// frame, so the next request cancels it.
type Prefetcher struct {
	merger  *layercache.Merger
	offsets []int
	logger  *log.Logger

	mu      sync.Mutex
	running int
	idle    chan struct{} // closed while nothing runs
}

// NewPrefetcher returns a prefetcher building into merger's caches.
func NewPrefetcher(merger *layercache.Merger, offsets []int, logger *log.Logger) *Prefetcher {
	idle := make(chan struct{})
	close(idle)
	return &Prefetcher{merger: merger, offsets: offsets, logger: logger, idle: idle}
}

// Trigger starts prefetching around top in the background.
func (p *Prefetcher) Trigger(ctx context.Context, top, count int) {
	if len(p.offsets) == 0 {
		return
	}
	p.mu.Lock()
	if p.running == 0 {
		p.idle = make(chan struct{})
	}
	p.running++
	p.mu.Unlock()

	go func() {
		defer p.finish()
		p.run(ctx, top, count)
	}()
}

func (p *Prefetcher) finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.running--
	if p.running == 0 {
		close(p.idle)
	}
}

func (p *Prefetcher) run(ctx context.Context, top, count int) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("prefetch panicked", "top", top, "panic", r)
		}
	}()

	cum := p.merger.Cumulative()
	for _, off := range p.offsets {
		if ctx.Err() != nil {
			return
		}
		t := top + off
		if t < 0 || t >= count || cum.Contains(t) {
			continue
		}
		if _, ok := p.merger.Build(ctx, t); ok {
			p.logger.Debug("prefetched", "top", t)
		}
	}
}

// Wait blocks until every triggered prefetch has returned or ctx ends.
func (p *Prefetcher) Wait(ctx context.Context) error {
	for {
		p.mu.Lock()
		if p.running == 0 {
			p.mu.Unlock()
			return nil
		}
		idle := p.idle
		p.mu.Unlock()

		select {
		case <-idle:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
