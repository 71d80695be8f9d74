// Package observability provides hooks for metrics, tracing, and logging.
//
// This package enables optional instrumentation without adding hard dependencies
// on specific observability backends. Consumers register hooks at startup to
// receive events about cumulative builds, cache traffic, background population
// and the preview HTTP API.
//
// # Architecture
//
// The package uses a simple hooks pattern:
//   - Define hook interfaces for different event categories
//   - Provide no-op default implementations
//   - Allow registration of custom implementations at startup
//
// Hooks are registered by main, never by libraries, so the core packages stay
// free of any particular logging or metrics backend.
//
// # Usage
//
// Register hooks at application startup:
//
//	func main() {
//	    observability.SetBuildHooks(&myBuildHooks{})
//	    observability.SetCacheHooks(&myCacheHooks{})
//	    // ... run application
//	}
//
// Libraries call hooks to emit events:
//
//	observability.Build().OnBuildStart(ctx, top)
//	// ... merge layers ...
//	observability.Build().OnBuildComplete(ctx, top, merged, time.Since(start))
package observability

import (
	"context"
	"sync"
	"time"
)

// Cache names passed to [CacheHooks].
const (
	CacheLayer      = "layer"
	CacheCumulative = "cumulative"
	CacheArtifact   = "artifact"
)

// =============================================================================
// Build Hooks
// =============================================================================

// BuildHooks receives events from cumulative geometry builds.
type BuildHooks interface {
	// OnBuildStart fires when a merge for top begins.
	OnBuildStart(ctx context.Context, top int)

	// OnBuildComplete fires when a merge finishes. merged is the number of
	// layers appended on top of the ancestor.
	OnBuildComplete(ctx context.Context, top, merged int, duration time.Duration)

	// OnBuildCancel fires when a merge is abandoned because its context ended.
	OnBuildCancel(ctx context.Context, top int)
}

// =============================================================================
// Cache Hooks
// =============================================================================

// CacheHooks receives events from the in-memory geometry caches and the
// artifact cache. They run on the caller's goroutine and must not block.
type CacheHooks interface {
	// OnCacheHit records a cache hit.
	OnCacheHit(cache string, key int)

	// OnCacheMiss records a cache miss.
	OnCacheMiss(cache string, key int)

	// OnCacheSet records a cache write. size is the vertex count for meshes
	// and the byte length for artifacts.
	OnCacheSet(cache string, key int, size int)

	// OnCacheEvict records an entry removed to stay within capacity.
	OnCacheEvict(cache string, key int)
}

// =============================================================================
// Populate Hooks
// =============================================================================

// PopulateHooks receives events from background layer population.
type PopulateHooks interface {
	// OnPopulateProgress reports done of total layers cached.
	OnPopulateProgress(ctx context.Context, done, total int)

	// OnPopulateComplete fires when population ends. cancelled is true when
	// it stopped early because a new project was loaded.
	OnPopulateComplete(ctx context.Context, total int, duration time.Duration, cancelled bool)

	// OnPopulateError records a recovered failure while building one layer.
	OnPopulateError(ctx context.Context, layer int, err error)
}

// =============================================================================
// HTTP Hooks
// =============================================================================

// HTTPHooks receives events from the preview HTTP server.
type HTTPHooks interface {
	// OnRequest records an incoming HTTP request.
	OnRequest(ctx context.Context, method, path string)

	// OnResponse records the response written for a request.
	OnResponse(ctx context.Context, method, path string, statusCode int, duration time.Duration)
}

// =============================================================================
// No-op Implementations
// =============================================================================

// NoopBuildHooks is a no-op implementation of BuildHooks.
type NoopBuildHooks struct{}

func (NoopBuildHooks) OnBuildStart(context.Context, int)                        {}
func (NoopBuildHooks) OnBuildComplete(context.Context, int, int, time.Duration) {}
func (NoopBuildHooks) OnBuildCancel(context.Context, int)                       {}

// NoopCacheHooks is a no-op implementation of CacheHooks.
type NoopCacheHooks struct{}

func (NoopCacheHooks) OnCacheHit(string, int)      {}
func (NoopCacheHooks) OnCacheMiss(string, int)     {}
func (NoopCacheHooks) OnCacheSet(string, int, int) {}
func (NoopCacheHooks) OnCacheEvict(string, int)    {}

// NoopPopulateHooks is a no-op implementation of PopulateHooks.
type NoopPopulateHooks struct{}

func (NoopPopulateHooks) OnPopulateProgress(context.Context, int, int) {}
func (NoopPopulateHooks) OnPopulateComplete(context.Context, int, time.Duration, bool) {
}
func (NoopPopulateHooks) OnPopulateError(context.Context, int, error) {}

// NoopHTTPHooks is a no-op implementation of HTTPHooks.
type NoopHTTPHooks struct{}

func (NoopHTTPHooks) OnRequest(context.Context, string, string)                      {}
func (NoopHTTPHooks) OnResponse(context.Context, string, string, int, time.Duration) {}

// =============================================================================
// Global Hook Registry
// =============================================================================

var (
	buildHooks    BuildHooks    = NoopBuildHooks{}
	cacheHooks    CacheHooks    = NoopCacheHooks{}
	populateHooks PopulateHooks = NoopPopulateHooks{}
	httpHooks     HTTPHooks     = NoopHTTPHooks{}
	hooksMu       sync.RWMutex
)

// SetBuildHooks registers custom build hooks.
// This should be called once at application startup before any builds run.
func SetBuildHooks(h BuildHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		buildHooks = h
	}
}

// SetCacheHooks registers custom cache hooks.
// This should be called once at application startup before any cache operations.
func SetCacheHooks(h CacheHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		cacheHooks = h
	}
}

// SetPopulateHooks registers custom population hooks.
func SetPopulateHooks(h PopulateHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		populateHooks = h
	}
}

// SetHTTPHooks registers custom HTTP hooks.
// This should be called once at application startup before the server starts.
func SetHTTPHooks(h HTTPHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		httpHooks = h
	}
}

// Build returns the registered build hooks.
func Build() BuildHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return buildHooks
}

// Cache returns the registered cache hooks.
func Cache() CacheHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return cacheHooks
}

// Populate returns the registered population hooks.
func Populate() PopulateHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return populateHooks
}

// HTTP returns the registered HTTP hooks.
func HTTP() HTTPHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return httpHooks
}

// Reset restores all hooks to their no-op defaults.
// This is primarily useful for testing.
func Reset() {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	buildHooks = NoopBuildHooks{}
	cacheHooks = NoopCacheHooks{}
	populateHooks = NoopPopulateHooks{}
	httpHooks = NoopHTTPHooks{}
}
