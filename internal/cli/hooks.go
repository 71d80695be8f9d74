package cli

import (
	"context"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/layerview/pkg/observability"
)

// logHooks forwards observability events to a logger at debug level.
type logHooks struct {
	logger *log.Logger
}

func installLogHooks(l *log.Logger) {
	h := &logHooks{logger: l.WithPrefix("hooks")}
	observability.SetBuildHooks(h)
	observability.SetCacheHooks(h)
	observability.SetPopulateHooks(h)
	observability.SetHTTPHooks(h)
}

func (h *logHooks) OnBuildStart(_ context.Context, top int) {
	h.logger.Debug("build start", "top", top)
}

func (h *logHooks) OnBuildComplete(_ context.Context, top, merged int, d time.Duration) {
	h.logger.Debug("build complete", "top", top, "merged", merged, "duration", d.Round(time.Microsecond))
}

func (h *logHooks) OnBuildCancel(_ context.Context, top int) {
	h.logger.Debug("build cancelled", "top", top)
}

func (h *logHooks) OnCacheHit(cache string, key int) {
	h.logger.Debug("cache hit", "cache", cache, "key", key)
}

func (h *logHooks) OnCacheMiss(cache string, key int) {
	h.logger.Debug("cache miss", "cache", cache, "key", key)
}

func (h *logHooks) OnCacheSet(cache string, key, size int) {
	h.logger.Debug("cache set", "cache", cache, "key", key, "size", size)
}

func (h *logHooks) OnCacheEvict(cache string, key int) {
	h.logger.Debug("cache evict", "cache", cache, "key", key)
}

func (h *logHooks) OnPopulateProgress(_ context.Context, done, total int) {
	h.logger.Debug("populate", "done", done, "total", total)
}

func (h *logHooks) OnPopulateComplete(_ context.Context, total int, d time.Duration, cancelled bool) {
	h.logger.Debug("populate finished", "total", total, "duration", d.Round(time.Millisecond), "cancelled", cancelled)
}

func (h *logHooks) OnPopulateError(_ context.Context, layer int, err error) {
	h.logger.Warn("populate error", "layer", layer, "err", err)
}

func (h *logHooks) OnRequest(_ context.Context, method, path string) {}

func (h *logHooks) OnResponse(_ context.Context, method, path string, status int, d time.Duration) {
	h.logger.Debug("http", "method", method, "path", path, "status", status, "duration", d.Round(time.Microsecond))
}
