package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/layerview/pkg/cache"
	"github.com/matzehuels/layerview/pkg/errors"
	lvio "github.com/matzehuels/layerview/pkg/io"
	"github.com/matzehuels/layerview/pkg/observability"
	"github.com/matzehuels/layerview/pkg/slice"
)

// Runner adds artifact caching on top of a [Session].
// Both the CLI and the preview server use it so exports are keyed the same
// way everywhere.
//
// Exports are keyed by the content hash of the project, the top layer, the
// format and the geometry options, so a re-export of an unchanged project is
// served from the cache without merging.
type Runner struct {
	Cache  cache.Cache
	Keyer  cache.Keyer
	Logger *log.Logger
	TTL    time.Duration // artifact lifetime, cache.TTLArtifact by default

	mu     sync.Mutex
	hashes map[string]string // project ID -> content hash
}

// NewRunner creates a runner with the given cache and keyer.
// If keyer is nil, a DefaultKeyer is used.
// If cache is nil, a NullCache is used (caching disabled).
func NewRunner(c cache.Cache, keyer cache.Keyer, logger *log.Logger) *Runner {
	if keyer == nil {
		keyer = cache.NewDefaultKeyer()
	}
	if c == nil {
		c = cache.NewNullCache()
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Runner{
		Cache:  c,
		Keyer:  keyer,
		Logger: logger,
		TTL:    cache.TTLArtifact,
		hashes: make(map[string]string),
	}
}

// LoadFile reads a project file, loads it into s and remembers its content
// hash for artifact keys.
func (r *Runner) LoadFile(s *Session, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", errors.Wrap(errors.ErrCodeFileNotFound, err, "project file not found: %s", path)
		}
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return r.LoadBytes(s, data)
}

// LoadBytes parses a JSON project and loads it into s.
func (r *Runner) LoadBytes(s *Session, data []byte) (string, error) {
	p, err := lvio.ReadProject(bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	id, err := s.LoadProject(p)
	if err != nil {
		return "", err
	}
	r.remember(id, cache.Hash(data))
	return id, nil
}

// Load loads an in-memory project into s. Its hash is computed from the
// canonical JSON encoding.
func (r *Runner) Load(s *Session, p *slice.Project) (string, error) {
	id, err := s.LoadProject(p)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := lvio.WriteProject(p, &buf); err != nil {
		return "", fmt.Errorf("hash project: %w", err)
	}
	r.remember(id, cache.Hash(buf.Bytes()))
	return id, nil
}

func (r *Runner) remember(id, hash string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hashes[id] = hash
}

func (r *Runner) hashOf(id string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.hashes[id]
	return h, ok
}

// ExportWithCacheInfo renders the cumulative mesh of layers 0..top in format
// and reports whether it came from the cache.
func (r *Runner) ExportWithCacheInfo(ctx context.Context, s *Session, top int, format string) ([]byte, bool, error) {
	if err := errors.ValidateFormat(format, lvio.Formats...); err != nil {
		return nil, false, err
	}
	_, id := s.Project()
	hash, known := r.hashOf(id)

	var cacheKey string
	if known {
		g := s.GeometryOptions()
		cacheKey = r.Keyer.ArtifactKey(hash, cache.ArtifactKeyOpts{
			Format:     format,
			Top:        top,
			LineWidth:  g.LineWidth,
			FillStride: g.FillStride,
		})
		if data, hit, err := r.Cache.Get(ctx, cacheKey); err == nil && hit {
			observability.Cache().OnCacheHit(observability.CacheArtifact, top)
			return data, true, nil // Cache hit
		}
		observability.Cache().OnCacheMiss(observability.CacheArtifact, top)
	}

	start := time.Now()
	geom, err := s.Build(ctx, top)
	if err != nil {
		return nil, false, err
	}
	data, err := lvio.Render(geom, format)
	if err != nil {
		return nil, false, err
	}
	r.Logger.Debug("rendered artifact",
		"format", format,
		"layers", geom.LayerCount(),
		"bytes", len(data),
		"duration", time.Since(start))

	if known {
		if err := r.Cache.Set(ctx, cacheKey, data, r.TTL); err != nil {
			r.Logger.Warn("artifact cache write failed", "err", err)
		} else {
			observability.Cache().OnCacheSet(observability.CacheArtifact, top, len(data))
		}
	}
	return data, false, nil // Cache miss
}

// Export is a convenience wrapper that calls ExportWithCacheInfo and discards
// the cache hit info.
func (r *Runner) Export(ctx context.Context, s *Session, top int, format string) ([]byte, error) {
	data, _, err := r.ExportWithCacheInfo(ctx, s, top, format)
	return data, err
}

// Close releases resources held by the runner (primarily the cache).
func (r *Runner) Close() error {
	if r.Cache != nil {
		return r.Cache.Close()
	}
	return nil
}
