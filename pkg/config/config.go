// Package config loads layerview settings from a TOML file.
//
// Every field has a default, so a partial file (or none at all) is valid.
// Durations are written as strings such as "1ms" or "30s":
//
//	[geometry]
//	line_width  = 0.2
//	fill_stride = 4
//
//	[cache]
//	capacity = 100
//
//	[populate]
//	yield_every    = 5
//	yield_delay    = "1ms"
//	progress_every = 10
//
//	[prefetch]
//	enabled = true
//	offsets = [1, 2, 3, -1]
//
//	[server]
//	addr             = "127.0.0.1:8470"
//	project_dir      = "."
//	shutdown_timeout = "5s"
//
//	[artifacts]
//	backend = "file"   # file, redis or none
//	ttl     = "720h"
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/matzehuels/layerview/pkg/errors"
)

// FileName is the config file name looked up in the user config directory.
const FileName = "layerview.toml"

// maxFileSize bounds the config file read by Load.
const maxFileSize = 1 << 20

// Artifact backends.
const (
	BackendFile  = "file"
	BackendRedis = "redis"
	BackendNone  = "none"
)

// Config is the root configuration.
type Config struct {
	Geometry  GeometryConfig  `toml:"geometry"`
	Cache     CacheConfig     `toml:"cache"`
	Populate  PopulateConfig  `toml:"populate"`
	Prefetch  PrefetchConfig  `toml:"prefetch"`
	Server    ServerConfig    `toml:"server"`
	Artifacts ArtifactsConfig `toml:"artifacts"`
}

// GeometryConfig tunes the layer mesh builder.
type GeometryConfig struct {
	LineWidth  float64 `toml:"line_width"`  // mm
	FillStride int     `toml:"fill_stride"` // draw every Nth fill vector
}

// CacheConfig sizes the in-memory cumulative cache.
type CacheConfig struct {
	Capacity int `toml:"capacity"`
}

// PopulateConfig tunes background population after a project load.
type PopulateConfig struct {
	YieldEvery    int    `toml:"yield_every"`
	YieldDelay    string `toml:"yield_delay"`
	ProgressEvery int    `toml:"progress_every"`
}

// PrefetchConfig controls cumulative prefetch around the current layer.
type PrefetchConfig struct {
	Enabled bool  `toml:"enabled"`
	Offsets []int `toml:"offsets"`
}

// ServerConfig configures `layerview serve`.
type ServerConfig struct {
	Addr            string `toml:"addr"`
	ProjectDir      string `toml:"project_dir"`
	ShutdownTimeout string `toml:"shutdown_timeout"`
}

// ArtifactsConfig selects where exported meshes are cached.
type ArtifactsConfig struct {
	Backend string `toml:"backend"`
	Dir     string `toml:"dir"` // file backend; empty selects the user cache dir
	TTL     string `toml:"ttl"`

	RedisAddr     string `toml:"redis_addr"`
	RedisPassword string `toml:"redis_password"`
	RedisDB       int    `toml:"redis_db"`
	KeyPrefix     string `toml:"key_prefix"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Geometry: GeometryConfig{LineWidth: 0.2, FillStride: 4},
		Cache:    CacheConfig{Capacity: 100},
		Populate: PopulateConfig{YieldEvery: 5, YieldDelay: "1ms", ProgressEvery: 10},
		Prefetch: PrefetchConfig{Enabled: true, Offsets: []int{1, 2, 3, -1}},
		Server: ServerConfig{
			Addr:            "127.0.0.1:8470",
			ProjectDir:      ".",
			ShutdownTimeout: "5s",
		},
		Artifacts: ArtifactsConfig{
			Backend:   BackendFile,
			TTL:       "720h",
			RedisAddr: "localhost:6379",
		},
	}
}

// DefaultPath returns the config file path in the user config directory.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("get config dir: %w", err)
	}
	return filepath.Join(dir, "layerview", FileName), nil
}

// Load reads the TOML file at path on top of [Default] and validates it.
// Keys missing from the file keep their default values.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".toml" {
		return nil, errors.New(errors.ErrCodeInvalidConfig, "config file must have .toml extension, got %q", ext)
	}

	info, err := os.Stat(cleanPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrap(errors.ErrCodeFileNotFound, err, "config file not found: %s", cleanPath)
		}
		return nil, fmt.Errorf("stat config file: %w", err)
	}
	if info.Size() > maxFileSize {
		return nil, errors.New(errors.ErrCodeInvalidConfig, "config file too large: %d bytes (max %d)", info.Size(), maxFileSize)
	}

	cfg := Default()
	md, err := toml.DecodeFile(cleanPath, cfg)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfig, err, "parse %s", cleanPath)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, errors.New(errors.ErrCodeInvalidConfig, "unknown key %q in %s", undecoded[0].String(), cleanPath)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault loads path, or the file at [DefaultPath] when path is empty.
// A missing default file yields [Default]; a missing explicit path is an
// error.
func LoadOrDefault(path string) (*Config, error) {
	if path != "" {
		return Load(path)
	}
	def, err := DefaultPath()
	if err != nil {
		return Default(), nil
	}
	if _, err := os.Stat(def); os.IsNotExist(err) {
		return Default(), nil
	}
	return Load(def)
}

// Validate checks ranges and that every duration parses.
func (c *Config) Validate() error {
	if c.Geometry.LineWidth <= 0 {
		return invalid("geometry.line_width must be positive, got %v", c.Geometry.LineWidth)
	}
	if c.Geometry.FillStride < 1 {
		return invalid("geometry.fill_stride must be at least 1, got %d", c.Geometry.FillStride)
	}
	if c.Cache.Capacity < 1 {
		return invalid("cache.capacity must be at least 1, got %d", c.Cache.Capacity)
	}
	if c.Populate.YieldEvery < 1 {
		return invalid("populate.yield_every must be at least 1, got %d", c.Populate.YieldEvery)
	}
	if c.Populate.ProgressEvery < 1 {
		return invalid("populate.progress_every must be at least 1, got %d", c.Populate.ProgressEvery)
	}
	for _, d := range []struct{ key, val string }{
		{"populate.yield_delay", c.Populate.YieldDelay},
		{"server.shutdown_timeout", c.Server.ShutdownTimeout},
		{"artifacts.ttl", c.Artifacts.TTL},
	} {
		if _, err := parseDuration(d.key, d.val); err != nil {
			return err
		}
	}
	if c.Server.Addr == "" {
		return invalid("server.addr must not be empty")
	}
	switch c.Artifacts.Backend {
	case BackendFile, BackendNone:
	case BackendRedis:
		if c.Artifacts.RedisAddr == "" {
			return invalid("artifacts.redis_addr is required for the redis backend")
		}
	default:
		return invalid("artifacts.backend must be one of file, redis, none; got %q", c.Artifacts.Backend)
	}
	return nil
}

// YieldDelay returns the parsed populate.yield_delay.
func (c *Config) YieldDelay() time.Duration {
	d, _ := parseDuration("", c.Populate.YieldDelay)
	return d
}

// ShutdownTimeout returns the parsed server.shutdown_timeout.
func (c *Config) ShutdownTimeout() time.Duration {
	d, _ := parseDuration("", c.Server.ShutdownTimeout)
	return d
}

// ArtifactTTL returns the parsed artifacts.ttl.
func (c *Config) ArtifactTTL() time.Duration {
	d, _ := parseDuration("", c.Artifacts.TTL)
	return d
}

func parseDuration(key, s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, errors.Wrap(errors.ErrCodeInvalidConfig, err, "%s: invalid duration %q", key, s)
	}
	if d < 0 {
		return 0, invalid("%s must not be negative", key)
	}
	return d, nil
}

func invalid(format string, args ...any) error {
	return errors.New(errors.ErrCodeInvalidConfig, format, args...)
}
