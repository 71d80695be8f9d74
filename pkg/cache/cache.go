// Package cache stores serialized projects and exported artifacts.
//
// Geometry caching during interactive preview lives in memory (see
// package layercache). This package covers the slower outer layer: imported
// projects and rendered exports that are worth keeping across runs.
//
// Three backends implement [Cache]:
//
//   - [FileCache] keeps entries as JSON files for the CLI
//   - [RedisCache] shares entries between preview servers
//   - [NullCache] stores nothing, for tests and --no-cache
//
// Keys come from a [Keyer]. [ScopedKeyer] prefixes another keyer so several
// machines or tenants can share one Redis database.
package cache

import (
	"context"
	"time"
)

// Default time-to-live values.
const (
	// TTLProject applies to imported projects keyed by content hash.
	TTLProject = 7 * 24 * time.Hour

	// TTLArtifact applies to exported meshes.
	TTLArtifact = 30 * 24 * time.Hour
)

// Cache is a byte-oriented key/value store with expiry.
type Cache interface {
	// Get returns the stored value and whether it was found. A miss is not an
	// error.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores data under key. A ttl of zero means no expiry.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	Close() error
}
