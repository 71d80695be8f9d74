package cache

// ScopedKeyer wraps a Keyer with a prefix so several preview servers can
// share one backend without seeing each other's entries.
//
// Example usage:
//
//	// Per-machine keys in a shared Redis
//	keyer := NewScopedKeyer(NewDefaultKeyer(), "machine:m290-03:")
type ScopedKeyer struct {
	inner  Keyer
	prefix string
}

// NewScopedKeyer creates a keyer with a prefix.
// The prefix is prepended to all generated keys.
func NewScopedKeyer(inner Keyer, prefix string) Keyer {
	if inner == nil {
		inner = NewDefaultKeyer()
	}
	return &ScopedKeyer{
		inner:  inner,
		prefix: prefix,
	}
}

// ProjectKey generates a prefixed project key.
func (k *ScopedKeyer) ProjectKey(sourceHash string) string {
	return k.prefix + k.inner.ProjectKey(sourceHash)
}

// ArtifactKey generates a prefixed artifact key.
func (k *ScopedKeyer) ArtifactKey(projectHash string, opts ArtifactKeyOpts) string {
	return k.prefix + k.inner.ArtifactKey(projectHash, opts)
}
