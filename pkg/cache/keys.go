package cache

import "fmt"

// Keyer generates cache keys.
type Keyer interface {
	// ProjectKey identifies a parsed project by the hash of its source bytes.
	ProjectKey(sourceHash string) string

	// ArtifactKey identifies an exported mesh of a project.
	ArtifactKey(projectHash string, opts ArtifactKeyOpts) string
}

// ArtifactKeyOpts holds everything that changes an exported artifact.
type ArtifactKeyOpts struct {
	Format     string  `json:"format"`
	Top        int     `json:"top"` // 0-based top layer
	LineWidth  float64 `json:"line_width"`
	FillStride int     `json:"fill_stride"`
}

// DefaultKeyer generates keys of the form "kind:sha256".
type DefaultKeyer struct{}

// NewDefaultKeyer returns the default keyer.
func NewDefaultKeyer() Keyer {
	return DefaultKeyer{}
}

// ProjectKey returns "project:<sourceHash>".
func (DefaultKeyer) ProjectKey(sourceHash string) string {
	return fmt.Sprintf("project:%s", sourceHash)
}

// ArtifactKey hashes the project hash together with opts.
func (DefaultKeyer) ArtifactKey(projectHash string, opts ArtifactKeyOpts) string {
	return hashKey("artifact", projectHash, opts)
}

var _ Keyer = DefaultKeyer{}
