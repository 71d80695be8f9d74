package errors

import (
	"math"
	"slices"
	"strings"
	"unicode"

	"github.com/matzehuels/layerview/pkg/slice"
)

// MaxLayers is the largest project accepted by [ValidateProject].
const MaxLayers = 200_000

// ValidateName validates a project name for use in cache keys and file names.
//
// The validation rules are intentionally conservative:
//   - No empty names
//   - No control characters
//   - No path traversal sequences (.., //, etc.)
//   - No null bytes
//   - Maximum length of 256 characters
func ValidateName(name string) error {
	if name == "" {
		return New(ErrCodeInvalidInput, "name cannot be empty")
	}

	if len(name) > 256 {
		return New(ErrCodeInvalidInput, "name too long (max 256 characters)")
	}

	// Check for control characters and null bytes
	for _, r := range name {
		if unicode.IsControl(r) {
			return New(ErrCodeInvalidInput, "name contains invalid control characters")
		}
	}

	// Check for path traversal patterns
	dangerousPatterns := []string{
		"..",   // Parent directory
		"/",    // Path separator
		"\x00", // Null byte
		"\\",   // Backslash (Windows path)
	}

	for _, pattern := range dangerousPatterns {
		if strings.Contains(name, pattern) {
			return New(ErrCodeInvalidInput, "name contains invalid characters: %q", pattern)
		}
	}

	return nil
}

// ValidatePath validates a project path relative to the server's project
// directory. It prevents path traversal and ensures reasonable path length.
//
// Validation rules:
//   - Path cannot be empty
//   - Maximum length of 500 characters
//   - No null bytes or control characters
//   - No absolute paths (must be relative)
//   - No path traversal sequences (..)
//   - No backslashes (Windows-style paths)
func ValidatePath(path string) error {
	if path == "" {
		return New(ErrCodeInvalidPath, "path cannot be empty")
	}

	const maxPathLength = 500
	if len(path) > maxPathLength {
		return New(ErrCodeInvalidPath, "path too long (max %d characters)", maxPathLength)
	}

	// Check for null bytes and control characters
	for _, r := range path {
		if r == '\x00' || unicode.IsControl(r) {
			return New(ErrCodeInvalidPath, "path contains invalid characters")
		}
	}

	// Must not be absolute path
	if strings.HasPrefix(path, "/") {
		return New(ErrCodeInvalidPath, "path must be relative (cannot start with /)")
	}

	// Check for path traversal
	if strings.Contains(path, "..") {
		return New(ErrCodeInvalidPath, "path cannot contain path traversal sequences (..)")
	}

	// No backslashes (potential Windows path injection)
	if strings.Contains(path, "\\") {
		return New(ErrCodeInvalidPath, "path cannot contain backslashes")
	}

	return nil
}

// ValidateFormat checks that format is one of allowed.
func ValidateFormat(format string, allowed ...string) error {
	if !slices.Contains(allowed, format) {
		return New(ErrCodeInvalidFormat, "invalid format: %q (must be one of: %s)", format, strings.Join(allowed, ", "))
	}
	return nil
}

// ValidateLayer checks a 1-based layer number against a project of count
// layers.
func ValidateLayer(n, count int) error {
	if count <= 0 {
		return New(ErrCodeInvalidLayer, "project has no layers")
	}
	if n < 1 || n > count {
		return New(ErrCodeInvalidLayer, "layer %d out of range (1..%d)", n, count)
	}
	return nil
}

// ValidateProject checks that a project can be previewed: it must exist, stay
// within [MaxLayers], and carry only finite coordinates and heights. Unknown
// region kinds and short polylines are accepted; the geometry builder skips
// them.
func ValidateProject(p *slice.Project) error {
	if p == nil {
		return New(ErrCodeNoProject, "no project")
	}
	if len(p.Layers) > MaxLayers {
		return New(ErrCodeInvalidProject, "too many layers: %d (max %d)", len(p.Layers), MaxLayers)
	}
	if !finite(p.LayerThickness) || p.LayerThickness < 0 {
		return New(ErrCodeInvalidProject, "invalid layer thickness: %v", p.LayerThickness)
	}

	for i, l := range p.Layers {
		if !finite(l.Height) || l.Height < 0 {
			return New(ErrCodeInvalidProject, "layer %d: invalid height %v", i+1, l.Height)
		}
		for _, r := range l.Regions {
			for _, pl := range r.Polylines {
				for _, pt := range pl.Points {
					if !finite(pt.X) || !finite(pt.Y) {
						return New(ErrCodeInvalidProject, "layer %d: non-finite point in %s region", i+1, r.Kind)
					}
				}
			}
		}
	}
	return nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
