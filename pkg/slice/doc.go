// Package slice defines the sliced build job consumed by the layer preview
// pipeline.
//
// A [Project] is an ordered list of [Layer] values. Each layer carries its
// absolute Z height and a set of [Region] values: tagged groups of polylines
// that share a geometric role (contour, hatch, infill, skin, support). The
// package has no knowledge of file formats; importers in pkg/io and the
// [Synthetic] generator produce projects, and pkg/geometry turns each layer
// into triangles.
//
// # Heights
//
// Slicers do not always fill in absolute heights. [Project.LayerZ] returns the
// recorded height when it is set and falls back to index × layer thickness
// otherwise, so a project without heights still stacks correctly.
//
// # Immutability
//
// Projects are treated as read-only once handed to a preview session. The
// background populator and the foreground merge read layers concurrently
// without locking.
package slice
