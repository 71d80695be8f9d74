// Package pkg provides the core libraries for layerview build previews.
//
// # Overview
//
// layerview turns a sliced laser powder-bed build into cumulative triangle
// meshes: the mesh for layer N shows everything the machine has melted up to
// and including N. The pkg directory is organized into these areas:
//
//  1. [slice] - Project model (layers, regions, polylines) and synthetic projects
//  2. [geometry] - Per-layer mesh building and mesh concatenation
//  3. [layercache] - Per-layer cache, bounded cumulative cache and the merger
//  4. [scheduler] - Single-slot, cancel-on-request build scheduling
//  5. [pipeline] - Sessions tying it together with population and prefetch
//  6. [io] - Project import and OBJ/JSON mesh export
//  7. [cache] - Artifact caching for exports (file, redis, null)
//  8. [server] - HTTP preview API for external renderers
//
// # Architecture
//
// The typical data flow through layerview:
//
//	Project file
//	     ↓
//	[io] package (decode and validate)
//	     ↓
//	[pipeline] Session.LoadProject (clear caches, start population)
//	     ↓
//	[layercache] package (layer meshes from [geometry], merged on demand)
//	     ↓
//	[scheduler] package (latest request wins)
//	     ↓
//	Frame callback, OBJ/JSON export or HTTP response
//
// # Quick Start
//
// Load a project and request a layer:
//
//	import (
//	    "github.com/matzehuels/layerview/pkg/pipeline"
//	    "github.com/matzehuels/layerview/pkg/slice"
//	)
//
//	sess, err := pipeline.NewSession(pipeline.Options{
//	    OnFrame: func(f pipeline.Frame) { draw(f.Geometry) },
//	})
//	if err != nil {
//	    return err
//	}
//	defer sess.Close()
//
//	if _, err := sess.LoadProject(slice.Synthetic(slice.SyntheticOptions{Layers: 400})); err != nil {
//	    return err
//	}
//	sess.SetCurrentLayer(120) // 1-based
//
// # Supporting Packages
//
//   - [config] - TOML configuration
//   - [errors] - Structured error codes and input validation
//   - [observability] - Build, cache, population and HTTP hooks
//   - [buildinfo] - Version information set at link time
package pkg
