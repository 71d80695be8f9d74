// Package layercache memoizes layer meshes and merged cumulative meshes.
//
// Two caches cooperate:
//
//   - [LayerCache] maps a layer index to its [geometry.LayerGeometry]. It is
//     append-only for the lifetime of a project and is filled both on demand
//     and by the background populator.
//   - [CumulativeCache] maps a top layer to the [geometry.CumulativeGeometry]
//     of layers 0..top. It holds a bounded number of entries and, when full,
//     evicts the entry farthest from the layer being inserted so that the
//     entries around the operator's position survive.
//
// A [Merger] connects them. To build top N it copies the nearest cached
// ancestor below N and appends only the missing layers, so scrubbing back and
// forth costs the distance moved rather than the height of the build.
//
// # Reloads
//
// Both caches carry a generation counter that advances on every Clear or
// Reset. Work started against an older generation is dropped when it tries to
// store its result, so a build racing a project reload cannot leave entries of
// the old project behind.
//
// # Concurrency
//
// Every method is safe for concurrent use. Two goroutines missing the same
// layer may both build it; the first stored entry wins and the other result is
// discarded. Stored geometry is never mutated and may be read without locks.
package layercache
