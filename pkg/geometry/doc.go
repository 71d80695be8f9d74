// Package geometry turns sliced layers into flat triangle buffers.
//
// Every drawn segment of a layer becomes a thin quad lying in the layer's Z
// plane: four vertices and two triangles, normal pointing up. The resulting
// [Mesh] is a plain triangle list that any renderer can upload as-is.
//
// # Core Types
//
//   - [Mesh]: vertex and index buffers in triangle-list order
//   - [LayerGeometry]: the mesh of exactly one layer
//   - [CumulativeGeometry]: layers 0..Top merged into one mesh
//   - [Builder]: converts a [slice.Layer] into a [LayerGeometry]
//
// # Styles
//
// The region kind selects a [Style] from the builder's [Palette]. Fill kinds
// (hatch, infill, skins, support fill) are decimated: only every
// [Options.FillStride]-th segment is drawn. Contours are always drawn in full.
// Kinds missing from the palette, including the slicer preview kinds, are
// skipped.
//
// # Part Encoding
//
// The alpha channel of each vertex carries the part the segment belongs to
// as PartID/255 so a renderer can pick parts from the colour buffer. Regions
// without a part use 1/255.
//
// # Merging
//
// [Mesh.AppendRebased] concatenates two meshes, shifting the appended indices
// by the receiver's vertex count. Geometry values are immutable once
// published; callers that want to extend one must [Mesh.Clone] it first.
package geometry
