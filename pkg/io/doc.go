// Package io reads sliced projects and writes merged meshes.
//
// # Project format
//
// Projects are JSON documents. Points are [x, y] pairs in millimetres:
//
//	{
//	  "name": "bracket",
//	  "layer_thickness": 0.03,
//	  "layers": [
//	    {
//	      "height": 0.03,
//	      "regions": [
//	        {"kind": "contour", "part_id": 1, "polylines": [[[0,0],[10,0],[10,10],[0,10],[0,0]]]},
//	        {"kind": "hatch", "part_id": 1, "polylines": [[[0,1],[10,1]], [[10,2],[0,2]]]}
//	      ]
//	    }
//	  ]
//	}
//
// Layer height and layer_thickness are optional. Region kinds must be one of
// [slice.Kinds]. Use [ImportProject] for files and [ReadProject] for any
// reader; [WriteProject] and [ExportProject] write the same format back.
//
// # Mesh export
//
// [WriteOBJ] writes a Wavefront OBJ file with per-vertex colours (the common
// "v x y z r g b" extension) and normals. [RenderJSON] writes flat
// position/normal/colour/index arrays ready for a GPU upload. [Render]
// dispatches on a format name from [Formats].
package io
