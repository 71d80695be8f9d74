package geometry_test

import (
	"fmt"

	"github.com/matzehuels/layerview/pkg/geometry"
	"github.com/matzehuels/layerview/pkg/slice"
)

func ExampleBuilder_Build() {
	layer := slice.Layer{Regions: []slice.Region{{
		Kind: slice.KindContour,
		Polylines: []slice.Polyline{{Points: []slice.Point{
			{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 10, Y: 10}, {X: 0, Y: 10}, {X: 0, Y: 0},
		}}},
	}}}

	b := geometry.NewBuilder(geometry.Options{})
	g := b.Build(0, layer, 0.03)

	fmt.Println("Vertices:", len(g.Vertices))
	fmt.Println("Triangles:", g.TriangleCount())
	// Output:
	// Vertices: 16
	// Triangles: 8
}

func ExampleMesh_AppendRebased() {
	quad := geometry.Mesh{
		Vertices: make([]geometry.Vertex, 4),
		Indices:  []uint32{0, 1, 2, 0, 2, 3},
	}

	var merged geometry.Mesh
	merged.AppendRebased(quad)
	merged.AppendRebased(quad)

	fmt.Println(merged.Indices[6:])
	// Output:
	// [4 5 6 4 6 7]
}
