package geometry

// Vertex is one corner of a triangle.
type Vertex struct {
	Position [3]float32 `json:"position"`
	Normal   [3]float32 `json:"normal"`
	Color    [4]float32 `json:"color"` // RGB plus part-encoded alpha
}

// Mesh is a triangle list: every three entries of Indices form one triangle
// and reference Vertices by position.
type Mesh struct {
	Vertices []Vertex `json:"vertices"`
	Indices  []uint32 `json:"indices"`
}

// Empty reports whether the mesh has no triangles.
func (m Mesh) Empty() bool { return len(m.Indices) == 0 }

// TriangleCount returns the number of triangles in the mesh.
func (m Mesh) TriangleCount() int { return len(m.Indices) / 3 }

// Clone returns a deep copy of the mesh. Spare capacity is left for growth so
// the copy can be extended without an immediate reallocation.
func (m Mesh) Clone() Mesh {
	out := Mesh{
		Vertices: make([]Vertex, len(m.Vertices), len(m.Vertices)+len(m.Vertices)/4),
		Indices:  make([]uint32, len(m.Indices), len(m.Indices)+len(m.Indices)/4),
	}
	copy(out.Vertices, m.Vertices)
	copy(out.Indices, m.Indices)
	return out
}

// AppendRebased appends src to m. The indices of src are shifted by the
// number of vertices m held before the call, so they keep pointing at the
// same vertices after concatenation.
func (m *Mesh) AppendRebased(src Mesh) {
	base := uint32(len(m.Vertices))
	m.Vertices = append(m.Vertices, src.Vertices...)
	for _, idx := range src.Indices {
		m.Indices = append(m.Indices, idx+base)
	}
}

// LayerGeometry is the mesh of a single layer. It is never mutated after the
// builder returns it.
type LayerGeometry struct {
	Index int     `json:"index"`
	Z     float32 `json:"z"`
	Mesh
}

// CumulativeGeometry is the rebased concatenation of the meshes of layers
// 0..Top. It is never mutated once stored.
type CumulativeGeometry struct {
	Top int `json:"top"`
	Mesh
}

// LayerCount returns the number of layers merged into g.
func (g *CumulativeGeometry) LayerCount() int {
	if g == nil {
		return 0
	}
	return g.Top + 1
}
