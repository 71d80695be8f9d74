package io

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/matzehuels/layerview/pkg/errors"
	"github.com/matzehuels/layerview/pkg/geometry"
)

// Export formats.
const (
	FormatOBJ  = "obj"
	FormatJSON = "json"
)

// Formats lists the supported export formats.
var Formats = []string{FormatOBJ, FormatJSON}

// Render encodes g in the named format.
func Render(g *geometry.CumulativeGeometry, format string) ([]byte, error) {
	if err := errors.ValidateFormat(format, Formats...); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	var err error
	switch format {
	case FormatOBJ:
		err = WriteOBJ(g, &buf)
	case FormatJSON:
		err = writeJSON(g, &buf)
	}
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteOBJ writes g as a Wavefront OBJ mesh. Each vertex carries its RGB
// colour after the position; the part-encoded alpha is dropped.
func WriteOBJ(g *geometry.CumulativeGeometry, w io.Writer) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "# layerview cumulative mesh, layers 1-%d\n", g.LayerCount())
	fmt.Fprintf(bw, "# %d vertices, %d triangles\n", len(g.Vertices), g.TriangleCount())

	var line []byte
	for _, v := range g.Vertices {
		line = append(line[:0], 'v')
		line = appendFloats(line, v.Position[:]...)
		line = appendFloats(line, v.Color[:3]...)
		line = append(line, '\n')
		bw.Write(line)
	}
	for _, v := range g.Vertices {
		line = append(line[:0], "vn"...)
		line = appendFloats(line, v.Normal[:]...)
		line = append(line, '\n')
		bw.Write(line)
	}
	for i := 0; i+2 < len(g.Indices); i += 3 {
		// OBJ indices are 1-based.
		a, b, c := g.Indices[i]+1, g.Indices[i+1]+1, g.Indices[i+2]+1
		fmt.Fprintf(bw, "f %d//%d %d//%d %d//%d\n", a, a, b, b, c, c)
	}
	return bw.Flush()
}

func appendFloats(dst []byte, vals ...float32) []byte {
	for _, v := range vals {
		dst = append(dst, ' ')
		dst = strconv.AppendFloat(dst, float64(v), 'f', -1, 32)
	}
	return dst
}

// meshJSON is the flat layout consumed by WebGL-style renderers.
type meshJSON struct {
	Top       int       `json:"top"`
	Layers    int       `json:"layers"`
	Vertices  int       `json:"vertex_count"`
	Triangles int       `json:"triangle_count"`
	Positions []float32 `json:"positions"`
	Normals   []float32 `json:"normals"`
	Colors    []float32 `json:"colors"`
	Indices   []uint32  `json:"indices"`
}

// RenderJSON encodes g as flat arrays: three floats per position and normal,
// four per colour.
func RenderJSON(g *geometry.CumulativeGeometry) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeJSON(g, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeJSON(g *geometry.CumulativeGeometry, w io.Writer) error {
	n := len(g.Vertices)
	out := meshJSON{
		Top:       g.Top,
		Layers:    g.LayerCount(),
		Vertices:  n,
		Triangles: g.TriangleCount(),
		Positions: make([]float32, 0, 3*n),
		Normals:   make([]float32, 0, 3*n),
		Colors:    make([]float32, 0, 4*n),
		Indices:   g.Indices,
	}
	if out.Indices == nil {
		out.Indices = []uint32{}
	}
	for _, v := range g.Vertices {
		out.Positions = append(out.Positions, v.Position[:]...)
		out.Normals = append(out.Normals, v.Normal[:]...)
		out.Colors = append(out.Colors, v.Color[:]...)
	}
	if err := json.NewEncoder(w).Encode(out); err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	return nil
}
