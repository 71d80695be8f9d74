package slice

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"
)

// DefaultLayerThickness is the layer thickness in millimetres assumed when a
// project does not declare one (30 µm).
const DefaultLayerThickness = 0.03

// minHeight is the smallest layer height treated as "set". Anything below is
// considered missing and replaced by the thickness-derived fallback.
const minHeight = 0.001

// Point is a 2D coordinate on the build plate, in millimetres.
type Point = r2.Vec

// Polyline is an ordered run of points. Hatch regions typically store one
// two-point polyline per scan vector; contours store the full outline.
type Polyline struct {
	Points []Point `json:"points"`
}

// RegionKind tags the geometric role of a region.
type RegionKind string

// Region kinds understood by the geometry builder. Preview kinds are emitted
// by some slicers for smooth-fill previews and are never drawn as lines.
const (
	KindContour         RegionKind = "contour"
	KindContourUpskin   RegionKind = "contour_upskin"
	KindContourDownskin RegionKind = "contour_downskin"
	KindEdges           RegionKind = "edges"
	KindHatch           RegionKind = "hatch"
	KindInfill          RegionKind = "infill"
	KindUpskin          RegionKind = "upskin"
	KindDownskin        RegionKind = "downskin"
	KindSupport         RegionKind = "support"
	KindSupportFill     RegionKind = "support_fill"

	KindInfillPreview   RegionKind = "infill_preview"
	KindUpskinPreview   RegionKind = "upskin_preview"
	KindDownskinPreview RegionKind = "downskin_preview"
)

// Kinds lists every known region kind in declaration order.
var Kinds = []RegionKind{
	KindContour, KindContourUpskin, KindContourDownskin, KindEdges,
	KindHatch, KindInfill, KindUpskin, KindDownskin,
	KindSupport, KindSupportFill,
	KindInfillPreview, KindUpskinPreview, KindDownskinPreview,
}

// Valid reports whether k is one of the known kinds.
func (k RegionKind) Valid() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

// Region is a tagged group of polylines within a layer.
type Region struct {
	Kind      RegionKind `json:"kind"`
	PartID    int        `json:"part_id,omitempty"` // 0 when the region belongs to no part
	Polylines []Polyline `json:"polylines"`
}

// Layer is one horizontal build slice.
type Layer struct {
	// Height is the absolute Z of the layer top in millimetres. Values below
	// 0.001 are treated as unset.
	Height  float64  `json:"height,omitempty"`
	Regions []Region `json:"regions"`
}

// Project is an ordered list of layers plus the metadata needed to place them.
type Project struct {
	Name           string  `json:"name,omitempty"`
	LayerThickness float64 `json:"layer_thickness,omitempty"` // mm
	Layers         []Layer `json:"layers"`
}

// LayerCount returns the number of layers. A nil project has none.
func (p *Project) LayerCount() int {
	if p == nil {
		return 0
	}
	return len(p.Layers)
}

// Layer returns layer i and whether it exists.
func (p *Project) Layer(i int) (Layer, bool) {
	if p == nil || i < 0 || i >= len(p.Layers) {
		return Layer{}, false
	}
	return p.Layers[i], true
}

// Thickness returns the declared layer thickness or [DefaultLayerThickness].
func (p *Project) Thickness() float64 {
	if p == nil || p.LayerThickness <= 0 {
		return DefaultLayerThickness
	}
	return p.LayerThickness
}

// LayerZ returns the absolute Z of layer i: the recorded height when set,
// i × thickness otherwise.
func (p *Project) LayerZ(i int) float64 {
	if l, ok := p.Layer(i); ok && l.Height >= minHeight {
		return l.Height
	}
	return float64(i) * p.Thickness()
}

// Bounds is the axis-aligned extent of a project.
type Bounds struct {
	Min, Max r2.Vec
	Top      float64 // Z of the last layer
}

// Empty reports whether no point contributed to the bounds.
func (b Bounds) Empty() bool {
	return b.Min.X > b.Max.X || b.Min.Y > b.Max.Y
}

// Center returns the XY centre of the bounds.
func (b Bounds) Center() r2.Vec {
	return r2.Scale(0.5, r2.Add(b.Min, b.Max))
}

// Bounds computes the XY extent over every point of every layer together with
// the Z of the top layer. Used to focus a viewer on the part.
func (p *Project) Bounds() Bounds {
	b := Bounds{
		Min: r2.Vec{X: math.Inf(1), Y: math.Inf(1)},
		Max: r2.Vec{X: math.Inf(-1), Y: math.Inf(-1)},
	}
	n := p.LayerCount()
	if n == 0 {
		return b
	}
	for _, l := range p.Layers {
		for _, r := range l.Regions {
			for _, pl := range r.Polylines {
				for _, pt := range pl.Points {
					b.Min.X = math.Min(b.Min.X, pt.X)
					b.Min.Y = math.Min(b.Min.Y, pt.Y)
					b.Max.X = math.Max(b.Max.X, pt.X)
					b.Max.Y = math.Max(b.Max.Y, pt.Y)
				}
			}
		}
	}
	b.Top = p.LayerZ(n - 1)
	return b
}

// Stats summarises a project for display.
type Stats struct {
	Layers    int
	Regions   int
	Polylines int
	Points    int
	Parts     int
	ByKind    map[RegionKind]int // polylines per kind
}

// Stats walks the project once and counts its contents.
func (p *Project) Stats() Stats {
	s := Stats{ByKind: make(map[RegionKind]int)}
	if p == nil {
		return s
	}
	parts := make(map[int]struct{})
	s.Layers = len(p.Layers)
	for _, l := range p.Layers {
		s.Regions += len(l.Regions)
		for _, r := range l.Regions {
			if r.PartID != 0 {
				parts[r.PartID] = struct{}{}
			}
			s.Polylines += len(r.Polylines)
			s.ByKind[r.Kind] += len(r.Polylines)
			for _, pl := range r.Polylines {
				s.Points += len(pl.Points)
			}
		}
	}
	s.Parts = len(parts)
	return s
}
