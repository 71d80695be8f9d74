package slice

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r2"
)

// SyntheticOptions controls [Synthetic] project generation.
type SyntheticOptions struct {
	Name           string
	Layers         int     // number of layers (default 100)
	Parts          int     // parts laid out on a square grid (default 4)
	PartSize       float64 // edge length of each square part at the base, mm (default 20)
	Gap            float64 // spacing between parts, mm (default 10)
	HatchSpacing   float64 // distance between hatch vectors, mm (default 0.5)
	LayerThickness float64 // mm (default DefaultLayerThickness)
	Taper          float64 // fraction the part shrinks by at the top layer, 0..1
	OmitHeights    bool    // leave Layer.Height unset to exercise the thickness fallback
}

func (o *SyntheticOptions) setDefaults() {
	if o.Name == "" {
		o.Name = "synthetic"
	}
	if o.Layers <= 0 {
		o.Layers = 100
	}
	if o.Parts <= 0 {
		o.Parts = 4
	}
	if o.PartSize <= 0 {
		o.PartSize = 20
	}
	if o.Gap < 0 {
		o.Gap = 0
	} else if o.Gap == 0 {
		o.Gap = 10
	}
	if o.HatchSpacing <= 0 {
		o.HatchSpacing = 0.5
	}
	if o.LayerThickness <= 0 {
		o.LayerThickness = DefaultLayerThickness
	}
	o.Taper = math.Max(0, math.Min(1, o.Taper))
}

// Synthetic generates a deterministic project of square parts. Every layer has
// one contour region and one hatch region per part; hatch direction alternates
// between X and Y on consecutive layers the way real scan strategies rotate.
func Synthetic(opts SyntheticOptions) *Project {
	opts.setDefaults()

	cols := int(math.Ceil(math.Sqrt(float64(opts.Parts))))
	p := &Project{
		Name:           opts.Name,
		LayerThickness: opts.LayerThickness,
		Layers:         make([]Layer, opts.Layers),
	}

	for i := range p.Layers {
		frac := 0.0
		if opts.Layers > 1 {
			frac = float64(i) / float64(opts.Layers-1)
		}
		size := opts.PartSize * (1 - opts.Taper*frac)

		var regions []Region
		for part := 0; part < opts.Parts; part++ {
			row, col := part/cols, part%cols
			pitch := opts.PartSize + opts.Gap
			center := r2.Vec{
				X: float64(col)*pitch + opts.PartSize/2,
				Y: float64(row)*pitch + opts.PartSize/2,
			}
			regions = append(regions,
				Region{Kind: KindContour, PartID: part + 1, Polylines: []Polyline{square(center, size)}},
				Region{Kind: KindHatch, PartID: part + 1, Polylines: hatch(center, size, opts.HatchSpacing, i%2 == 1)},
			)
		}

		p.Layers[i].Regions = regions
		if !opts.OmitHeights {
			p.Layers[i].Height = float64(i+1) * opts.LayerThickness
		}
	}
	return p
}

// square returns a closed square outline centred on c.
func square(c r2.Vec, size float64) Polyline {
	h := size / 2
	return Polyline{Points: []Point{
		{X: c.X - h, Y: c.Y - h},
		{X: c.X + h, Y: c.Y - h},
		{X: c.X + h, Y: c.Y + h},
		{X: c.X - h, Y: c.Y + h},
		{X: c.X - h, Y: c.Y - h},
	}}
}

// hatch fills a square centred on c with parallel two-point scan vectors.
func hatch(c r2.Vec, size, spacing float64, alongY bool) []Polyline {
	h := size / 2
	n := int(size / spacing)
	lines := make([]Polyline, 0, n)
	for k := 1; k < n; k++ {
		off := -h + float64(k)*spacing
		var a, b Point
		if alongY {
			a, b = Point{X: c.X + off, Y: c.Y - h}, Point{X: c.X + off, Y: c.Y + h}
		} else {
			a, b = Point{X: c.X - h, Y: c.Y + off}, Point{X: c.X + h, Y: c.Y + off}
		}
		// Serpentine order, as a scanner would travel.
		if k%2 == 0 {
			a, b = b, a
		}
		lines = append(lines, Polyline{Points: []Point{a, b}})
	}
	return lines
}

// String implements fmt.Stringer for log output.
func (o SyntheticOptions) String() string {
	return fmt.Sprintf("layers=%d parts=%d size=%.1f hatch=%.2f", o.Layers, o.Parts, o.PartSize, o.HatchSpacing)
}
