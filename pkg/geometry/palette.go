package geometry

import "github.com/matzehuels/layerview/pkg/slice"

// Style is how one region kind is drawn.
type Style struct {
	Color [3]float32 // RGB, 0..1
	Fill  bool       // decimated by Options.FillStride
}

// Palette maps region kinds to styles. Kinds without an entry are not drawn.
type Palette map[slice.RegionKind]Style

// Lookup returns the style for kind and whether it is drawn at all.
func (p Palette) Lookup(kind slice.RegionKind) (Style, bool) {
	s, ok := p[kind]
	return s, ok
}

func rgb(r, g, b uint8) [3]float32 {
	return [3]float32{float32(r) / 255, float32(g) / 255, float32(b) / 255}
}

// DefaultPalette returns the terminal's colour scheme: warm orange contours,
// darker fill, grey support. Preview kinds are left out on purpose.
func DefaultPalette() Palette {
	return Palette{
		slice.KindContour:         {Color: rgb(255, 100, 30)},
		slice.KindContourUpskin:   {Color: rgb(255, 150, 51)},
		slice.KindContourDownskin: {Color: rgb(255, 120, 41)},
		slice.KindEdges:           {Color: rgb(255, 100, 30)},
		slice.KindHatch:           {Color: rgb(200, 80, 20), Fill: true},
		slice.KindInfill:          {Color: rgb(200, 80, 20), Fill: true},
		slice.KindUpskin:          {Color: rgb(219, 99, 31), Fill: true},
		slice.KindDownskin:        {Color: rgb(181, 79, 20), Fill: true},
		slice.KindSupport:         {Color: rgb(150, 150, 150)},
		slice.KindSupportFill:     {Color: rgb(120, 120, 120), Fill: true},
	}
}
