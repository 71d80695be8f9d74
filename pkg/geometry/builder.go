package geometry

import (
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/matzehuels/layerview/pkg/slice"
)

// Default builder settings.
const (
	DefaultLineWidth  = 0.2 // mm
	DefaultFillStride = 4
)

// up is the normal of every layer quad.
var up = [3]float32{0, 0, 1}

// Options configures a [Builder].
type Options struct {
	// LineWidth is the drawn width of a scan vector in mm. Default 0.2.
	LineWidth float64

	// FillStride draws every n-th segment of fill regions. 1 draws all of
	// them. Default 4.
	FillStride int

	// Palette selects colours per region kind. Default [DefaultPalette].
	Palette Palette
}

func (o *Options) setDefaults() {
	if o.LineWidth <= 0 {
		o.LineWidth = DefaultLineWidth
	}
	if o.FillStride <= 0 {
		o.FillStride = DefaultFillStride
	}
	if o.Palette == nil {
		o.Palette = DefaultPalette()
	}
}

// Builder converts layers into meshes. It holds no mutable state and is safe
// for concurrent use.
type Builder struct {
	opts Options
}

// NewBuilder returns a builder with opts, zero fields replaced by defaults.
func NewBuilder(opts Options) *Builder {
	opts.setDefaults()
	return &Builder{opts: opts}
}

// Options returns the effective options.
func (b *Builder) Options() Options { return b.opts }

// Build converts one layer lying at height z into its mesh.
func (b *Builder) Build(index int, layer slice.Layer, z float64) LayerGeometry {
	g := LayerGeometry{Index: index, Z: float32(z)}
	half := b.opts.LineWidth / 2

	for _, region := range layer.Regions {
		style, ok := b.opts.Palette.Lookup(region.Kind)
		if !ok {
			continue
		}
		color := partColor(style.Color, region.PartID)

		// The stride counter runs across all polylines of a region, so a hatch
		// stored as many two-point vectors is thinned just like one long
		// serpentine.
		seg := 0
		for _, pl := range region.Polylines {
			if len(pl.Points) < 2 {
				continue
			}
			for i := 1; i < len(pl.Points); i++ {
				a, c := pl.Points[i-1], pl.Points[i]
				if a == c {
					continue
				}
				n := seg
				seg++
				if style.Fill && n%b.opts.FillStride != 0 {
					continue
				}
				g.addQuad(a, c, half, color)
			}
		}
	}
	return g
}

// addQuad appends a thin quad from a to c with the given half width.
func (g *LayerGeometry) addQuad(a, c slice.Point, half float64, color [4]float32) {
	dir := r2.Unit(r2.Sub(c, a))
	off := r2.Scale(half, r2.Vec{X: -dir.Y, Y: dir.X})

	base := uint32(len(g.Vertices))
	for _, p := range [4]r2.Vec{r2.Add(a, off), r2.Sub(a, off), r2.Sub(c, off), r2.Add(c, off)} {
		g.Vertices = append(g.Vertices, Vertex{
			Position: [3]float32{float32(p.X), float32(p.Y), g.Z},
			Normal:   up,
			Color:    color,
		})
	}
	g.Indices = append(g.Indices, base, base+1, base+2, base, base+2, base+3)
}

// partColor combines a style colour with the part encoding in alpha.
func partColor(c [3]float32, partID int) [4]float32 {
	id := partID
	switch {
	case id <= 0:
		id = 1
	case id > 255:
		id = 255
	}
	return [4]float32{c[0], c[1], c[2], float32(id) / 255}
}

// PartID decodes the part from a vertex colour produced by the builder.
// Regions without a part decode as 1.
func PartID(c [4]float32) int {
	return int(c[3]*255 + 0.5)
}

// Bind returns a source that builds the layers of p with b.
func (b *Builder) Bind(p *slice.Project) *ProjectSource {
	return &ProjectSource{builder: b, project: p}
}

// ProjectSource builds the layers of one project on demand.
type ProjectSource struct {
	builder *Builder
	project *slice.Project
}

// LayerCount returns the number of layers in the bound project.
func (s *ProjectSource) LayerCount() int { return s.project.LayerCount() }

// Project returns the bound project.
func (s *ProjectSource) Project() *slice.Project { return s.project }

// BuildLayer builds layer i. An index outside the project yields an empty
// geometry rather than an error.
func (s *ProjectSource) BuildLayer(i int) *LayerGeometry {
	layer, ok := s.project.Layer(i)
	if !ok {
		return &LayerGeometry{Index: i}
	}
	g := s.builder.Build(i, layer, s.project.LayerZ(i))
	return &g
}
