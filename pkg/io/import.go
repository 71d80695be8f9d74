package io

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/matzehuels/layerview/pkg/errors"
	"github.com/matzehuels/layerview/pkg/slice"
)

type project struct {
	Name           string  `json:"name,omitempty"`
	LayerThickness float64 `json:"layer_thickness,omitempty"`
	Layers         []layer `json:"layers"`
}

type layer struct {
	Height  float64  `json:"height,omitempty"`
	Regions []region `json:"regions"`
}

type region struct {
	Kind      string         `json:"kind"`
	PartID    int            `json:"part_id,omitempty"`
	Polylines [][][2]float64 `json:"polylines"`
}

// ReadProject decodes a JSON project from r.
//
// ReadProject returns an INVALID_PROJECT error if the JSON is malformed, a
// region has an unknown kind or a negative part ID, or the decoded project
// fails [errors.ValidateProject]. ReadProject does not close r.
func ReadProject(r io.Reader) (*slice.Project, error) {
	var data project
	if err := json.NewDecoder(r).Decode(&data); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidProject, err, "malformed project JSON")
	}

	p := &slice.Project{
		Name:           data.Name,
		LayerThickness: data.LayerThickness,
		Layers:         make([]slice.Layer, len(data.Layers)),
	}
	for li, l := range data.Layers {
		out := slice.Layer{Height: l.Height, Regions: make([]slice.Region, len(l.Regions))}
		for ri, rg := range l.Regions {
			kind := slice.RegionKind(rg.Kind)
			if !kind.Valid() {
				return nil, errors.New(errors.ErrCodeInvalidProject,
					"layer %d region %d: unknown kind %q", li+1, ri, rg.Kind)
			}
			if rg.PartID < 0 {
				return nil, errors.New(errors.ErrCodeInvalidProject,
					"layer %d region %d: negative part id %d", li+1, ri, rg.PartID)
			}
			out.Regions[ri] = slice.Region{
				Kind:      kind,
				PartID:    rg.PartID,
				Polylines: polylines(rg.Polylines),
			}
		}
		p.Layers[li] = out
	}

	if err := errors.ValidateProject(p); err != nil {
		return nil, err
	}
	return p, nil
}

func polylines(in [][][2]float64) []slice.Polyline {
	out := make([]slice.Polyline, len(in))
	for i, pts := range in {
		pl := slice.Polyline{Points: make([]slice.Point, len(pts))}
		for j, xy := range pts {
			pl.Points[j] = slice.Point{X: xy[0], Y: xy[1]}
		}
		out[i] = pl
	}
	return out
}

// ImportProject reads the JSON project file at path.
func ImportProject(path string) (*slice.Project, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrap(errors.ErrCodeFileNotFound, err, "project file not found: %s", path)
		}
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	p, err := ReadProject(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// WriteProject encodes p as JSON. The output can be read back with
// [ReadProject].
func WriteProject(p *slice.Project, w io.Writer) error {
	out := project{
		Name:           p.Name,
		LayerThickness: p.LayerThickness,
		Layers:         make([]layer, len(p.Layers)),
	}
	for li, l := range p.Layers {
		ol := layer{Height: l.Height, Regions: make([]region, len(l.Regions))}
		for ri, rg := range l.Regions {
			or := region{Kind: string(rg.Kind), PartID: rg.PartID, Polylines: make([][][2]float64, len(rg.Polylines))}
			for pi, pl := range rg.Polylines {
				pts := make([][2]float64, len(pl.Points))
				for j, pt := range pl.Points {
					pts[j] = [2]float64{round(pt.X), round(pt.Y)}
				}
				or.Polylines[pi] = pts
			}
			ol.Regions[ri] = or
		}
		out.Layers[li] = ol
	}

	enc := json.NewEncoder(w)
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	return nil
}

// ExportProject writes p to a JSON file at path.
func ExportProject(p *slice.Project, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := WriteProject(p, f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// round trims coordinates to micrometres to keep files small.
func round(v float64) float64 {
	return math.Round(v*1000) / 1000
}
