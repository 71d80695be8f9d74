package slice_test

import (
	"fmt"

	"github.com/matzehuels/layerview/pkg/slice"
)

func ExampleSynthetic() {
	p := slice.Synthetic(slice.SyntheticOptions{Layers: 50, Parts: 4, LayerThickness: 0.04})

	fmt.Println("Layers:", p.LayerCount())
	fmt.Printf("Top Z: %.2f\n", p.LayerZ(p.LayerCount()-1))
	fmt.Println("Parts:", p.Stats().Parts)
	// Output:
	// Layers: 50
	// Top Z: 2.00
	// Parts: 4
}

func ExampleProject_LayerZ() {
	p := &slice.Project{
		LayerThickness: 0.05,
		Layers:         []slice.Layer{{Height: 0.05}, {}, {Height: 0.15}},
	}
	for i := range p.Layers {
		fmt.Printf("layer %d: z=%.2f\n", i, p.LayerZ(i))
	}
	// Output:
	// layer 0: z=0.05
	// layer 1: z=0.05
	// layer 2: z=0.15
}
