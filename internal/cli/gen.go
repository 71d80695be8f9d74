package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	lvio "github.com/matzehuels/layerview/pkg/io"
	"github.com/matzehuels/layerview/pkg/slice"
)

// genCommand creates the gen command for writing synthetic projects.
func (c *CLI) genCommand() *cobra.Command {
	var output string
	opts := slice.SyntheticOptions{}

	cmd := &cobra.Command{
		Use:   "gen",
		Short: "Write a synthetic build project",
		Long: `Write a synthetic build project.

The project holds square parts on a grid with one contour and one hatch
region per part and layer. Hatch direction alternates between layers. It is
meant for trying out the preview without a slicer at hand.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if output == "" {
				output = "synthetic.json"
			}
			p := slice.Synthetic(opts)
			if err := lvio.ExportProject(p, output); err != nil {
				return fmt.Errorf("write project: %w", err)
			}

			st := p.Stats()
			printSuccess("Generated %s", p.Name)
			printStats(st.Layers, 0, false)
			printFile(output)
			printNewline()
			printNextStep("Scrub through it", appName+" scrub "+output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default: synthetic.json)")
	cmd.Flags().StringVar(&opts.Name, "name", "", "project name")
	cmd.Flags().IntVarP(&opts.Layers, "layers", "n", 0, "number of layers (default 100)")
	cmd.Flags().IntVar(&opts.Parts, "parts", 0, "number of parts (default 4)")
	cmd.Flags().Float64Var(&opts.PartSize, "size", 0, "part edge length in mm (default 20)")
	cmd.Flags().Float64Var(&opts.Gap, "gap", 0, "gap between parts in mm (default 10)")
	cmd.Flags().Float64Var(&opts.HatchSpacing, "hatch", 0, "hatch spacing in mm (default 0.5)")
	cmd.Flags().Float64Var(&opts.LayerThickness, "thickness", 0, "layer thickness in mm")
	cmd.Flags().Float64Var(&opts.Taper, "taper", 0, "fraction the parts shrink by at the top layer, 0..1")
	cmd.Flags().BoolVar(&opts.OmitHeights, "omit-heights", false, "leave layer heights unset")

	return cmd
}
