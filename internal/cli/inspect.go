package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	lvio "github.com/matzehuels/layerview/pkg/io"
	"github.com/matzehuels/layerview/pkg/slice"
)

// inspectCommand creates the inspect command for summarizing a project.
func (c *CLI) inspectCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect [project.json]",
		Short: "Summarize a build project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := lvio.ImportProject(args[0])
			if err != nil {
				return err
			}
			printProject(p)
			return nil
		},
	}
}

func printProject(p *slice.Project) {
	st := p.Stats()
	name := p.Name
	if name == "" {
		name = "(unnamed)"
	}

	fmt.Println(StyleTitle.Render(name))
	printKeyValue("Layers", strconv.Itoa(st.Layers))
	printKeyValue("Thickness", fmt.Sprintf("%.3f mm", p.Thickness()))
	printKeyValue("Parts", strconv.Itoa(st.Parts))
	printKeyValue("Regions", strconv.Itoa(st.Regions))
	printKeyValue("Polylines", strconv.Itoa(st.Polylines))
	printKeyValue("Points", strconv.Itoa(st.Points))

	if b := p.Bounds(); !b.Empty() {
		printKeyValue("Extent", fmt.Sprintf("%.2f × %.2f × %.2f mm",
			b.Max.X-b.Min.X, b.Max.Y-b.Min.Y, b.Top))
		ctr := b.Center()
		printKeyValue("Center", fmt.Sprintf("(%.2f, %.2f)", ctr.X, ctr.Y))
	}

	for _, k := range slice.Kinds {
		if n := st.ByKind[k]; n > 0 {
			printDetail("%-18s %d", k, n)
		}
	}
}
