package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matzehuels/layerview/pkg/errors"
	lvio "github.com/matzehuels/layerview/pkg/io"
	"github.com/matzehuels/layerview/pkg/pipeline"
)

// exportOpts holds the command-line flags for the export command.
type exportOpts struct {
	layer   int    // 1-based; 0 selects the top layer
	format  string // obj or json
	output  string
	noCache bool
}

// exportCommand creates the export command for writing cumulative meshes.
func (c *CLI) exportCommand() *cobra.Command {
	opts := exportOpts{format: defaultFormat}

	cmd := &cobra.Command{
		Use:   "export [project.json]",
		Short: "Export the cumulative mesh up to a layer",
		Long: `Export the cumulative mesh up to a layer as OBJ or JSON.

Exports are cached by project content, layer, format and geometry settings,
so exporting an unchanged project again is served from the artifact cache.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := errors.ValidateFormat(opts.format, lvio.Formats...); err != nil {
				return err
			}
			return c.runExport(cmd.Context(), args[0], opts)
		},
	}

	cmd.Flags().IntVarP(&opts.layer, "layer", "l", 0, "top layer, 1-based (default: last layer)")
	cmd.Flags().StringVarP(&opts.format, "format", "f", opts.format, "output format: obj (default), json")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "output file (default: <project>-L<layer>.<format>)")
	cmd.Flags().BoolVar(&opts.noCache, "no-cache", false, "disable caching")

	return cmd
}

func (c *CLI) runExport(ctx context.Context, input string, opts exportOpts) error {
	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}

	runner, err := c.newRunner(ctx, cfg, opts.noCache)
	if err != nil {
		return fmt.Errorf("initialize runner: %w", err)
	}
	defer runner.Close()

	// One-shot export: layers are built on demand by the merge.
	sess, err := c.newSession(cfg, func(o *pipeline.Options) {
		o.ManualPopulate = true
		o.DisablePrefetch = true
	})
	if err != nil {
		return err
	}
	defer sess.Close()

	if _, err := runner.LoadFile(sess, input); err != nil {
		return err
	}
	p, _ := sess.Project()

	n := opts.layer
	if n == 0 {
		n = p.LayerCount()
	}
	if err := errors.ValidateLayer(n, p.LayerCount()); err != nil {
		return err
	}

	spinner := newSpinnerWithContext(ctx, fmt.Sprintf("Merging layers 1-%d...", n))
	spinner.Start()
	data, cacheHit, err := runner.ExportWithCacheInfo(ctx, sess, n-1, opts.format)
	if err != nil {
		spinner.StopWithError("Export failed")
		return fmt.Errorf("export: %w", err)
	}
	spinner.Stop()

	out := opts.output
	if out == "" {
		out = exportPath(input, n, opts.format)
	}
	if err := os.WriteFile(out, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", out, err)
	}

	printSuccess("Exported %s", opts.format)
	printStats(n, 0, cacheHit)
	printFile(out)
	printDetail("%s", formatBytes(len(data)))
	return nil
}

// exportPath derives the default output path from the input file.
func exportPath(input string, layer int, format string) string {
	base := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	return fmt.Sprintf("%s-L%d.%s", base, layer, format)
}
