package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	lvio "github.com/matzehuels/layerview/pkg/io"
	"github.com/matzehuels/layerview/pkg/pipeline"
)

// previewOpts holds the command-line flags for the preview command.
type previewOpts struct {
	layer int  // 1-based; 0 selects the top layer
	wait  bool // wait for background population before building
}

// previewCommand creates the preview command, which drives one interactive
// request through a session and reports how it went.
func (c *CLI) previewCommand() *cobra.Command {
	var opts previewOpts

	cmd := &cobra.Command{
		Use:   "preview [project.json]",
		Short: "Build the cumulative mesh up to a layer and report timings",
		Long: `Build the cumulative mesh up to a layer and report timings.

The layer is requested the same way the terminal requests it while the
operator scrubs, so the result reflects background population, the
cumulative cache and prefetch. Use --wait to measure a fully warmed cache.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runPreview(cmd.Context(), args[0], opts)
		},
	}

	cmd.Flags().IntVarP(&opts.layer, "layer", "l", 0, "layer to show, 1-based (default: top layer)")
	cmd.Flags().BoolVar(&opts.wait, "wait", false, "wait for the layer cache to fill first")

	return cmd
}

func (c *CLI) runPreview(ctx context.Context, path string, opts previewOpts) error {
	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}
	p, err := lvio.ImportProject(path)
	if err != nil {
		return err
	}

	spinner := newSpinnerWithContext(ctx, "Loading project...")
	sess, err := c.newSession(cfg, func(o *pipeline.Options) {
		o.OnProgress = func(pr pipeline.Progress) {
			spinner.SetMessage(fmt.Sprintf("Caching layers %d/%d (%.0f%%)", pr.Done, pr.Total, pr.Percent()))
		}
	})
	if err != nil {
		return err
	}
	defer sess.Close()

	spinner.Start()
	if _, err := sess.LoadProject(p); err != nil {
		spinner.StopWithError("Load failed")
		return err
	}

	if opts.wait {
		prog := newProgress(c.Logger)
		if err := sess.WaitPopulated(ctx); err != nil {
			spinner.Stop()
			return err
		}
		prog.done(fmt.Sprintf("Cached %d layers", p.LayerCount()))
	}

	n := opts.layer
	if n == 0 {
		n = p.LayerCount()
	}
	spinner.SetMessage(fmt.Sprintf("Building layers 1-%d...", n))
	start := time.Now()
	if err := sess.SetCurrentLayer(n); err != nil {
		spinner.StopWithError("Preview failed")
		return err
	}
	if err := sess.WaitIdle(ctx); err != nil {
		spinner.Stop()
		return err
	}
	elapsed := time.Since(start)
	spinner.Stop()

	frame, ok := sess.Current()
	if !ok {
		return fmt.Errorf("no frame delivered for layer %d", n)
	}
	printSuccess("Built %s in %s", p.Name, elapsed.Round(time.Microsecond))
	printStats(frame.Layers, frame.Geometry.TriangleCount(), false)

	st := sess.Status()
	printKeyValue("Vertices", fmt.Sprintf("%d", len(frame.Geometry.Vertices)))
	printKeyValue("Layer cache", fmt.Sprintf("%d / %d", st.CachedLayers, st.Layers))
	printKeyValue("Cumulative", fmt.Sprintf("%d / %d", st.CachedMerged, st.MergedCapacity))
	printKeyValue("Builds", fmt.Sprintf("%d started, %d delivered", st.Scheduler.Started, st.Scheduler.Delivered))
	return nil
}
