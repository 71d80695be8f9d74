package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/matzehuels/layerview/pkg/config"
	"github.com/matzehuels/layerview/pkg/errors"
	lvio "github.com/matzehuels/layerview/pkg/io"
	"github.com/matzehuels/layerview/pkg/pipeline"
)

// warmOpts holds the command-line flags for the warm command.
type warmOpts struct {
	formats []string
	step    int // also export every step-th layer; 0 exports only the top
	jobs    int
}

// warmResult summarizes one warmed project.
type warmResult struct {
	path      string
	artifacts int
	hits      int
}

// warmCommand creates the warm command for pre-rendering artifacts.
func (c *CLI) warmCommand() *cobra.Command {
	opts := warmOpts{formats: []string{defaultFormat}}

	cmd := &cobra.Command{
		Use:   "warm [project.json...]",
		Short: "Pre-render exports of several projects into the artifact cache",
		Long: `Pre-render exports of several projects into the artifact cache.

Each project gets its own session and is exported in every requested format,
at the top layer and optionally at every --step layers below it. Projects are
processed in parallel.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, f := range opts.formats {
				if err := errors.ValidateFormat(f, lvio.Formats...); err != nil {
					return err
				}
			}
			if opts.step < 0 {
				return errors.New(errors.ErrCodeInvalidInput, "--step must not be negative")
			}
			return c.runWarm(cmd.Context(), args, opts)
		},
	}

	cmd.Flags().StringSliceVarP(&opts.formats, "format", "f", opts.formats, "formats to render: obj, json")
	cmd.Flags().IntVar(&opts.step, "step", 0, "also export every Nth layer")
	cmd.Flags().IntVarP(&opts.jobs, "jobs", "j", runtime.GOMAXPROCS(0), "projects processed in parallel")

	return cmd
}

func (c *CLI) runWarm(ctx context.Context, files []string, opts warmOpts) error {
	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}
	runner, err := c.newRunner(ctx, cfg, false)
	if err != nil {
		return fmt.Errorf("initialize runner: %w", err)
	}
	defer runner.Close()

	spinner := newSpinnerWithContext(ctx, fmt.Sprintf("Warming 0/%d projects...", len(files)))
	spinner.Start()
	prog := newProgress(c.Logger)

	var finished atomic.Int64
	results := make([]warmResult, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, opts.jobs))
	for i, path := range files {
		g.Go(func() error {
			r, err := c.warmOne(gctx, cfg, runner, path, opts)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			results[i] = r
			n := finished.Add(1)
			spinner.SetMessage(fmt.Sprintf("Warming %d/%d projects...", n, len(files)))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		spinner.StopWithError("Warm failed")
		return err
	}
	spinner.Stop()

	total, hits := 0, 0
	for _, r := range results {
		total += r.artifacts
		hits += r.hits
		printFile(fmt.Sprintf("%s  %s", filepath.Base(r.path),
			StyleDim.Render(fmt.Sprintf("%d artifacts, %d cached", r.artifacts, r.hits))))
	}
	prog.done(fmt.Sprintf("Warmed %d projects", len(files)))
	printSuccess("%d artifacts ready (%d already cached)", total, hits)
	return nil
}

// warmOne exports the configured tops and formats of one project.
func (c *CLI) warmOne(ctx context.Context, cfg *config.Config, runner *pipeline.Runner, path string, opts warmOpts) (warmResult, error) {
	res := warmResult{path: path}
	sess, err := c.newSession(cfg, func(o *pipeline.Options) {
		o.ManualPopulate = true
		o.DisablePrefetch = true
	})
	if err != nil {
		return res, err
	}
	defer sess.Close()

	if _, err := runner.LoadFile(sess, path); err != nil {
		return res, err
	}
	p, _ := sess.Project()

	start := time.Now()
	for _, top := range warmTops(p.LayerCount(), opts.step) {
		for _, format := range opts.formats {
			_, hit, err := runner.ExportWithCacheInfo(ctx, sess, top, format)
			if err != nil {
				return res, err
			}
			res.artifacts++
			if hit {
				res.hits++
			}
		}
	}
	loggerFromContext(ctx).Debug("warmed project", "path", path, "artifacts", res.artifacts, "duration", time.Since(start).Round(time.Millisecond))
	return res, nil
}

// warmTops returns the 0-based tops to export for a project of count layers:
// every step-th layer when step > 0, always ending with the top layer.
func warmTops(count, step int) []int {
	if count == 0 {
		return nil
	}
	var tops []int
	if step > 0 {
		for n := step; n < count; n += step {
			tops = append(tops, n-1)
		}
	}
	return append(tops, count-1)
}
