package cli

import (
	"context"
	"fmt"
	"net"

	"github.com/spf13/cobra"

	"github.com/matzehuels/layerview/pkg/pipeline"
	"github.com/matzehuels/layerview/pkg/server"
)

// serveOpts holds the command-line flags for the serve command. Empty values
// fall back to the [server] config section.
type serveOpts struct {
	addr       string
	projectDir string
	project    string // loaded before serving
	noCache    bool
}

// serveCommand creates the serve command for the preview HTTP API.
func (c *CLI) serveCommand() *cobra.Command {
	var opts serveOpts

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the preview HTTP API",
		Long: `Serve the preview HTTP API.

An external renderer loads a project, moves the current layer and fetches
cumulative meshes over HTTP. Frames, population progress and loading state
are pushed to subscribers of /api/events as server-sent events.

Endpoints:
  GET  /api/status
  POST /api/project             project JSON body, or ?path= below --project-dir
  POST /api/project/synthetic
  PUT  /api/layer/{n}
  GET  /api/frame?format=obj|json
  GET  /api/geometry/{n}?format=obj|json
  GET  /api/events`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runServe(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.addr, "addr", "", "listen address (default from config, 127.0.0.1:8470)")
	cmd.Flags().StringVar(&opts.projectDir, "project-dir", "", "directory ?path= loads are resolved against")
	cmd.Flags().StringVarP(&opts.project, "project", "p", "", "project file to load at startup")
	cmd.Flags().BoolVar(&opts.noCache, "no-cache", false, "disable the artifact cache")

	return cmd
}

func (c *CLI) runServe(ctx context.Context, opts serveOpts) error {
	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}
	if opts.addr != "" {
		cfg.Server.Addr = opts.addr
	}
	if opts.projectDir != "" {
		cfg.Server.ProjectDir = opts.projectDir
	}

	runner, err := c.newRunner(ctx, cfg, opts.noCache)
	if err != nil {
		return fmt.Errorf("initialize runner: %w", err)
	}
	defer runner.Close()

	broker := server.NewBroker()
	sess, err := c.newSession(cfg, func(o *pipeline.Options) {
		o.OnFrame = broker.Frame
		o.OnProgress = broker.Progress
		o.OnLoading = broker.Loading
	})
	if err != nil {
		return err
	}
	defer sess.Close()

	if opts.project != "" {
		id, err := runner.LoadFile(sess, opts.project)
		if err != nil {
			return err
		}
		p, _ := sess.Project()
		printSuccess("Loaded %s", p.Name)
		printDetail("%d layers · id %s", p.LayerCount(), id)
	}

	ln, err := net.Listen("tcp", cfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.Server.Addr, err)
	}

	srv := server.New(sess, runner, server.Options{
		ProjectDir: cfg.Server.ProjectDir,
		Broker:     broker,
		Logger:     c.Logger,
	})

	printInfo("Serving on %s", StyleLink.Render("http://"+ln.Addr().String()+"/api/status"))
	printNextStep("Load a synthetic project", "curl -X POST http://"+ln.Addr().String()+"/api/project/synthetic")

	err = srv.Serve(ctx, ln, cfg.ShutdownTimeout())
	if err == nil && ctx.Err() != nil {
		printInfo("Server stopped")
	}
	return err
}
