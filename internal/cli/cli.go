// Package cli implements the layerview command-line interface.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/matzehuels/layerview/pkg/buildinfo"
	"github.com/matzehuels/layerview/pkg/cache"
	"github.com/matzehuels/layerview/pkg/config"
	"github.com/matzehuels/layerview/pkg/pipeline"
)

// =============================================================================
// Constants
// =============================================================================

const (
	// appName is the application name used for directories and display.
	appName = "layerview"

	// defaultFormat is the export format used when --format is not given.
	defaultFormat = "obj"
)

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// =============================================================================
// CLI - Central CLI State
// =============================================================================

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger

	configPath string
}

// New creates a new CLI instance with a default logger.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{Logger: newLogger(w, level)}
}

// SetLogLevel updates the logger's level. At debug level the observability
// hooks are routed to the logger as well.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
	if level <= log.DebugLevel {
		installLogHooks(c.Logger)
	}
}

// RootCommand creates the root cobra command with all subcommands registered.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   appName,
		Short: "Layerview previews laser powder-bed builds layer by layer",
		Long: `Layerview turns sliced build projects into cumulative 3D meshes of the
part as it stands after any layer. Layer meshes are cached in the background
after a project is loaded, so scrubbing through thousands of layers stays
responsive.`,
		Version:      buildinfo.Version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cmd.SetContext(withLogger(cmd.Context(), c.Logger))
			return nil
		},
	}

	root.SetVersionTemplate(buildinfo.Template())
	root.PersistentFlags().StringVar(&c.configPath, "config", "", "config file (default: "+defaultConfigHint()+")")

	root.AddCommand(c.genCommand())
	root.AddCommand(c.inspectCommand())
	root.AddCommand(c.previewCommand())
	root.AddCommand(c.exportCommand())
	root.AddCommand(c.scrubCommand())
	root.AddCommand(c.serveCommand())
	root.AddCommand(c.warmCommand())
	root.AddCommand(c.cacheCommand())
	root.AddCommand(c.completionCommand())

	return root
}

// =============================================================================
// Config and Session Factory
// =============================================================================

// loadConfig reads --config, or the default config file when present.
func (c *CLI) loadConfig() (*config.Config, error) {
	cfg, err := config.LoadOrDefault(c.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// newSession creates a session from cfg. The callbacks in opts are kept.
func (c *CLI) newSession(cfg *config.Config, configure func(*pipeline.Options)) (*pipeline.Session, error) {
	opts := cfg.PipelineOptions(c.Logger)
	if configure != nil {
		configure(&opts)
	}
	sess, err := pipeline.NewSession(opts)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return sess, nil
}

// =============================================================================
// Runner Factory
// =============================================================================

// newRunner creates a pipeline runner backed by the configured artifact cache.
func (c *CLI) newRunner(ctx context.Context, cfg *config.Config, noCache bool) (*pipeline.Runner, error) {
	ac, err := newCache(ctx, cfg, noCache)
	if err != nil {
		return nil, err
	}
	var keyer cache.Keyer
	if cfg.Artifacts.KeyPrefix != "" {
		keyer = cache.NewScopedKeyer(nil, cfg.Artifacts.KeyPrefix)
	}
	r := pipeline.NewRunner(ac, keyer, c.Logger)
	r.TTL = cfg.ArtifactTTL()
	return r, nil
}

func newCache(ctx context.Context, cfg *config.Config, noCache bool) (cache.Cache, error) {
	if noCache {
		return cache.NewNullCache(), nil
	}
	switch cfg.Artifacts.Backend {
	case config.BackendNone:
		return cache.NewNullCache(), nil
	case config.BackendRedis:
		rc, err := cache.NewRedisCache(ctx, cache.RedisConfig{
			Addr:     cfg.Artifacts.RedisAddr,
			Password: cfg.Artifacts.RedisPassword,
			DB:       cfg.Artifacts.RedisDB,
		})
		if err != nil {
			return nil, fmt.Errorf("connect artifact cache: %w", err)
		}
		return rc, nil
	}
	dir, err := artifactDir(cfg)
	if err != nil {
		return cache.NewNullCache(), nil
	}
	return cache.NewFileCache(dir)
}

// =============================================================================
// Paths
// =============================================================================

// cacheDir returns the cache directory using XDG standard (~/.cache/layerview/).
func cacheDir() (string, error) {
	if cacheHome := os.Getenv("XDG_CACHE_HOME"); cacheHome != "" {
		return filepath.Join(cacheHome, appName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".cache", appName), nil
}

// artifactDir returns the file cache directory, honouring artifacts.dir.
func artifactDir(cfg *config.Config) (string, error) {
	if cfg.Artifacts.Dir != "" {
		return cfg.Artifacts.Dir, nil
	}
	return cacheDir()
}

func defaultConfigHint() string {
	p, err := config.DefaultPath()
	if err != nil {
		return config.FileName
	}
	return p
}
