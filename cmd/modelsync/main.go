package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jward/modelsync"
	"github.com/jward/modelsync/internal/config"
	"github.com/jward/modelsync/internal/scheduler"
)

var (
	flagFormat   string
	flagLogLevel string
	flagConfig   string
)

// errorHandled is set by outputError so main() doesn't double-print.
var errorHandled bool

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if !errorHandled {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "modelsync",
	Short:         "Keep a project model in sync with its configuration files",
	Long:          "Loads the module, library and artifact files of a project into an entity graph, checks them for consistency and writes them back.",
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		errorHandled = false
		return validateFormat(flagFormat)
	},
	// No Run: prints help by default.
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagFormat, "format", "json", "output format: json|text")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "log level: debug|info|warn|error (default from config, else warn)")
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "config file (default: "+config.FileName+" in the project root)")

	rootCmd.AddCommand(loadCmd)
	rootCmd.AddCommand(dumpCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(saveCmd)
	rootCmd.AddCommand(watchCmd)
}

// project is a loaded project scope and, when configured, the global scope.
type project struct {
	root   string
	cfg    *config.Config
	logger *slog.Logger
	engine *modelsync.Engine
	global *modelsync.Engine
}

func (p *project) Close() {
	p.engine.Close()
	if p.global != nil {
		p.global.Close()
	}
}

// openProject resolves the project root from args, reads its config and
// loads the project. The global scope, if configured, loads after the
// project load it was scheduled behind.
func openProject(ctx context.Context, args []string) (*project, error) {
	dir, err := resolveTargetDir(args)
	if err != nil {
		return nil, err
	}
	root := findProjectRoot(dir)

	cfgPath := root
	if flagConfig != "" {
		cfgPath = flagConfig
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}

	opts, err := modelsync.OptionsFromConfig(root, cfg)
	if err != nil {
		return nil, err
	}
	sched := scheduler.New(scheduler.WithLogger(logger))
	opts = append(opts, modelsync.WithLogger(logger), modelsync.WithScheduler(sched))
	engine, err := modelsync.New(root, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating engine: %w", err)
	}
	p := &project{root: root, cfg: cfg, logger: logger, engine: engine}

	globalDone := make(chan error, 1)
	if cfg.GlobalDir != "" {
		dir := cfg.GlobalDir
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(root, dir)
		}
		p.global, err = modelsync.NewGlobal(dir, modelsync.WithLogger(logger), modelsync.WithScheduler(sched))
		if err != nil {
			engine.Close()
			return nil, fmt.Errorf("creating global engine: %w", err)
		}
		go func() { globalDone <- p.global.LoadDeferred(ctx, cfg.GetGlobalLoadDelay()) }()
	} else {
		globalDone <- nil
	}

	// The global load waits on the project load, so the project goes first.
	err = engine.Load(ctx)
	if gerr := <-globalDone; err == nil && gerr != nil {
		err = fmt.Errorf("loading global scope: %w", gerr)
	}
	if err != nil {
		p.Close()
		return nil, err
	}
	return p, nil
}

// newLogger builds the stderr logger from --log-level or the config.
func newLogger(cfg *config.Config) (*slog.Logger, error) {
	level := slog.LevelWarn
	if cfg.LogLevel != "" {
		level = cfg.GetLogLevel()
	}
	if flagLogLevel != "" {
		l, err := config.ParseLevel(flagLogLevel)
		if err != nil {
			return nil, err
		}
		level = l
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})), nil
}

// resolveTargetDir returns the absolute path of the directory to open.
func resolveTargetDir(args []string) (string, error) {
	dir := "."
	if len(args) > 0 {
		dir = args[0]
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolving path %q: %w", dir, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("directory not found: %s", abs)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("not a directory: %s", abs)
	}
	return abs, nil
}

// findProjectRoot walks up from startDir looking for a config file or a
// .idea directory. Returns startDir if neither is found.
func findProjectRoot(startDir string) string {
	dir := startDir
	for {
		if _, err := os.Stat(filepath.Join(dir, config.FileName)); err == nil {
			return dir
		}
		if info, err := os.Stat(filepath.Join(dir, config.DefaultConfigDir)); err == nil && info.IsDir() {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return startDir
		}
		dir = parent
	}
}
