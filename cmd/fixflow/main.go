// Package main is the entry point for the fixflow orchestration engine.
package main

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fixflow/fixflow/internal/config"
	"github.com/fixflow/fixflow/internal/guard"
	"github.com/fixflow/fixflow/internal/lock"
	"github.com/fixflow/fixflow/internal/store"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// rootOpts holds the persistent flags shared by all commands.
type rootOpts struct {
	configPath string
	verbose    bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOpts{}

	root := &cobra.Command{
		Use:           "fixflow",
		Short:         "Coordinates concurrent code-fix agents through TDD quality gates",
		Version:       fmt.Sprintf("%s (commit=%s, built=%s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to configuration YAML file")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(newAssessCmd(opts))
	root.AddCommand(newImplementCmd(opts))
	root.AddCommand(newInvokeCmd(opts))
	return root
}

// app wires the process-wide orchestration context: one lock table and one
// limiter per process, injected into every component instead of living in
// package globals.
type app struct {
	cfg     *config.Config
	log     *zap.Logger
	db      *sql.DB
	locks   *lock.Table
	limiter *guard.Limiter
	guard   *guard.Guard
}

func newApp(opts *rootOpts) (*app, error) {
	path := opts.configPath
	if path == "" {
		path = os.Getenv("FIXFLOW_CONFIG")
	}
	if path == "" {
		path = discoverConfig()
	}
	if path == "" {
		return nil, fmt.Errorf("no config found: use --config <path>, set FIXFLOW_CONFIG, or place fixflow.yaml in the working directory")
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	log, err := newLogger(opts.verbose)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	db, err := store.NewDB(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	locks := lock.NewTable(log)
	limiter := guard.NewLimiter(log)
	g := guard.NewGuard(locks, limiter, &store.AuditRepo{}, db, log)

	return &app{
		cfg:     cfg,
		log:     log,
		db:      db,
		locks:   locks,
		limiter: limiter,
		guard:   g,
	}, nil
}

func (a *app) close() {
	_ = a.log.Sync()
	_ = a.db.Close()
}

func (a *app) runTimeout() time.Duration {
	return time.Duration(a.cfg.RunTimeoutSec) * time.Second
}

func newLogger(verbose bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{"stderr"}
	if verbose {
		cfg = zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	return cfg.Build()
}

// discoverConfig looks for fixflow.yaml next to the executable, then in the cwd.
func discoverConfig() string {
	if exe, err := os.Executable(); err == nil {
		candidate := filepath.Join(filepath.Dir(exe), "fixflow.yaml")
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	if _, err := os.Stat("fixflow.yaml"); err == nil {
		return "fixflow.yaml"
	}
	return ""
}
