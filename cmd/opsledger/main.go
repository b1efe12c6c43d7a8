package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fernandezvara/opsledger"
	"github.com/fernandezvara/opsledger/internal/config"
	"github.com/fernandezvara/opsledger/internal/logging"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:           "opsledger",
		Short:         "Opsledger - construction site operational ledger",
		Long:          `Opsledger records crusher production, dispatch, inventory, equipment and manpower for a construction site.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML configuration file (environment variables take precedence)")

	rootCmd.AddCommand(
		serveCmd(),
		migrateCmd(),
		rollupCmd(),
		exportCmd(),
		&cobra.Command{
			Use:   "version",
			Short: "Show version information",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "opsledger %s (commit: %s, built: %s)\n", version, commit, date)
			},
		},
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}

// app is the process wiring shared by every command.
type app struct {
	config   config.Config
	logger   *zap.Logger
	registry *prometheus.Registry
	manager  *opsledger.Manager
	db       *opsledger.DB
	closeLog func() error
}

// setup loads configuration, builds the logger and opens the pool. When
// metrics is set the pool reports to a fresh registry.
func setup(ctx context.Context, metrics bool) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logger, closeLog, err := logging.New(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile})
	if err != nil {
		return nil, err
	}
	logger = logger.With(zap.String("version", version))

	a := &app{
		config:   cfg,
		logger:   logger,
		manager:  opsledger.NewManager(nil),
		closeLog: closeLog,
	}

	dbCfg := cfg.Ledger(logger)
	if metrics {
		a.registry = prometheus.NewRegistry()
		a.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		dbCfg = dbCfg.WithMetrics(a.registry)
	}

	a.db, err = a.manager.Acquire(ctx, dbCfg)
	if err != nil {
		logger.Error("failed to open database", zap.Error(err))
		_ = closeLog()
		return nil, err
	}
	return a, nil
}

func (a *app) close() {
	if err := a.manager.Shutdown(); err != nil {
		a.logger.Error("shutdown failed", zap.Error(err))
	}
	_ = a.closeLog()
}
