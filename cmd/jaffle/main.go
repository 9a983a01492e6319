// Command jaffle runs the complete Jaffle Shop pipeline: extract the five API
// resources, merge-load them into the configured destination, then run the
// analytics queries. It is runnable with zero flags; everything has an
// environment or source-level default.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"jaffle/internal/analytics"
	"jaffle/internal/config"
	"jaffle/internal/logging"
	"jaffle/internal/metrics"
	"jaffle/internal/metrics/datadog"
	"jaffle/internal/pipeline"

	// register all destination backends with the storage factory.
	_ "jaffle/internal/storage/all"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "jaffle: %v\n", err)
		os.Exit(1)
	}
}

// run holds the whole pipeline behind an error return so the deferred closers
// (final metrics flush, log sync) still execute on failure; main is the only
// place that exits.
func run(args []string) error {
	var (
		cfgPath        string
		metricsBackend string
		logDir         string
		fullRefresh    bool
		skipAnalytics  bool
	)

	fs := flag.NewFlagSet("jaffle", flag.ContinueOnError)
	fs.StringVar(&cfgPath, "config", "", "optional YAML config overrides")
	fs.StringVar(&metricsBackend, "metrics-backend", "none", "metrics backend to use (datadog, none)")
	fs.StringVar(&logDir, "log-dir", "", "directory for the daily debug log file (empty disables)")
	fs.BoolVar(&fullRefresh, "full-refresh", false, "drop previously loaded state before extracting")
	fs.BoolVar(&skipAnalytics, "skip-analytics", false, "load only; skip the analytics queries")
	verbose := fs.Bool("v", false, "enable verbose logs")
	if err := fs.Parse(args); err != nil {
		return err
	}

	// Optional .env for local runs; absence is fine.
	_ = godotenv.Load()

	logger, closeLogger, err := logging.New(*verbose, logDir)
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer closeLogger()

	cfg, err := config.FromEnv()
	if err != nil {
		logger.Error("invalid configuration", zap.Error(err))
		return err
	}
	if cfgPath != "" {
		if err := cfg.ApplyFile(cfgPath); err != nil {
			logger.Error("invalid configuration", zap.Error(err))
			return err
		}
	}
	if fullRefresh {
		cfg.FullRefresh = true
	}

	closeMetrics := setupMetrics(logger, metricsBackend)
	defer closeMetrics()

	ctx := context.Background()

	runner := pipeline.NewRunner(cfg, logger)
	report, err := runner.Run(ctx)
	if err != nil {
		logger.Error("pipeline failed", zap.Error(err))
		return err
	}

	if !skipAnalytics {
		if err := runAnalytics(ctx, cfg, logger); err != nil {
			logger.Error("analytics failed", zap.Error(err))
			return err
		}
	}

	logger.Info("pipeline completed successfully",
		zap.String("load_id", report.LoadID),
		zap.Int64("total_rows", report.TotalRows()),
		zap.Duration("duration", report.Duration.Truncate(time.Millisecond)),
	)
	return nil
}

// runAnalytics reopens the destination read-only, the way the original opened
// a fresh SQL client after the load completed.
func runAnalytics(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	repo, err := pipeline.OpenDestination(ctx, cfg)
	if err != nil {
		return err
	}
	defer repo.Close()

	runner := &analytics.Runner{DB: repo.Handle(), Logger: logger}
	return runner.RunAll(ctx)
}

// setupMetrics installs the requested metrics backend and returns its
// shutdown function. Unknown names disable metrics rather than failing the run.
func setupMetrics(logger *zap.Logger, backendName string) func() {
	switch backendName {
	case "datadog":
		// The Datadog backend buffers and submits periodically, then submits
		// one final time on Close; long loads show up as a real time series.
		b, err := datadog.NewBackend(context.Background(), datadog.Options{
			JobName: "jaffle_shop_complete",
			Tags:    datadog.ParseTagsCSV(os.Getenv("METRICS_TAGS")),
		})
		if err != nil {
			logger.Warn("datadog backend init failed; metrics disabled", zap.Error(err))
			return func() {}
		}
		metrics.SetBackend(b)
		return func() {
			if err := b.Close(); err != nil {
				logger.Warn("metrics close/flush error", zap.Error(err))
			}
		}
	case "", "none":
		// metrics disabled; nop backend remains
	default:
		logger.Warn("unknown metrics backend; metrics disabled", zap.String("backend", backendName))
	}
	return func() {}
}
