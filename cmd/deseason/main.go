// Command deseason runs stage 2 of the batch pipeline: for every anomaly
// CSV produced by stage 1, it regroups the records by (site, item), fills
// short gaps, runs STL decomposition with a 24-hour period, subtracts the
// seasonal component, and writes deseasonalized series plus gap reports
// under OUTPUT_DIR. Break gaps longer than TOLERANCE_HOURS stay missing all
// the way through.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	httpadapter "github.com/couchcryptid/aqi-anomaly-etl/internal/adapter/http"
	"github.com/couchcryptid/aqi-anomaly-etl/internal/config"
	"github.com/couchcryptid/aqi-anomaly-etl/internal/observability"
	"github.com/couchcryptid/aqi-anomaly-etl/internal/pipeline"
	"github.com/couchcryptid/aqi-anomaly-etl/internal/stl"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	for _, dir := range []string{cfg.STLDataDir(), cfg.STLReportDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			logger.Error("failed to create output directory", "dir", dir, "error", err)
			os.Exit(1)
		}
	}

	files, err := pipeline.ListAnomalyFiles(cfg.AnomalyDir())
	if err != nil {
		logger.Error("failed to list anomaly files", "error", err)
		os.Exit(1)
	}
	if len(files) == 0 {
		logger.Warn("no anomaly files found; run the anomaly stage first", "dir", cfg.AnomalyDir())
		return
	}

	stage := &pipeline.DeseasonStage{
		ToleranceHours: cfg.ToleranceHours,
		STL:            stl.DefaultOptions(cfg.STLPeriod, cfg.STLSeasonal),
		DataDir:        cfg.STLDataDir(),
		ReportDir:      cfg.STLReportDir(),
		Logger:         logger,
		Metrics:        metrics,
	}
	runner := pipeline.NewRunner(cfg.Workers, cfg.STLReportDir(), logger, metrics, nil)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.MetricsAddr != "" {
		srv := httpadapter.NewServer(cfg.MetricsAddr, runner, logger)
		go func() {
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http server error", "error", err)
			}
		}()
		defer srv.Shutdown(context.Background()) //nolint:errcheck // shutting down anyway
	}

	logger.Info("deseason stage starting",
		"files", len(files),
		"workers", cfg.Workers,
		"tolerance_hours", cfg.ToleranceHours,
	)
	summary := runner.Run(ctx, files, stage)
	logger.Info("deseason stage finished",
		"processed", summary.Processed,
		"failed", summary.Failed,
		"elapsed", summary.Elapsed,
	)
}
