// Command anomaly runs stage 1 of the batch pipeline: for every raw hourly
// observation file under DATA_DIR, validate readings, join them against the
// historical baseline index, aggregate regional means, and write per-file
// anomaly CSVs, regional-average CSVs, validation reports, and major-event
// reports under OUTPUT_DIR.
//
// Individual file failures produce CRITICAL_ERROR artifacts and do not
// affect the exit code; the batch is best effort.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/aqi-anomaly-etl/internal/adapter/csvio"
	httpadapter "github.com/couchcryptid/aqi-anomaly-etl/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/aqi-anomaly-etl/internal/adapter/kafka"
	"github.com/couchcryptid/aqi-anomaly-etl/internal/config"
	"github.com/couchcryptid/aqi-anomaly-etl/internal/domain"
	"github.com/couchcryptid/aqi-anomaly-etl/internal/observability"
	"github.com/couchcryptid/aqi-anomaly-etl/internal/pipeline"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	specs, regions, err := loadTables(cfg)
	if err != nil {
		logger.Error("failed to load deployment tables", "error", err)
		os.Exit(1)
	}

	for _, dir := range []string{cfg.AnomalyDir(), cfg.RegionDir(), cfg.ReportDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			logger.Error("failed to create output directory", "dir", dir, "error", err)
			os.Exit(1)
		}
	}

	files, err := pipeline.ListRawFiles(cfg.DataDir)
	if err != nil {
		logger.Error("failed to list input files", "error", err)
		os.Exit(1)
	}
	if len(files) == 0 {
		logger.Warn("no raw files found", "data_dir", cfg.DataDir)
		return
	}

	// Built once here, then shared read-only by every worker.
	index := csvio.LoadBaselineIndex(cfg.DataDir, domain.ItemCodes(specs), logger)
	if index.Len() == 0 {
		logger.Error("no baseline tables could be loaded", "data_dir", cfg.DataDir)
		os.Exit(1)
	}
	logger.Info("baseline index built", "entries", index.Len())

	var alerts *kafkaadapter.AlertPublisher
	if cfg.AlertsEnabled {
		alerts = kafkaadapter.NewAlertPublisher(cfg, logger)
		defer alerts.Close()
		logger.Info("major-event alerting enabled", "topic", cfg.KafkaAlertTopic)
	}

	stage := &pipeline.AnomalyStage{
		Index:      index,
		Specs:      specs,
		Regions:    regions,
		AnomalyDir: cfg.AnomalyDir(),
		RegionDir:  cfg.RegionDir(),
		ReportDir:  cfg.ReportDir(),
		Alerts:     alertSink(alerts),
		Logger:     logger,
		Metrics:    metrics,
	}
	runner := pipeline.NewRunner(cfg.Workers, cfg.ReportDir(), logger, metrics, nil)

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

	logger.Info("anomaly stage starting", "files", len(files), "workers", cfg.Workers)
	summary := runner.Run(ctx, files, stage)
	logger.Info("anomaly stage finished",
		"processed", summary.Processed,
		"failed", summary.Failed,
		"elapsed", summary.Elapsed,
	)
}

// alertSink converts a possibly nil concrete publisher into a possibly nil
// interface, avoiding the typed-nil interface trap.
func alertSink(p *kafkaadapter.AlertPublisher) pipeline.AlertSink {
	if p == nil {
		return nil
	}
	return p
}

func loadTables(cfg *config.Config) (map[string]domain.ItemSpec, *domain.RegionMap, error) {
	specs := domain.DefaultItemSpecs()
	if cfg.ItemSpecsPath != "" {
		var err error
		if specs, err = domain.LoadItemSpecs(cfg.ItemSpecsPath); err != nil {
			return nil, nil, err
		}
	}
	regions := domain.DefaultRegionMap()
	if cfg.RegionMapPath != "" {
		var err error
		if regions, err = domain.LoadRegionMap(cfg.RegionMapPath); err != nil {
			return nil, nil, err
		}
	}
	return specs, regions, nil
}
