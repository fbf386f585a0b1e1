package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/couchcryptid/aqi-anomaly-etl/internal/adapter/csvio"
	"github.com/couchcryptid/aqi-anomaly-etl/internal/domain"
	"github.com/couchcryptid/aqi-anomaly-etl/internal/observability"
)

// AlertSink receives a file's major events. Implemented by the Kafka alert
// publisher; a nil sink disables alerting.
type AlertSink interface {
	PublishMajorEvents(ctx context.Context, events []domain.MajorEvent) error
}

// AnomalyStage processes one raw observation file: validate, join against
// the baseline index, aggregate regions, and write the per-file outputs.
// The index, specs, and region map are shared read-only across workers.
type AnomalyStage struct {
	Index   *domain.BaselineIndex
	Specs   map[string]domain.ItemSpec
	Regions *domain.RegionMap

	AnomalyDir string
	RegionDir  string
	ReportDir  string

	Alerts  AlertSink
	Logger  *slog.Logger
	Metrics *observability.Metrics
}

// ProcessFile implements FileProcessor for stage 1.
func (s *AnomalyStage) ProcessFile(ctx context.Context, path string) error {
	name := sourceName(path)

	rows, err := csvio.ReadRawTable(path)
	if err != nil {
		return err
	}
	s.Metrics.RowsRead.Add(float64(len(rows)))

	clean, findings := domain.ValidateAndClean(name, rows, s.Specs)

	// The hourly span comes from the file's parseable timestamps, not the
	// accepted observations: an hour whose readings were all rejected is
	// still inside the span and must show up in coverage diagnostics.
	var res domain.AnomalyResult
	if minT, maxT, ok := observedSpan(rows); ok {
		res = domain.ComputeAnomalies(name, clean, domain.HourlyRange(minT, maxT), s.Index)
	} else {
		// Not a single parseable timestamp: no time span to diagnose.
		s.Logger.Warn("file has no usable observations", "file", name)
	}
	findings = append(findings, res.Findings...)
	countFindings(s.Metrics, findings)
	s.Metrics.AnomaliesWritten.Add(float64(len(res.Records)))
	s.Metrics.MajorEvents.Add(float64(len(res.MajorEvents)))

	if len(res.Records) > 0 {
		if err := csvio.WriteAnomalyCSV(filepath.Join(s.AnomalyDir, "anomaly_"+name+".csv"), res.Records); err != nil {
			return err
		}
		averages := domain.AggregateByRegion(res.Records, s.Regions)
		s.Metrics.RegionalMeans.Add(float64(len(averages)))
		if len(averages) > 0 {
			if err := csvio.WriteRegionalCSV(filepath.Join(s.RegionDir, "region_avg_"+name+".csv"), averages); err != nil {
				return err
			}
		}
	}

	// Reports are emitted only when non-empty.
	if len(findings) > 0 {
		if err := csvio.WriteFindingsCSV(filepath.Join(s.ReportDir, "report_"+name+".csv"), findings); err != nil {
			return err
		}
	}
	if len(res.MajorEvents) > 0 {
		if err := csvio.WriteMajorEventsCSV(filepath.Join(s.ReportDir, "major_event_"+name+".csv"), res.MajorEvents); err != nil {
			return err
		}
		if s.Alerts != nil {
			if err := s.Alerts.PublishMajorEvents(ctx, res.MajorEvents); err != nil {
				// Alerting is advisory; the file's outputs are already on disk.
				s.Logger.Warn("alert publish failed", "file", name, "error", err)
			}
		}
	}

	s.Logger.Debug("anomaly stage done",
		"file", name,
		"rows", len(rows),
		"clean", len(clean),
		"anomalies", len(res.Records),
		"findings", len(findings),
		"major_events", len(res.MajorEvents),
	)
	return nil
}

// observedSpan returns the earliest and latest parseable timestamps in the
// raw rows. ok is false when no row carries a valid timestamp.
func observedSpan(rows []domain.RawRow) (minT, maxT time.Time, ok bool) {
	for _, row := range rows {
		if !row.TimeValid {
			continue
		}
		if !ok || row.Time.Before(minT) {
			minT = row.Time
		}
		if !ok || row.Time.After(maxT) {
			maxT = row.Time
		}
		ok = true
	}
	return minT, maxT, ok
}

func countFindings(m *observability.Metrics, findings []domain.Finding) {
	for _, f := range findings {
		m.Findings.WithLabelValues(string(f.Kind)).Inc()
	}
}

// ListRawFiles returns the stage-1 inputs under dataDir in sorted order.
func ListRawFiles(dataDir string) ([]string, error) {
	files, err := filepath.Glob(filepath.Join(dataDir, "hourly_*.csv"))
	if err != nil {
		return nil, fmt.Errorf("list raw files: %w", err)
	}
	return files, nil
}
