package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"path/filepath"
	"sort"
	"time"

	"github.com/couchcryptid/aqi-anomaly-etl/internal/adapter/csvio"
	"github.com/couchcryptid/aqi-anomaly-etl/internal/domain"
	"github.com/couchcryptid/aqi-anomaly-etl/internal/observability"
	"github.com/couchcryptid/aqi-anomaly-etl/internal/stl"
)

// DeseasonStage processes one stage-1 anomaly CSV: regroup by (site, item),
// reindex onto the file's complete hourly grid, and deseasonalize each
// series. Groups are independent; a degenerate series falls back without
// affecting the rest of the file.
type DeseasonStage struct {
	ToleranceHours int
	STL            stl.Options

	DataDir   string // deseasonalized CSV output
	ReportDir string // gap reports

	Logger  *slog.Logger
	Metrics *observability.Metrics
}

// ProcessFile implements FileProcessor for stage 2.
func (s *DeseasonStage) ProcessFile(_ context.Context, path string) error {
	name := filepath.Base(path)

	rows, err := csvio.ReadAnomalyTable(path)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		s.Logger.Warn("anomaly file has no usable rows", "file", name)
		return nil
	}

	minT, maxT := rows[0].Time, rows[0].Time
	for _, row := range rows[1:] {
		if row.Time.Before(minT) {
			minT = row.Time
		}
		if row.Time.After(maxT) {
			maxT = row.Time
		}
	}
	grid := domain.HourlyRange(minT, maxT)

	type seriesKey struct {
		Site string
		Item string
	}
	groups := make(map[seriesKey][]csvio.SeriesRow)
	for _, row := range rows {
		key := seriesKey{row.Site, row.Item}
		groups[key] = append(groups[key], row)
	}
	keys := make([]seriesKey, 0, len(groups))
	for key := range groups {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Site != keys[j].Site {
			return keys[i].Site < keys[j].Site
		}
		return keys[i].Item < keys[j].Item
	})

	var points []domain.DeseasonalizedPoint
	var gaps []domain.GapReport
	for _, key := range keys {
		group := groups[key]
		times := make([]time.Time, len(group))
		values := make([]float64, len(group))
		for i, row := range group {
			times[i] = row.Time
			values[i] = row.Value
		}
		// Reindex dedupes keep-first, matching the baseline index rule.
		series := domain.Reindex(grid[0], len(grid), times, values)

		res := domain.Deseasonalize(name, key.Site, key.Item, grid, series, s.ToleranceHours, s.STL)
		s.Metrics.Decompositions.WithLabelValues(res.Outcome).Inc()
		s.Metrics.GapReports.Add(float64(len(res.Gaps)))
		gaps = append(gaps, res.Gaps...)

		for i, v := range res.Values {
			if math.IsNaN(v) {
				continue
			}
			points = append(points, domain.DeseasonalizedPoint{
				Time: grid[i], Site: key.Site, Item: key.Item, Value: v,
			})
		}
	}

	if len(points) > 0 {
		if err := csvio.WriteDeseasonalizedCSV(filepath.Join(s.DataDir, "stl_"+name), points); err != nil {
			return err
		}
	}
	if len(gaps) > 0 {
		if err := csvio.WriteGapReportCSV(filepath.Join(s.ReportDir, "gap_report_"+name), gaps); err != nil {
			return err
		}
	}

	s.Logger.Debug("deseason stage done",
		"file", name,
		"series", len(keys),
		"points", len(points),
		"gaps", len(gaps),
	)
	return nil
}

// ListAnomalyFiles returns the stage-2 inputs (stage-1 anomaly CSVs) in
// sorted order.
func ListAnomalyFiles(anomalyDir string) ([]string, error) {
	files, err := filepath.Glob(filepath.Join(anomalyDir, "*.csv"))
	if err != nil {
		return nil, fmt.Errorf("list anomaly files: %w", err)
	}
	return files, nil
}
