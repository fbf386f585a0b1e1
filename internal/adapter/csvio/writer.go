package csvio

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/couchcryptid/aqi-anomaly-etl/internal/domain"
)

// Output timestamp formats. Data columns carry seconds for backward
// compatibility with downstream plotting; gap-report bounds are
// minute-resolution by convention.
const (
	timestampFormat = "2006-01-02 15:04:05"
	minuteFormat    = "2006-01-02 15:04"
)

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func writeCSV(path string, header []string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", filepath.Base(path), err)
	}
	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := w.WriteAll(rows); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return f.Close()
}

// WriteAnomalyCSV writes the per-file anomaly table.
func WriteAnomalyCSV(path string, records []domain.AnomalyRecord) error {
	rows := make([][]string, len(records))
	for i, r := range records {
		rows[i] = []string{r.Time.Format(timestampFormat), r.Site, r.Item, formatFloat(r.Anomaly)}
	}
	return writeCSV(path, []string{"datetime", "site", "item", "anomaly"}, rows)
}

// WriteRegionalCSV writes the per-file regional-average table. The site
// column carries the synthetic AVG_<region> label.
func WriteRegionalCSV(path string, averages []domain.RegionalAverage) error {
	rows := make([][]string, len(averages))
	for i, a := range averages {
		rows[i] = []string{a.Time.Format(timestampFormat), a.Item, a.Site, formatFloat(a.Anomaly)}
	}
	return writeCSV(path, []string{"datetime", "item", "site", "anomaly"}, rows)
}

// WriteFindingsCSV writes the validation report for one source file.
func WriteFindingsCSV(path string, findings []domain.Finding) error {
	rows := make([][]string, len(findings))
	for i, f := range findings {
		rows[i] = []string{f.File, f.Site, f.Item, string(f.Kind), f.Detail}
	}
	return writeCSV(path, []string{"file", "site", "item", "type", "detail"}, rows)
}

// WriteMajorEventsCSV writes the network-wide outage report for one file.
func WriteMajorEventsCSV(path string, events []domain.MajorEvent) error {
	rows := make([][]string, len(events))
	for i, e := range events {
		rows[i] = []string{e.File, e.Time.Format(timestampFormat), e.Event}
	}
	return writeCSV(path, []string{"file", "datetime", "event"}, rows)
}

// WriteDeseasonalizedCSV writes one file's deseasonalized series. Callers
// drop break-gap positions before calling; every point has a value.
func WriteDeseasonalizedCSV(path string, points []domain.DeseasonalizedPoint) error {
	rows := make([][]string, len(points))
	for i, p := range points {
		rows[i] = []string{p.Time.Format(timestampFormat), p.Site, p.Item, formatFloat(p.Value)}
	}
	return writeCSV(path, []string{"datetime", "site", "item", "anomaly_stl"}, rows)
}

// WriteGapReportCSV writes the long-gap report for one file.
func WriteGapReportCSV(path string, gaps []domain.GapReport) error {
	rows := make([][]string, len(gaps))
	for i, g := range gaps {
		rows[i] = []string{
			g.File, g.Site, g.Item, g.Kind,
			strconv.Itoa(g.DurationHours),
			g.Start.Format(minuteFormat),
			g.End.Format(minuteFormat),
		}
	}
	return writeCSV(path, []string{"file", "site", "item", "type", "duration_hours", "start_time", "end_time"}, rows)
}

// WriteCriticalError records a file-level failure as a durable artifact so
// batch runs never silently drop a failed file.
func WriteCriticalError(dir, sourceFile string, at time.Time, cause error) error {
	path := filepath.Join(dir, "CRITICAL_ERROR_"+sourceFile+".txt")
	body := fmt.Sprintf("%s\nfile: %s\nerror: %v\n", at.Format(timestampFormat), sourceFile, cause)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		return fmt.Errorf("write critical-error artifact: %w", err)
	}
	return nil
}
