package pipeline

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/aqi-anomaly-etl/internal/adapter/csvio"
	"github.com/couchcryptid/aqi-anomaly-etl/internal/domain"
	"github.com/couchcryptid/aqi-anomaly-etl/internal/observability"
	"github.com/couchcryptid/aqi-anomaly-etl/internal/stl"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type funcProcessor func(ctx context.Context, path string) error

func (f funcProcessor) ProcessFile(ctx context.Context, path string) error { return f(ctx, path) }

func TestRunner_BestEffortBatch(t *testing.T) {
	errorDir := t.TempDir()
	r := NewRunner(3, errorDir, testLogger(), observability.NewMetricsForTesting(), clockwork.NewFakeClock())

	proc := funcProcessor(func(_ context.Context, path string) error {
		switch filepath.Base(path) {
		case "hourly_bad.csv":
			return errors.New("unreadable")
		case "hourly_panic.csv":
			panic("malformed beyond repair")
		}
		return nil
	})

	files := []string{"/in/hourly_a.csv", "/in/hourly_bad.csv", "/in/hourly_panic.csv", "/in/hourly_b.csv"}
	summary := r.Run(context.Background(), files, proc)

	assert.Equal(t, 2, summary.Processed)
	assert.Equal(t, 2, summary.Failed)

	// Both failures leave a durable artifact, the panic included.
	assert.FileExists(t, filepath.Join(errorDir, "CRITICAL_ERROR_hourly_bad.txt"))
	assert.FileExists(t, filepath.Join(errorDir, "CRITICAL_ERROR_hourly_panic.txt"))

	body, err := os.ReadFile(filepath.Join(errorDir, "CRITICAL_ERROR_hourly_panic.txt"))
	require.NoError(t, err)
	assert.Contains(t, string(body), "panic")
}

func TestRunner_Readiness(t *testing.T) {
	r := NewRunner(1, t.TempDir(), testLogger(), observability.NewMetricsForTesting(), nil)

	assert.Error(t, r.CheckReadiness(context.Background()), "not ready before the batch starts")
	done, total := r.Progress()
	assert.Zero(t, done)
	assert.Zero(t, total)

	proc := funcProcessor(func(context.Context, string) error { return nil })
	r.Run(context.Background(), []string{"/in/hourly_a.csv", "/in/hourly_b.csv"}, proc)

	assert.NoError(t, r.CheckReadiness(context.Background()))
	done, total = r.Progress()
	assert.Equal(t, int64(2), done)
	assert.Equal(t, int64(2), total)
}

func TestRunner_ContextCancelStopsFeeding(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	release := make(chan struct{})

	var once sync.Once
	proc := funcProcessor(func(context.Context, string) error {
		once.Do(func() { close(started) })
		<-release
		return nil
	})

	go func() {
		<-started
		cancel()
		time.Sleep(50 * time.Millisecond)
		close(release)
	}()

	r := NewRunner(1, t.TempDir(), testLogger(), observability.NewMetricsForTesting(), nil)
	summary := r.Run(ctx, []string{"/in/a.csv", "/in/b.csv", "/in/c.csv"}, proc)

	assert.Equal(t, 1, summary.Processed, "only the in-flight task finishes after cancellation")
	assert.Equal(t, 0, summary.Failed)
}

func TestListRawFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"hourly_202403.csv", "hourly_202404.csv", "notes.txt", "o3_hourly_avg_fast.csv"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}

	files, err := ListRawFiles(dir)
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "hourly_202403.csv", filepath.Base(files[0]))
	assert.Equal(t, "hourly_202404.csv", filepath.Base(files[1]))
}

type captureSink struct {
	events []domain.MajorEvent
	err    error
}

func (c *captureSink) PublishMajorEvents(_ context.Context, events []domain.MajorEvent) error {
	if c.err != nil {
		return c.err
	}
	c.events = append(c.events, events...)
	return nil
}

// rawFixture writes a stage-1 input with a known defect mix: one hour where
// no station reports (a major event), one value above the O3 ceiling, one
// empty value, and one non-numeric value.
func rawFixture(t *testing.T, dir string) string {
	t.Helper()
	start := time.Date(2024, 2, 14, 0, 0, 0, 0, time.UTC)

	var b strings.Builder
	b.WriteString("datetime,site,item,value\n")
	for h := 0; h < 24; h++ {
		if h == 12 {
			continue // silent hour across the whole network
		}
		ts := start.Add(time.Duration(h) * time.Hour).Format("2006-01-02 15:04:05")
		for _, site := range []string{"板橋", "臺南"} {
			value := fmt.Sprintf("%g", 30+float64(h))
			switch {
			case h == 3 && site == "板橋":
				value = "" // null
			case h == 5 && site == "板橋":
				value = "x" // invalid text
			case h == 7 && site == "臺南":
				value = "900" // above the O3 ceiling
			}
			fmt.Fprintf(&b, "%s,%s,O3,%s\n", ts, site, value)
		}
	}

	path := filepath.Join(dir, "hourly_202402.csv")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))
	return path
}

func baselineFixture() *domain.BaselineIndex {
	index := domain.NewBaselineIndex()
	var entries []domain.BaselineEntry
	for h := 0; h < 24; h++ {
		for _, site := range []string{"板橋", "臺南"} {
			entries = append(entries, domain.BaselineEntry{Site: site, DayOfYear: 45, Hour: h, Value: 30})
		}
	}
	index.AddItem("O3", entries)
	return index
}

func TestAnomalyStage_EndToEnd(t *testing.T) {
	inDir := t.TempDir()
	outDir := t.TempDir()
	path := rawFixture(t, inDir)

	sink := &captureSink{}
	stage := &AnomalyStage{
		Index:      baselineFixture(),
		Specs:      domain.DefaultItemSpecs(),
		Regions:    domain.DefaultRegionMap(),
		AnomalyDir: outDir,
		RegionDir:  outDir,
		ReportDir:  outDir,
		Alerts:     sink,
		Logger:     testLogger(),
		Metrics:    observability.NewMetricsForTesting(),
	}
	require.NoError(t, stage.ProcessFile(context.Background(), path))

	// Anomaly table: baseline is a flat 30, so hour h carries anomaly h.
	rows, err := csvio.ReadAnomalyTable(filepath.Join(outDir, "anomaly_hourly_202402.csv"))
	require.NoError(t, err)
	require.NotEmpty(t, rows)
	byKey := map[string]float64{}
	for _, r := range rows {
		byKey[r.Site+"|"+r.Time.Format("15")] = r.Value
	}
	assert.Equal(t, 0.0, byKey["板橋|00"])
	assert.Equal(t, 9.0, byKey["板橋|09"])
	_, has := byKey["臺南|07"]
	assert.False(t, has, "out-of-range value never reaches the join")

	// Regional averages: both stations sit in different regions, so each
	// region's mean equals its single station's anomaly.
	regional, err := os.ReadFile(filepath.Join(outDir, "region_avg_hourly_202402.csv"))
	require.NoError(t, err)
	assert.Contains(t, string(regional), "AVG_北")
	assert.Contains(t, string(regional), "AVG_南")

	// Findings report covers all five kinds for this fixture.
	report, err := os.ReadFile(filepath.Join(outDir, "report_hourly_202402.csv"))
	require.NoError(t, err)
	for _, kind := range []string{"null_value", "invalid_text", "out_of_range", "missing_timestamps"} {
		assert.Contains(t, string(report), kind)
	}

	// The silent hour is a major event, both on disk and on the alert sink.
	events, err := os.ReadFile(filepath.Join(outDir, "major_event_hourly_202402.csv"))
	require.NoError(t, err)
	assert.Contains(t, string(events), "network-wide outage")
	assert.Contains(t, string(events), "2024-02-14 12:00:00")
	require.Len(t, sink.events, 1)
	assert.Equal(t, 12, sink.events[0].Time.Hour())
}

func TestAnomalyStage_AlertFailureIsNotFatal(t *testing.T) {
	inDir := t.TempDir()
	outDir := t.TempDir()
	path := rawFixture(t, inDir)

	stage := &AnomalyStage{
		Index:      baselineFixture(),
		Specs:      domain.DefaultItemSpecs(),
		Regions:    domain.DefaultRegionMap(),
		AnomalyDir: outDir,
		RegionDir:  outDir,
		ReportDir:  outDir,
		Alerts:     &captureSink{err: errors.New("broker down")},
		Logger:     testLogger(),
		Metrics:    observability.NewMetricsForTesting(),
	}
	assert.NoError(t, stage.ProcessFile(context.Background(), path))
	assert.FileExists(t, filepath.Join(outDir, "major_event_hourly_202402.csv"))
}

func TestAnomalyStage_EmptyFile(t *testing.T) {
	inDir := t.TempDir()
	path := filepath.Join(inDir, "hourly_empty.csv")
	require.NoError(t, os.WriteFile(path, []byte("datetime,site,item,value\n"), 0o644))

	stage := &AnomalyStage{
		Index:      baselineFixture(),
		Specs:      domain.DefaultItemSpecs(),
		Regions:    domain.DefaultRegionMap(),
		AnomalyDir: inDir,
		RegionDir:  inDir,
		ReportDir:  inDir,
		Logger:     testLogger(),
		Metrics:    observability.NewMetricsForTesting(),
	}
	assert.NoError(t, stage.ProcessFile(context.Background(), path))
	assert.NoFileExists(t, filepath.Join(inDir, "anomaly_hourly_empty.csv"))
}

func TestAnomalyStage_AllValuesRejectedStillReports(t *testing.T) {
	inDir := t.TempDir()
	outDir := t.TempDir()

	// Every value is null or garbage, but the timestamps parse, so the
	// file still has defects to report and a span to diagnose.
	var b strings.Builder
	b.WriteString("datetime,site,item,value\n")
	start := time.Date(2024, 2, 14, 0, 0, 0, 0, time.UTC)
	for h := 0; h < 4; h++ {
		ts := start.Add(time.Duration(h) * time.Hour).Format("2006-01-02 15:04:05")
		fmt.Fprintf(&b, "%s,板橋,O3,\n", ts)
		fmt.Fprintf(&b, "%s,臺南,O3,x\n", ts)
	}
	path := filepath.Join(inDir, "hourly_rejects.csv")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))

	stage := &AnomalyStage{
		Index:      baselineFixture(),
		Specs:      domain.DefaultItemSpecs(),
		Regions:    domain.DefaultRegionMap(),
		AnomalyDir: outDir,
		RegionDir:  outDir,
		ReportDir:  outDir,
		Logger:     testLogger(),
		Metrics:    observability.NewMetricsForTesting(),
	}
	require.NoError(t, stage.ProcessFile(context.Background(), path))

	report, err := os.ReadFile(filepath.Join(outDir, "report_hourly_rejects.csv"))
	require.NoError(t, err)
	assert.Contains(t, string(report), "null_value")
	assert.Contains(t, string(report), "invalid_text")

	// With nothing accepted anywhere, every hour in the span is silent.
	events, err := os.ReadFile(filepath.Join(outDir, "major_event_hourly_rejects.csv"))
	require.NoError(t, err)
	for h := 0; h < 4; h++ {
		assert.Contains(t, string(events), fmt.Sprintf("2024-02-14 %02d:00:00", h))
	}
	assert.NoFileExists(t, filepath.Join(outDir, "anomaly_hourly_rejects.csv"))
}

func TestAnomalyStage_SpanCoversRejectedBoundaryHours(t *testing.T) {
	inDir := t.TempDir()
	outDir := t.TempDir()

	// The first and last hours appear in the file with null values only.
	// The span still runs from hour 0 to hour 5, so those boundary hours
	// count as network silence instead of shrinking the range.
	var b strings.Builder
	b.WriteString("datetime,site,item,value\n")
	start := time.Date(2024, 2, 14, 0, 0, 0, 0, time.UTC)
	for h := 0; h < 6; h++ {
		ts := start.Add(time.Duration(h) * time.Hour).Format("2006-01-02 15:04:05")
		value := fmt.Sprintf("%g", 30+float64(h))
		if h == 0 || h == 5 {
			value = ""
		}
		fmt.Fprintf(&b, "%s,板橋,O3,%s\n", ts, value)
	}
	path := filepath.Join(inDir, "hourly_edges.csv")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))

	stage := &AnomalyStage{
		Index:      baselineFixture(),
		Specs:      domain.DefaultItemSpecs(),
		Regions:    domain.DefaultRegionMap(),
		AnomalyDir: outDir,
		RegionDir:  outDir,
		ReportDir:  outDir,
		Logger:     testLogger(),
		Metrics:    observability.NewMetricsForTesting(),
	}
	require.NoError(t, stage.ProcessFile(context.Background(), path))

	events, err := os.ReadFile(filepath.Join(outDir, "major_event_hourly_edges.csv"))
	require.NoError(t, err)
	assert.Contains(t, string(events), "2024-02-14 00:00:00")
	assert.Contains(t, string(events), "2024-02-14 05:00:00")
	assert.NotContains(t, string(events), "2024-02-14 01:00:00")

	report, err := os.ReadFile(filepath.Join(outDir, "report_hourly_edges.csv"))
	require.NoError(t, err)
	assert.Contains(t, string(report), "missing_timestamps")
	assert.Contains(t, string(report), "2 hours missing")
}

func TestDeseasonStage_EndToEnd(t *testing.T) {
	inDir := t.TempDir()
	dataDir := t.TempDir()
	reportDir := t.TempDir()

	// Ten days of hourly anomalies with a diurnal swing, one 5-hour gap, and
	// one 1-hour gap.
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	var b strings.Builder
	b.WriteString("datetime,site,item,anomaly\n")
	for i := 0; i < 10*24; i++ {
		if i >= 60 && i <= 64 {
			continue // long gap
		}
		if i == 100 {
			continue // short gap
		}
		ts := start.Add(time.Duration(i) * time.Hour).Format("2006-01-02 15:04:05")
		value := 2 + float64(i%24)/10
		fmt.Fprintf(&b, "%s,板橋,O3,%g\n", ts, value)
	}
	path := filepath.Join(inDir, "anomaly_hourly_202403.csv")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))

	stage := &DeseasonStage{
		ToleranceHours: 2,
		STL:            stl.DefaultOptions(24, 13),
		DataDir:        dataDir,
		ReportDir:      reportDir,
		Logger:         testLogger(),
		Metrics:        observability.NewMetricsForTesting(),
	}
	require.NoError(t, stage.ProcessFile(context.Background(), path))

	f, err := os.Open(filepath.Join(dataDir, "stl_anomaly_hourly_202403.csv"))
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Greater(t, len(records), 1)
	assert.Equal(t, []string{"datetime", "site", "item", "anomaly_stl"}, records[0])

	present := map[string]bool{}
	for _, rec := range records[1:] {
		present[rec[0]] = true
	}
	for i := 60; i <= 64; i++ {
		ts := start.Add(time.Duration(i) * time.Hour).Format("2006-01-02 15:04:05")
		assert.False(t, present[ts], "long-gap hour %d stays missing", i)
	}
	assert.True(t, present[start.Add(100*time.Hour).Format("2006-01-02 15:04:05")], "short gap interpolated")

	report, err := os.ReadFile(filepath.Join(reportDir, "gap_report_anomaly_hourly_202403.csv"))
	require.NoError(t, err)
	assert.Contains(t, string(report), "long_gap")
	assert.Contains(t, string(report), ",5,2024-03-03 12:00,2024-03-03 16:00")
}

func TestDeseasonStage_EmptyFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "anomaly_hourly_empty.csv")
	require.NoError(t, os.WriteFile(path, []byte("datetime,site,item,anomaly\n"), 0o644))

	stage := &DeseasonStage{
		ToleranceHours: 2,
		STL:            stl.DefaultOptions(24, 13),
		DataDir:        dir,
		ReportDir:      dir,
		Logger:         testLogger(),
		Metrics:        observability.NewMetricsForTesting(),
	}
	assert.NoError(t, stage.ProcessFile(context.Background(), path))
	assert.NoFileExists(t, filepath.Join(dir, "stl_anomaly_hourly_empty.csv"))
}

func TestListAnomalyFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"anomaly_hourly_202403.csv", "anomaly_hourly_202404.csv", "readme.md"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}
	files, err := ListAnomalyFiles(dir)
	require.NoError(t, err)
	assert.Len(t, files, 2)
}
