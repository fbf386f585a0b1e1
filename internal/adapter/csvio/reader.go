// Package csvio reads and writes the pipeline's flat delimited-text
// interfaces: raw hourly observation tables, wide baseline tables, and the
// anomaly/report output CSVs consumed by downstream plotting.
package csvio

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/aqi-anomaly-etl/internal/domain"
)

// Timestamp layouts accepted on input; historically generated files mix
// these freely.
var timestampLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006/01/02 15:04:05",
	"2006/01/02 15:04",
	time.RFC3339,
}

// ParseTimestamp tries each known layout in order.
func ParseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// canonicalColumn maps known alternate header spellings onto the canonical
// schema once at ingestion, instead of branching throughout the pipeline.
func canonicalColumn(name string) string {
	name = strings.TrimSpace(strings.TrimPrefix(name, "\uFEFF"))
	switch name {
	case "測站":
		return "site"
	case "時間":
		return "datetime"
	default:
		return name
	}
}

func headerIndex(header []string) map[string]int {
	idx := make(map[string]int, len(header))
	for i, name := range header {
		idx[canonicalColumn(name)] = i
	}
	return idx
}

// ReadRawTable reads one hourly observation CSV (datetime, site, item,
// value) into raw rows. Timestamps are parsed here; the value column stays a
// string for the validator. Short records are tolerated and skipped.
func ReadRawTable(path string) ([]domain.RawRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open raw table: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read header of %s: %w", filepath.Base(path), err)
	}
	idx := headerIndex(header)
	for _, col := range []string{"datetime", "site", "item", "value"} {
		if _, ok := idx[col]; !ok {
			return nil, fmt.Errorf("%s: missing column %q", filepath.Base(path), col)
		}
	}

	var rows []domain.RawRow
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", filepath.Base(path), err)
		}
		if len(rec) <= idx["value"] || len(rec) <= idx["datetime"] ||
			len(rec) <= idx["site"] || len(rec) <= idx["item"] {
			continue
		}
		t, ok := ParseTimestamp(rec[idx["datetime"]])
		rows = append(rows, domain.RawRow{
			Time:      t,
			TimeValid: ok,
			Site:      strings.TrimSpace(rec[idx["site"]]),
			Item:      strings.TrimSpace(rec[idx["item"]]),
			Value:     rec[idx["value"]],
		})
	}
	return rows, nil
}

// ReadBaselineTable melts one wide climatology CSV into entries. Each data
// column is labeled "<day_of_year>_<hour>"; cells that are empty or
// non-numeric are dropped, as are columns whose label does not parse.
func ReadBaselineTable(path string) ([]domain.BaselineEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open baseline table: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read header of %s: %w", filepath.Base(path), err)
	}
	idx := headerIndex(header)
	siteCol, ok := idx["site"]
	if !ok {
		return nil, fmt.Errorf("%s: no site column", filepath.Base(path))
	}

	type column struct {
		pos  int
		day  int
		hour int
	}
	var columns []column
	for i, name := range header {
		if i == siteCol {
			continue
		}
		day, hour, err := domain.ParseDayHourLabel(canonicalColumn(name))
		if err != nil {
			continue
		}
		columns = append(columns, column{pos: i, day: day, hour: hour})
	}

	var entries []domain.BaselineEntry
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", filepath.Base(path), err)
		}
		if len(rec) <= siteCol {
			continue
		}
		site := strings.TrimSpace(rec[siteCol])
		for _, col := range columns {
			if col.pos >= len(rec) {
				continue
			}
			v, err := strconv.ParseFloat(strings.TrimSpace(rec[col.pos]), 64)
			if err != nil {
				continue
			}
			entries = append(entries, domain.BaselineEntry{
				Site: site, DayOfYear: col.day, Hour: col.hour, Value: v,
			})
		}
	}
	return entries, nil
}

// BaselineFileName returns the conventional per-item baseline table name.
func BaselineFileName(item string) string {
	return strings.ToLower(item) + "_hourly_avg_fast.csv"
}

// LoadBaselineIndex builds the shared lookup from every item's baseline
// table under dataDir. A missing or unreadable table excludes that item and
// is logged, never fatal.
func LoadBaselineIndex(dataDir string, items []string, logger *slog.Logger) *domain.BaselineIndex {
	index := domain.NewBaselineIndex()
	for _, item := range items {
		path := filepath.Join(dataDir, BaselineFileName(item))
		entries, err := ReadBaselineTable(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				logger.Debug("no baseline table for item", "item", item)
			} else {
				logger.Warn("skipping baseline table", "item", item, "error", err)
			}
			continue
		}
		added := index.AddItem(item, entries)
		logger.Debug("baseline table loaded", "item", item, "entries", added)
	}
	return index
}

// SeriesRow is one line of a stage-2 input CSV: an anomaly (or raw value)
// at a timestamp for one (site, item).
type SeriesRow struct {
	Time  time.Time
	Site  string
	Item  string
	Value float64
}

// ReadAnomalyTable reads a stage-1 anomaly CSV for deseasonalization. The
// value column is "anomaly", falling back to "value" for inputs produced by
// older pipeline runs. Rows with unparseable timestamps or values are
// dropped.
func ReadAnomalyTable(path string) ([]SeriesRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open anomaly table: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read header of %s: %w", filepath.Base(path), err)
	}
	idx := headerIndex(header)
	valueCol, ok := idx["anomaly"]
	if !ok {
		if valueCol, ok = idx["value"]; !ok {
			return nil, fmt.Errorf("%s: no anomaly or value column", filepath.Base(path))
		}
	}
	for _, col := range []string{"datetime", "site", "item"} {
		if _, ok := idx[col]; !ok {
			return nil, fmt.Errorf("%s: missing column %q", filepath.Base(path), col)
		}
	}

	var rows []SeriesRow
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", filepath.Base(path), err)
		}
		if len(rec) <= valueCol || len(rec) <= idx["datetime"] ||
			len(rec) <= idx["site"] || len(rec) <= idx["item"] {
			continue
		}
		t, ok := ParseTimestamp(rec[idx["datetime"]])
		if !ok {
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(rec[valueCol]), 64)
		if err != nil {
			continue
		}
		rows = append(rows, SeriesRow{
			Time:  t,
			Site:  strings.TrimSpace(rec[idx["site"]]),
			Item:  strings.TrimSpace(rec[idx["item"]]),
			Value: v,
		})
	}
	return rows, nil
}
