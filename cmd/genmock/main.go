// Command genmock generates deterministic mock fixtures for the anomaly
// pipeline: per-item wide baseline tables and one raw hourly observation
// file with injected defects (empty values, invalid text, out-of-range
// readings, a per-station gap, and one network-silent hour). It uses the
// real domain tables so the fixtures exercise actual pipeline behavior.
//
// Usage:
//
//	go run ./cmd/genmock -data-dir data -start 2024-02-01 -days 7
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/couchcryptid/aqi-anomaly-etl/internal/adapter/csvio"
	"github.com/couchcryptid/aqi-anomaly-etl/internal/domain"
)

var mockSites = []string{"臺南", "板橋", "楠梓", "花蓮", "古亭", "忠明"}

var mockItems = []string{"O3", "PM2.5", "AMB_TEMP"}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	dataDir := flag.String("data-dir", "data", "directory for generated fixtures")
	startStr := flag.String("start", "2024-02-01", "first day of the raw observation file (YYYY-MM-DD)")
	days := flag.Int("days", 7, "number of days the raw file covers")
	seed := flag.Int64("seed", 42, "random seed")
	flag.Parse()

	start, err := time.Parse("2006-01-02", *startStr)
	if err != nil {
		return fmt.Errorf("parse -start: %w", err)
	}
	if err := os.MkdirAll(*dataDir, 0o755); err != nil {
		return err
	}

	rng := rand.New(rand.NewSource(*seed))
	specs := domain.DefaultItemSpecs()

	for _, item := range mockItems {
		if err := writeBaseline(*dataDir, item, specs[item], start, *days, rng); err != nil {
			return err
		}
	}
	if err := writeRawFile(*dataDir, start, *days, specs, rng); err != nil {
		return err
	}

	fmt.Printf("fixtures written to %s (%d items, %d sites, %d days)\n",
		*dataDir, len(mockItems), len(mockSites), *days)
	return nil
}

// diurnal is the synthetic daily cycle the mock data carries, so STL has a
// real seasonal component to remove.
func diurnal(spec domain.ItemSpec, hour int) float64 {
	mid := (spec.Min + spec.Max) / 8
	amp := mid / 2
	return mid + amp*math.Sin(2*math.Pi*float64(hour)/24)
}

func writeBaseline(dataDir, item string, spec domain.ItemSpec, start time.Time, days int, rng *rand.Rand) error {
	path := filepath.Join(dataDir, csvio.BaselineFileName(item))
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := []string{"site"}
	for d := 0; d < days; d++ {
		doy := start.AddDate(0, 0, d).YearDay()
		for h := 0; h < 24; h++ {
			header = append(header, fmt.Sprintf("%d_%d", doy, h))
		}
	}
	if err := w.Write(header); err != nil {
		return err
	}

	for _, site := range mockSites {
		offset := rng.NormFloat64() * spec.Max / 100
		row := []string{site}
		for d := 0; d < days; d++ {
			for h := 0; h < 24; h++ {
				row = append(row, strconv.FormatFloat(diurnal(spec, h)+offset, 'g', -1, 64))
			}
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func writeRawFile(dataDir string, start time.Time, days int, specs map[string]domain.ItemSpec, rng *rand.Rand) error {
	name := fmt.Sprintf("hourly_%s.csv", start.Format("200601"))
	f, err := os.Create(filepath.Join(dataDir, name))
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"datetime", "site", "item", "value"}); err != nil {
		return err
	}

	hours := days * 24
	silentHour := hours / 2       // one network-wide outage
	gapStart := hours / 4         // 5-hour gap for one station/item
	for hr := 0; hr < hours; hr++ {
		if hr == silentHour {
			continue
		}
		t := start.Add(time.Duration(hr) * time.Hour)
		for _, site := range mockSites {
			for _, item := range mockItems {
				if site == mockSites[0] && item == mockItems[0] && hr >= gapStart && hr < gapStart+5 {
					continue
				}
				value := strconv.FormatFloat(diurnal(specs[item], t.Hour())+rng.NormFloat64(), 'g', -1, 64)
				switch {
				case rng.Float64() < 0.002:
					value = "" // null
				case rng.Float64() < 0.002:
					value = "x" // invalid text
				case rng.Float64() < 0.002:
					value = strconv.FormatFloat(specs[item].Max*10, 'g', -1, 64) // out of range
				}
				rec := []string{t.Format("2006-01-02 15:04:05"), site, item, value}
				if err := w.Write(rec); err != nil {
					return err
				}
			}
		}
	}
	w.Flush()
	return w.Error()
}
