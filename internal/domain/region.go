package domain

import (
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"
)

// RegionLabelPrefix distinguishes aggregated series from station series.
const RegionLabelPrefix = "AVG_"

// AggregateByRegion computes the mean anomaly per (timestamp, item, region)
// over whatever stations in that region have a record at that timestamp.
// Partial coverage still averages; only zero contributing stations produces
// no record. Stations outside the region map are skipped entirely. Output is
// sorted by time, item, region.
func AggregateByRegion(records []AnomalyRecord, regions *RegionMap) []RegionalAverage {
	type cell struct {
		Time   time.Time
		Item   string
		Region string
	}
	groups := make(map[cell][]float64)
	for _, rec := range records {
		region, ok := regions.Region(rec.Site)
		if !ok {
			continue
		}
		key := cell{Time: rec.Time, Item: rec.Item, Region: region}
		groups[key] = append(groups[key], rec.Anomaly)
	}

	out := make([]RegionalAverage, 0, len(groups))
	for key, values := range groups {
		out = append(out, RegionalAverage{
			Time:    key.Time,
			Item:    key.Item,
			Site:    RegionLabelPrefix + key.Region,
			Anomaly: stat.Mean(values, nil),
		})
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.Time.Equal(b.Time) {
			return a.Time.Before(b.Time)
		}
		if a.Item != b.Item {
			return a.Item < b.Item
		}
		return a.Site < b.Site
	})
	return out
}
