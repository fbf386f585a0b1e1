package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// BaselineKey identifies one historical expectation: item and station at a
// given hour of the year.
type BaselineKey struct {
	Item      string
	Site      string
	DayOfYear int // 1-366, leap-year tolerant
	Hour      int // 0-23
}

// BaselineEntry is one parsed cell of a wide climatology table.
type BaselineEntry struct {
	Site      string
	DayOfYear int
	Hour      int
	Value     float64
}

// BaselineIndex is the read-only lookup from (item, site, day-of-year, hour)
// to the historical mean. It is built once and shared across workers; no
// mutation happens after construction, so concurrent reads need no locking.
type BaselineIndex struct {
	entries map[BaselineKey]float64
}

// NewBaselineIndex returns an empty index.
func NewBaselineIndex() *BaselineIndex {
	return &BaselineIndex{entries: make(map[BaselineKey]float64)}
}

// AddItem inserts one item's parsed entries. Duplicate keys keep the first
// value seen (first-wins, matching the pipeline's keep-first dedupe rule).
// Entries with an out-of-domain day or hour are dropped. Returns the number
// of entries actually added.
func (b *BaselineIndex) AddItem(item string, entries []BaselineEntry) int {
	added := 0
	for _, e := range entries {
		if e.DayOfYear < 1 || e.DayOfYear > 366 || e.Hour < 0 || e.Hour > 23 {
			continue
		}
		key := BaselineKey{Item: item, Site: e.Site, DayOfYear: e.DayOfYear, Hour: e.Hour}
		if _, ok := b.entries[key]; ok {
			continue
		}
		b.entries[key] = e.Value
		added++
	}
	return added
}

// Lookup returns the expected value for an observation's item, site and
// timestamp.
func (b *BaselineIndex) Lookup(item, site string, t time.Time) (float64, bool) {
	v, ok := b.entries[BaselineKey{Item: item, Site: site, DayOfYear: t.YearDay(), Hour: t.Hour()}]
	return v, ok
}

// Len reports the total number of entries across all items.
func (b *BaselineIndex) Len() int { return len(b.entries) }

// ParseDayHourLabel splits a wide-table column label "<day_of_year>_<hour>"
// into its components, enforcing the key domain.
func ParseDayHourLabel(label string) (dayOfYear, hour int, err error) {
	head, tail, ok := strings.Cut(label, "_")
	if !ok {
		return 0, 0, fmt.Errorf("column label %q: want <day>_<hour>", label)
	}
	dayOfYear, err = strconv.Atoi(head)
	if err != nil {
		return 0, 0, fmt.Errorf("column label %q: bad day: %w", label, err)
	}
	hour, err = strconv.Atoi(tail)
	if err != nil {
		return 0, 0, fmt.Errorf("column label %q: bad hour: %w", label, err)
	}
	if dayOfYear < 1 || dayOfYear > 366 {
		return 0, 0, fmt.Errorf("column label %q: day %d outside 1-366", label, dayOfYear)
	}
	if hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("column label %q: hour %d outside 0-23", label, hour)
	}
	return dayOfYear, hour, nil
}
