package domain

import "time"

// RawRow is one line of a raw observation CSV after schema normalization,
// before validation. Value is kept as the original string so that null and
// invalid-text defects can be told apart.
type RawRow struct {
	Time      time.Time
	TimeValid bool
	Site      string
	Item      string
	Value     string
}

// Observation is an accepted sensor reading: parseable timestamp, numeric
// value, inside the item's valid range (or the item has no known range).
// Never mutated after validation.
type Observation struct {
	Time  time.Time
	Site  string
	Item  string
	Value float64
}

// AnomalyRecord is an observation joined against its baseline entry.
type AnomalyRecord struct {
	Time    time.Time
	Site    string
	Item    string
	Anomaly float64 // observed minus expected, plain float subtraction
}

// RegionalAverage is the mean anomaly over one region's reporting stations
// at one timestamp. Site carries the synthetic "AVG_<region>" label so
// aggregated series share a namespace with per-station series downstream.
type RegionalAverage struct {
	Time    time.Time
	Item    string
	Site    string // "AVG_" + region name
	Anomaly float64
}

// FindingKind classifies a validation finding.
type FindingKind string

const (
	FindingNullValue         FindingKind = "null_value"
	FindingInvalidText       FindingKind = "invalid_text"
	FindingOutOfRange        FindingKind = "out_of_range"
	FindingMissingTimestamps FindingKind = "missing_timestamps"
	FindingBaselineMissing   FindingKind = "baseline_missing"
)

// Finding is one reported data defect, scoped to a source file.
type Finding struct {
	File   string
	Site   string
	Item   string
	Kind   FindingKind
	Detail string
}

// MajorEvent marks an hour at which no station in the entire network
// reported any value.
type MajorEvent struct {
	File  string
	Time  time.Time
	Event string
}

// MajorEventDescription is the fixed event text for network-wide outages.
const MajorEventDescription = "network-wide outage"

// GapReport records one contiguous missing run longer than the tolerance in
// a (site, item) series.
type GapReport struct {
	File          string
	Site          string
	Item          string
	Kind          string // always "long_gap"
	DurationHours int
	Start         time.Time
	End           time.Time
}

// GapKindLong is the single gap-report kind emitted by the deseasonalizer.
const GapKindLong = "long_gap"

// DeseasonalizedPoint is one defined value of a deseasonalized (site, item)
// series. Break-gap positions are dropped before the series is persisted, so
// a point always carries a number.
type DeseasonalizedPoint struct {
	Time  time.Time
	Site  string
	Item  string
	Value float64
}
