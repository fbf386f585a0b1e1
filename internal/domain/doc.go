// Package domain models Taiwan EPA hourly air-quality monitoring data and
// implements the numerical core of the anomaly pipeline.
//
// # Data Source
//
// Raw observations arrive as flat hourly CSV files with the columns
//
//	datetime, site, item, value
//
// where site is a station name (e.g. 臺南, 板橋), item is a pollutant or
// meteorological code (e.g. O3, PM2.5, AMB_TEMP), and value is either a
// number or an invalid sentinel string left in place by upstream instrument
// software. One file covers one contiguous time span for the whole network.
//
// # Baseline (climatology) tables
//
// Historical hourly means live in one wide CSV per item, named
// "<item>_hourly_avg_fast.csv" (item lower-cased). Each row is a station,
// each column is labeled "<day_of_year>_<hour>" (day_of_year 1-366,
// hour 0-23), and each cell is the multi-year mean for that station at that
// hour of the year. Some historically generated tables name the station
// column 測站 instead of site; both spellings are accepted.
//
// # Anomaly
//
// anomaly = observed - baseline(item, site, day_of_year, hour)
//
// computed only where both an accepted observation and a baseline entry
// exist. Observations with no baseline entry are reported separately
// (baseline_missing) and never produce an anomaly record.
//
// # Validation taxonomy
//
// Row-level defects are recovered locally and reported as findings:
//
//	null_value          empty value field, counted per (site, item)
//	invalid_text        non-null value that fails numeric parsing, per row
//	out_of_range        numeric value outside the item's valid range
//	missing_timestamps  hours absent for a (site, item) within the file span
//	baseline_missing    accepted observations lacking a baseline entry
//
// A timestamp at which no station in the entire network reported anything is
// a major event, reported once per hour and kept distinct from per-station
// missing_timestamps findings.
//
// # Gap policy (deseasonalization stage)
//
// After reindexing a (site, item) anomaly series onto the complete hourly
// grid, contiguous missing runs of at most the configured tolerance are
// linearly interpolated; longer runs are breaks: they get one gap report
// each, are zero-filled only so STL can run, and are forced back to missing
// in the final output.
package domain
