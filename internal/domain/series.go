package domain

import (
	"math"
	"time"
)

// HourlyRange returns every hour from start to end inclusive, both truncated
// to the hour.
func HourlyRange(start, end time.Time) []time.Time {
	start = start.Truncate(time.Hour)
	end = end.Truncate(time.Hour)
	if end.Before(start) {
		return nil
	}
	n := int(end.Sub(start)/time.Hour) + 1
	grid := make([]time.Time, n)
	for i := range grid {
		grid[i] = start.Add(time.Duration(i) * time.Hour)
	}
	return grid
}

// Reindex aligns (time, value) points onto an hourly grid anchored at start.
// Positions with no point become NaN. Duplicate timestamps keep the first
// value seen; points off the grid are ignored.
func Reindex(start time.Time, n int, times []time.Time, values []float64) []float64 {
	start = start.Truncate(time.Hour)
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	seen := make(map[int]bool, len(times))
	for i, t := range times {
		idx := int(t.Truncate(time.Hour).Sub(start) / time.Hour)
		if idx < 0 || idx >= n || seen[idx] {
			continue
		}
		seen[idx] = true
		out[idx] = values[i]
	}
	return out
}

// MissingRun is a maximal run of consecutive NaN positions, inclusive on
// both ends.
type MissingRun struct {
	Start int
	End   int
}

// Len returns the run length in hours.
func (r MissingRun) Len() int { return r.End - r.Start + 1 }

// MissingRuns finds every maximal NaN run in values.
func MissingRuns(values []float64) []MissingRun {
	var runs []MissingRun
	inRun := false
	var start int
	for i, v := range values {
		if math.IsNaN(v) {
			if !inRun {
				inRun = true
				start = i
			}
			continue
		}
		if inRun {
			runs = append(runs, MissingRun{Start: start, End: i - 1})
			inRun = false
		}
	}
	if inRun {
		runs = append(runs, MissingRun{Start: start, End: len(values) - 1})
	}
	return runs
}

// InterpolateShortRuns linearly fills, in place, every interior missing run
// of at most tolerance hours. Runs longer than the tolerance are left
// untouched in full: a long gap is never partially filled. Runs touching
// either series edge have no second anchor point and stay missing too.
func InterpolateShortRuns(values []float64, tolerance int) {
	if tolerance <= 0 {
		return
	}
	for _, run := range MissingRuns(values) {
		if run.Len() > tolerance {
			continue
		}
		if run.Start == 0 || run.End == len(values)-1 {
			continue
		}
		lo := values[run.Start-1]
		hi := values[run.End+1]
		span := float64(run.Len() + 1)
		for i := run.Start; i <= run.End; i++ {
			frac := float64(i-run.Start+1) / span
			values[i] = lo + (hi-lo)*frac
		}
	}
}

// MissingMask reports which positions are currently NaN.
func MissingMask(values []float64) []bool {
	mask := make([]bool, len(values))
	for i, v := range values {
		mask[i] = math.IsNaN(v)
	}
	return mask
}

// ZeroFillMissing copies values with every NaN replaced by zero, the
// anomaly-neutral placeholder required by STL's no-missing-value contract.
func ZeroFillMissing(values []float64) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		if math.IsNaN(v) {
			out[i] = 0
			continue
		}
		out[i] = v
	}
	return out
}
