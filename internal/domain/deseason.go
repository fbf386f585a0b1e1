package domain

import (
	"math"
	"time"

	"github.com/couchcryptid/aqi-anomaly-etl/internal/stl"
)

// Deseasonalization outcomes, used for metrics and logging.
const (
	DeseasonDecomposed = "decomposed" // STL ran, seasonal component removed
	DeseasonFallback   = "fallback"   // STL failed, interpolated series passed through
	DeseasonShort      = "short"      // series too short for STL, passed through
	DeseasonEmpty      = "empty"      // no defined values at all
)

// DeseasonResult is the output of deseasonalizing one (site, item) series.
// Values is aligned to the caller's hourly grid; break-gap positions are NaN.
type DeseasonResult struct {
	Values  []float64
	Gaps    []GapReport
	Outcome string
}

// Deseasonalize removes the diurnal cycle from one grid-aligned anomaly
// series. Missing runs of at most tolerance hours are linearly interpolated;
// longer runs become break gaps: reported once each, zero-filled only while
// STL runs, and forced back to missing in the result. If the series is too
// short for STL, or the decomposition fails, the interpolated series passes
// through unchanged. The input slice is not modified.
func Deseasonalize(file, site, item string, grid []time.Time, values []float64, tolerance int, opts stl.Options) DeseasonResult {
	work := make([]float64, len(values))
	copy(work, values)

	defined := 0
	for _, v := range work {
		if !math.IsNaN(v) {
			defined++
		}
	}
	if defined == 0 {
		return DeseasonResult{Values: work, Outcome: DeseasonEmpty}
	}

	var gaps []GapReport
	for _, run := range MissingRuns(work) {
		if run.Len() <= tolerance {
			continue
		}
		gaps = append(gaps, GapReport{
			File:          file,
			Site:          site,
			Item:          item,
			Kind:          GapKindLong,
			DurationHours: run.Len(),
			Start:         grid[run.Start],
			End:           grid[run.End],
		})
	}

	InterpolateShortRuns(work, tolerance)

	// Whatever is still missing after interpolation (break gaps plus edge
	// runs with no anchor) must come back out as missing, never as the STL
	// placeholder.
	mask := MissingMask(work)

	if len(work) <= 2*opts.Period {
		return DeseasonResult{Values: work, Gaps: gaps, Outcome: DeseasonShort}
	}

	res, err := stl.Decompose(ZeroFillMissing(work), opts)
	if err != nil {
		return DeseasonResult{Values: work, Gaps: gaps, Outcome: DeseasonFallback}
	}

	out := make([]float64, len(work))
	for i := range out {
		if mask[i] {
			out[i] = math.NaN()
			continue
		}
		out[i] = work[i] - res.Seasonal[i]
	}
	return DeseasonResult{Values: out, Gaps: gaps, Outcome: DeseasonDecomposed}
}
