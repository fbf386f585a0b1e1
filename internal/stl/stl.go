// Package stl implements seasonal-trend decomposition using loess
// (Cleveland et al., 1990) for complete, evenly spaced series. The pipeline
// uses it with period 24 to strip the diurnal cycle from hourly anomaly
// series; callers are responsible for filling missing values first.
package stl

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// ErrTooShort is returned when the series does not cover more than two full
// periods, the minimum history the decomposition needs.
var ErrTooShort = errors.New("stl: series shorter than two periods")

// ErrDegenerate is returned when the inner loop produces non-finite
// components, typically from pathological input.
var ErrDegenerate = errors.New("stl: decomposition produced non-finite values")

// Options controls the decomposition. Window lengths are loess spans in
// points and must be odd.
type Options struct {
	Period     int // samples per cycle (24 for hourly data with a diurnal cycle)
	Seasonal   int // cycle-subseries loess window
	Trend      int // trend loess window; 0 derives the Cleveland default
	LowPass    int // low-pass loess window; 0 means next odd ≥ Period
	Iterations int // inner-loop passes; 0 means 2
}

// DefaultOptions returns the standard configuration for the given period and
// seasonal window.
func DefaultOptions(period, seasonal int) Options {
	return Options{Period: period, Seasonal: seasonal}
}

// Result holds the three additive components: values = Seasonal + Trend + Remainder.
type Result struct {
	Seasonal  []float64
	Trend     []float64
	Remainder []float64
}

func (o *Options) fill() error {
	if o.Period < 2 {
		return fmt.Errorf("stl: period %d, need at least 2", o.Period)
	}
	if o.Seasonal < 3 || o.Seasonal%2 == 0 {
		return fmt.Errorf("stl: seasonal window %d must be odd and at least 3", o.Seasonal)
	}
	if o.LowPass == 0 {
		o.LowPass = nextOdd(o.Period)
	}
	if o.Trend == 0 {
		// Smallest odd integer covering 1.5 periods, inflated so the trend
		// window cannot absorb the seasonal signal.
		o.Trend = nextOdd(int(math.Ceil(1.5 * float64(o.Period) / (1 - 1.5/float64(o.Seasonal)))))
	}
	if o.LowPass%2 == 0 || o.Trend%2 == 0 {
		return fmt.Errorf("stl: trend %d and low-pass %d windows must be odd", o.Trend, o.LowPass)
	}
	if o.Iterations <= 0 {
		o.Iterations = 2
	}
	return nil
}

func nextOdd(n int) int {
	if n%2 == 0 {
		return n + 1
	}
	return n
}

// Decompose splits values into seasonal, trend, and remainder components.
// The input must be complete: any NaN is an error, as is a series of at most
// 2×Period points.
func Decompose(values []float64, opts Options) (Result, error) {
	if err := opts.fill(); err != nil {
		return Result{}, err
	}
	n := len(values)
	if n <= 2*opts.Period {
		return Result{}, ErrTooShort
	}
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Result{}, errors.New("stl: input contains non-finite values")
		}
	}

	period := opts.Period
	seasonal := make([]float64, n)
	trend := make([]float64, n)
	detrended := make([]float64, n)
	deseasoned := make([]float64, n)

	for iter := 0; iter < opts.Iterations; iter++ {
		floats.SubTo(detrended, values, trend)

		cycle := smoothSubseries(detrended, period, opts.Seasonal)
		low := lowPass(cycle, period, opts.LowPass)
		for i := 0; i < n; i++ {
			seasonal[i] = cycle[i+period] - low[i]
		}

		floats.SubTo(deseasoned, values, seasonal)
		trend = loess(deseasoned, opts.Trend)
	}

	res := Result{Seasonal: seasonal, Trend: trend, Remainder: make([]float64, n)}
	for i := 0; i < n; i++ {
		res.Remainder[i] = values[i] - seasonal[i] - trend[i]
		if math.IsNaN(res.Seasonal[i]) || math.IsInf(res.Seasonal[i], 0) ||
			math.IsNaN(res.Trend[i]) || math.IsInf(res.Trend[i], 0) {
			return Result{}, ErrDegenerate
		}
	}
	return res, nil
}

// smoothSubseries loess-smooths each cycle-subseries of detrended with the
// seasonal window and evaluates one extra cycle at each end, producing a
// series of length n + 2*period aligned so index j corresponds to time
// j - period.
func smoothSubseries(detrended []float64, period, window int) []float64 {
	n := len(detrended)
	out := make([]float64, n+2*period)
	for phase := 0; phase < period; phase++ {
		m := (n - phase + period - 1) / period
		sub := make([]float64, m)
		for k := 0; k < m; k++ {
			sub[k] = detrended[phase+k*period]
		}
		smoothed := loessExtended(sub, window)
		// smoothed has m+2 values for cycle positions -1 .. m.
		for k := -1; k <= m; k++ {
			t := phase + k*period
			out[t+period] = smoothed[k+1]
		}
	}
	return out
}

// lowPass applies the STL low-pass filter: two moving averages of length
// period, one of length 3, then a loess pass. Input has length n+2*period,
// output has length n.
func lowPass(cycle []float64, period, window int) []float64 {
	ma1 := movingAverage(cycle, period)
	ma2 := movingAverage(ma1, period)
	ma3 := movingAverage(ma2, 3)
	return loess(ma3, window)
}

func movingAverage(values []float64, window int) []float64 {
	n := len(values) - window + 1
	out := make([]float64, n)
	sum := floats.Sum(values[:window])
	out[0] = sum / float64(window)
	for i := 1; i < n; i++ {
		sum += values[i+window-1] - values[i-1]
		out[i] = sum / float64(window)
	}
	return out
}

// loess smooths values over their integer positions with a degree-1 local
// fit and tricube weights, evaluated at every input position.
func loess(values []float64, window int) []float64 {
	out := make([]float64, len(values))
	fitLoess(values, window, 0, out)
	return out
}

// loessExtended additionally evaluates one position before the first point
// and one after the last, so cycle-subseries can be extrapolated by a full
// period on each side. Output index i corresponds to position i-1.
func loessExtended(values []float64, window int) []float64 {
	out := make([]float64, len(values)+2)
	fitLoess(values, window, -1, out)
	return out
}

// fitLoess evaluates the local fit at positions first, first+1, ... writing
// into out. Windows are the q nearest input points; when the window exceeds
// the series, distances are inflated by (q-n)/2 per the STL definition.
func fitLoess(values []float64, window int, first int, out []float64) {
	n := len(values)
	if n == 1 {
		for i := range out {
			out[i] = values[0]
		}
		return
	}
	q := window
	if q > n {
		q = n
	}
	xs := make([]float64, q)
	ws := make([]float64, q)

	for oi := range out {
		x := first + oi

		lo := x - (q-1)/2
		if lo < 0 {
			lo = 0
		}
		if lo+q > n {
			lo = n - q
		}
		dmax := math.Max(math.Abs(float64(x-lo)), math.Abs(float64(lo+q-1-x)))
		if window > n {
			dmax += float64(window-n) / 2
		}

		for j := 0; j < q; j++ {
			xs[j] = float64(lo + j)
			ws[j] = tricube(math.Abs(float64(lo+j-x)) / dmax)
		}
		alpha, beta := stat.LinearRegression(xs, values[lo:lo+q], ws, false)
		out[oi] = alpha + beta*float64(x)
	}
}

func tricube(u float64) float64 {
	if u >= 1 {
		return 0
	}
	c := 1 - u*u*u
	return c * c * c
}
