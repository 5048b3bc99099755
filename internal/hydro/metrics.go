// Package hydro computes hydrological descriptive statistics over daily
// discharge records: per-period metrics, water-year and monthly aggregation,
// and multi-year averages.
//
// Metric functions take one period of daily discharge in date order, with
// NaN marking missing days. Missing days are excluded before computing, and
// a period without any valid value yields NaN rather than an error.
package hydro

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

const (
	lowFlowWindow    = 7
	exceedMultiplier = 3
)

// valid returns the non-NaN values in their original order.
func valid(vals []float64) []float64 {
	out := make([]float64, 0, len(vals))
	for _, v := range vals {
		if !math.IsNaN(v) {
			out = append(out, v)
		}
	}
	return out
}

// Mean returns the arithmetic mean of the non-NaN values, or NaN when there
// are none.
func Mean(vals []float64) float64 {
	v := valid(vals)
	if len(v) == 0 {
		return math.NaN()
	}
	return stat.Mean(v, nil)
}

// Peak returns the largest valid value.
func Peak(vals []float64) float64 {
	v := valid(vals)
	if len(v) == 0 {
		return math.NaN()
	}
	return floats.Max(v)
}

// Median averages the two middle values when the count is even.
func Median(vals []float64) float64 {
	v := valid(vals)
	if len(v) == 0 {
		return math.NaN()
	}
	sort.Float64s(v)
	n := len(v)
	if n%2 == 0 {
		return (v[n/2-1] + v[n/2]) / 2
	}
	return v[n/2]
}

// CoeffVar is the sample standard deviation as a percentage of the mean.
func CoeffVar(vals []float64) float64 {
	v := valid(vals)
	if len(v) < 2 {
		return math.NaN()
	}
	mean, std := stat.MeanStdDev(v, nil)
	if mean == 0 {
		return math.NaN()
	}
	return 100 * std / mean
}

// Skew returns the Fisher-Pearson coefficient of skewness m3/m2^1.5 using
// population moments. With corrected set, the adjusted estimator
// g1*sqrt(n(n-1))/(n-2) is returned instead, which needs at least 3 values.
func Skew(vals []float64, corrected bool) float64 {
	v := valid(vals)
	n := float64(len(v))
	if n == 0 {
		return math.NaN()
	}
	m2 := stat.Moment(2, v, nil)
	if m2 == 0 {
		return math.NaN()
	}
	g1 := stat.Moment(3, v, nil) / math.Pow(m2, 1.5)
	if !corrected {
		return g1
	}
	if n < 3 {
		return math.NaN()
	}
	return g1 * math.Sqrt(n*(n-1)) / (n - 2)
}

// Tqmean is the fraction of valid days whose flow exceeds the period mean.
func Tqmean(vals []float64) float64 {
	v := valid(vals)
	if len(v) == 0 {
		return math.NaN()
	}
	mean := stat.Mean(v, nil)
	above := 0
	for _, q := range v {
		if q > mean {
			above++
		}
	}
	return float64(above) / float64(len(v))
}

// RBIndex is the Richards-Baker flashiness index: the summed absolute change
// between successive valid days divided by the summed flow. Zero total flow
// is undefined.
func RBIndex(vals []float64) float64 {
	v := valid(vals)
	if len(v) == 0 {
		return math.NaN()
	}
	total := floats.Sum(v)
	if total == 0 {
		return math.NaN()
	}
	path := 0.0
	for i := 1; i < len(v); i++ {
		path += math.Abs(v[i] - v[i-1])
	}
	return path / total
}

// SevenQ is the seven-day low flow.
func SevenQ(vals []float64) float64 {
	return LowFlow(vals, lowFlowWindow)
}

// LowFlow returns the minimum rolling mean over every window of `days`
// consecutive entries that are all valid. A missing day breaks the run, so
// windows never span a gap. Returns NaN when no complete window exists.
func LowFlow(vals []float64, days int) float64 {
	if days <= 0 {
		return math.NaN()
	}
	low := math.NaN()
	run, sum := 0, 0.0
	for i, q := range vals {
		if math.IsNaN(q) {
			run, sum = 0, 0
			continue
		}
		run++
		sum += q
		if run > days {
			sum -= vals[i-days]
		}
		if run >= days {
			avg := sum / float64(days)
			if math.IsNaN(low) || avg < low {
				low = avg
			}
		}
	}
	return low
}

// ExceedCount counts days with flow above three times the period median.
func ExceedCount(vals []float64) float64 {
	return ExceedanceDays(vals, exceedMultiplier)
}

// ExceedanceDays counts valid days with flow strictly greater than multiple
// times the median of the same values.
func ExceedanceDays(vals []float64, multiple float64) float64 {
	v := valid(vals)
	if len(v) == 0 {
		return math.NaN()
	}
	threshold := multiple * Median(v)
	n := 0
	for _, q := range v {
		if q > threshold {
			n++
		}
	}
	return float64(n)
}
