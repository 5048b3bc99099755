package hydro

import (
	"math"
	"time"

	"github.com/lox/flowstats/internal/models"
)

// WaterYear returns the water year containing t. Water years start on
// October 1 and are labelled by the calendar year they start in.
func WaterYear(t time.Time) int {
	if t.Month() >= time.October {
		return t.Year()
	}
	return t.Year() - 1
}

// WaterYearStart returns October 1 of water year wy.
func WaterYearStart(wy int) time.Time {
	return time.Date(wy, time.October, 1, 0, 0, 0, 0, time.UTC)
}

// MonthStart returns the first calendar day of t's month.
func MonthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// Options controls how an Aggregator computes period statistics.
type Options struct {
	// SkewCorrected selects the bias-adjusted skewness estimator.
	SkewCorrected bool
}

// Aggregator groups a daily series into non-overlapping periods and computes
// one statistics row per period that has at least one observation.
type Aggregator struct {
	opts Options
}

// NewAggregator returns an Aggregator using opts.
func NewAggregator(opts Options) *Aggregator {
	return &Aggregator{opts: opts}
}

type period struct {
	start time.Time
	rows  []models.Observation
}

// groupBy splits a date-ordered series into runs sharing the same key. Keys
// must be monotonic in date, so each period is one contiguous run and periods
// come out in chronological order.
func groupBy(s models.DailySeries, key func(time.Time) time.Time) []period {
	var periods []period
	for _, o := range s.Observations() {
		k := key(o.Date)
		if n := len(periods); n > 0 && periods[n-1].start.Equal(k) {
			periods[n-1].rows = append(periods[n-1].rows, o)
			continue
		}
		periods = append(periods, period{start: k, rows: []models.Observation{o}})
	}
	return periods
}

// values lays the period out one entry per calendar day from its first to
// its last observation, NaN for missing days and dates absent from the record.
func (p period) values() []float64 {
	first := p.rows[0].Date
	last := p.rows[len(p.rows)-1].Date
	vals := make([]float64, daysBetween(first, last)+1)
	for i := range vals {
		vals[i] = math.NaN()
	}
	for _, o := range p.rows {
		if !o.Missing() {
			vals[daysBetween(first, o.Date)] = o.Discharge.Float64
		}
	}
	return vals
}

func (p period) siteID() string {
	for _, o := range p.rows {
		if o.SiteID != "" {
			return o.SiteID
		}
	}
	return ""
}

func daysBetween(a, b time.Time) int {
	return int(b.Sub(a).Hours() / 24)
}

// Annual computes water-year statistics.
func (a *Aggregator) Annual(s models.DailySeries) []models.AnnualStats {
	periods := groupBy(s, func(t time.Time) time.Time { return WaterYearStart(WaterYear(t)) })
	out := make([]models.AnnualStats, 0, len(periods))
	for _, p := range periods {
		vals := p.values()
		out = append(out, models.AnnualStats{
			WaterYear:   p.start.Year(),
			PeriodStart: p.start,
			SiteID:      p.siteID(),
			Days:        len(p.rows),
			MeanFlow:    Mean(vals),
			PeakFlow:    Peak(vals),
			MedianFlow:  Median(vals),
			CoeffVar:    CoeffVar(vals),
			Skew:        Skew(vals, a.opts.SkewCorrected),
			Tqmean:      Tqmean(vals),
			RBIndex:     RBIndex(vals),
			SevenQ:      SevenQ(vals),
			ExceedCount: ExceedCount(vals),
		})
	}
	return out
}

// Monthly computes calendar-month statistics, labelled by the first day of
// each month.
func (a *Aggregator) Monthly(s models.DailySeries) []models.MonthlyStats {
	periods := groupBy(s, MonthStart)
	out := make([]models.MonthlyStats, 0, len(periods))
	for _, p := range periods {
		vals := p.values()
		out = append(out, models.MonthlyStats{
			PeriodStart: p.start,
			SiteID:      p.siteID(),
			Days:        len(p.rows),
			MeanFlow:    Mean(vals),
			CoeffVar:    CoeffVar(vals),
			Tqmean:      Tqmean(vals),
			RBIndex:     RBIndex(vals),
		})
	}
	return out
}
