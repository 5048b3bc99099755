package hydro

import (
	"time"

	"github.com/lox/flowstats/internal/models"
)

// WaterYearMonths lists calendar months in water-year order.
var WaterYearMonths = [12]time.Month{
	time.October, time.November, time.December,
	time.January, time.February, time.March,
	time.April, time.May, time.June,
	time.July, time.August, time.September,
}

// column collects one field across rows.
func column[T any](rows []T, field func(T) float64) []float64 {
	vals := make([]float64, len(rows))
	for i, r := range rows {
		vals[i] = field(r)
	}
	return vals
}

// ReduceAnnual averages every statistic across all water years. Undefined
// (NaN) entries are skipped; a column with no defined entries stays NaN.
func ReduceAnnual(rows []models.AnnualStats) models.AnnualAverage {
	avg := models.AnnualAverage{
		Years:       len(rows),
		MeanFlow:    Mean(column(rows, func(r models.AnnualStats) float64 { return r.MeanFlow })),
		PeakFlow:    Mean(column(rows, func(r models.AnnualStats) float64 { return r.PeakFlow })),
		MedianFlow:  Mean(column(rows, func(r models.AnnualStats) float64 { return r.MedianFlow })),
		CoeffVar:    Mean(column(rows, func(r models.AnnualStats) float64 { return r.CoeffVar })),
		Skew:        Mean(column(rows, func(r models.AnnualStats) float64 { return r.Skew })),
		Tqmean:      Mean(column(rows, func(r models.AnnualStats) float64 { return r.Tqmean })),
		RBIndex:     Mean(column(rows, func(r models.AnnualStats) float64 { return r.RBIndex })),
		SevenQ:      Mean(column(rows, func(r models.AnnualStats) float64 { return r.SevenQ })),
		ExceedCount: Mean(column(rows, func(r models.AnnualStats) float64 { return r.ExceedCount })),
	}
	if len(rows) > 0 {
		avg.SiteID = rows[0].SiteID
	}
	return avg
}

// ReduceMonthly averages monthly statistics by month of year. The result
// always has 12 rows in water-year order (October first); a month absent
// from the input carries NaN statistics and a zero count.
func ReduceMonthly(rows []models.MonthlyStats) []models.MonthlyAverage {
	byMonth := make(map[time.Month][]models.MonthlyStats, 12)
	for _, r := range rows {
		m := r.PeriodStart.Month()
		byMonth[m] = append(byMonth[m], r)
	}

	siteID := ""
	if len(rows) > 0 {
		siteID = rows[0].SiteID
	}

	out := make([]models.MonthlyAverage, 0, len(WaterYearMonths))
	for _, m := range WaterYearMonths {
		group := byMonth[m]
		out = append(out, models.MonthlyAverage{
			Month:    m,
			SiteID:   siteID,
			Count:    len(group),
			MeanFlow: Mean(column(group, func(r models.MonthlyStats) float64 { return r.MeanFlow })),
			CoeffVar: Mean(column(group, func(r models.MonthlyStats) float64 { return r.CoeffVar })),
			Tqmean:   Mean(column(group, func(r models.MonthlyStats) float64 { return r.Tqmean })),
			RBIndex:  Mean(column(group, func(r models.MonthlyStats) float64 { return r.RBIndex })),
		})
	}
	return out
}
