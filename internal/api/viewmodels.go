package api

import (
	"math"
	"time"

	"github.com/lox/flowstats/internal/models"
	"github.com/lox/flowstats/internal/store"
)

// num renders NaN as JSON null.
func num(f float64) *float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

type StationView struct {
	Label        string `json:"label"`
	SiteID       string `json:"site_id,omitempty"`
	Source       string `json:"source"`
	Observations int    `json:"observations"`
	Missing      int    `json:"missing"`
	FirstDate    string `json:"first_date,omitempty"`
	LastDate     string `json:"last_date,omitempty"`
}

type AnnualView struct {
	WaterYear   int      `json:"water_year"`
	PeriodStart string   `json:"period_start"`
	SiteID      string   `json:"site_no"`
	Days        int      `json:"days"`
	MeanFlow    *float64 `json:"mean_flow"`
	PeakFlow    *float64 `json:"peak_flow"`
	MedianFlow  *float64 `json:"median_flow"`
	CoeffVar    *float64 `json:"coeff_var"`
	Skew        *float64 `json:"skew"`
	Tqmean      *float64 `json:"tqmean"`
	RBIndex     *float64 `json:"rb_index"`
	SevenQ      *float64 `json:"seven_q"`
	ExceedCount *float64 `json:"exceed_3x_median"`
}

func newAnnualView(r models.AnnualStats) AnnualView {
	return AnnualView{
		WaterYear:   r.WaterYear,
		PeriodStart: r.PeriodStart.Format(time.DateOnly),
		SiteID:      r.SiteID,
		Days:        r.Days,
		MeanFlow:    num(r.MeanFlow),
		PeakFlow:    num(r.PeakFlow),
		MedianFlow:  num(r.MedianFlow),
		CoeffVar:    num(r.CoeffVar),
		Skew:        num(r.Skew),
		Tqmean:      num(r.Tqmean),
		RBIndex:     num(r.RBIndex),
		SevenQ:      num(r.SevenQ),
		ExceedCount: num(r.ExceedCount),
	}
}

type MonthlyView struct {
	PeriodStart string   `json:"period_start"`
	SiteID      string   `json:"site_no"`
	Days        int      `json:"days"`
	MeanFlow    *float64 `json:"mean_flow"`
	CoeffVar    *float64 `json:"coeff_var"`
	Tqmean      *float64 `json:"tqmean"`
	RBIndex     *float64 `json:"rb_index"`
}

func newMonthlyView(r models.MonthlyStats) MonthlyView {
	return MonthlyView{
		PeriodStart: r.PeriodStart.Format(time.DateOnly),
		SiteID:      r.SiteID,
		Days:        r.Days,
		MeanFlow:    num(r.MeanFlow),
		CoeffVar:    num(r.CoeffVar),
		Tqmean:      num(r.Tqmean),
		RBIndex:     num(r.RBIndex),
	}
}

type AnnualAverageView struct {
	SiteID      string   `json:"site_no"`
	Years       int      `json:"years"`
	MeanFlow    *float64 `json:"mean_flow"`
	PeakFlow    *float64 `json:"peak_flow"`
	MedianFlow  *float64 `json:"median_flow"`
	CoeffVar    *float64 `json:"coeff_var"`
	Skew        *float64 `json:"skew"`
	Tqmean      *float64 `json:"tqmean"`
	RBIndex     *float64 `json:"rb_index"`
	SevenQ      *float64 `json:"seven_q"`
	ExceedCount *float64 `json:"exceed_3x_median"`
}

type MonthlyAverageView struct {
	Month    int      `json:"month"`
	Name     string   `json:"name"`
	Count    int      `json:"count"`
	MeanFlow *float64 `json:"mean_flow"`
	CoeffVar *float64 `json:"coeff_var"`
	Tqmean   *float64 `json:"tqmean"`
	RBIndex  *float64 `json:"rb_index"`
}

// AveragesView is the multi-year summary for one station.
type AveragesView struct {
	Station string               `json:"station"`
	Annual  *AnnualAverageView   `json:"annual"`
	Monthly []MonthlyAverageView `json:"monthly"`
}

func newAveragesView(label string, a *models.AnnualAverage, months []models.MonthlyAverage) AveragesView {
	v := AveragesView{Station: label, Monthly: make([]MonthlyAverageView, 0, len(months))}
	if a != nil {
		v.Annual = &AnnualAverageView{
			SiteID:      a.SiteID,
			Years:       a.Years,
			MeanFlow:    num(a.MeanFlow),
			PeakFlow:    num(a.PeakFlow),
			MedianFlow:  num(a.MedianFlow),
			CoeffVar:    num(a.CoeffVar),
			Skew:        num(a.Skew),
			Tqmean:      num(a.Tqmean),
			RBIndex:     num(a.RBIndex),
			SevenQ:      num(a.SevenQ),
			ExceedCount: num(a.ExceedCount),
		}
	}
	for _, m := range months {
		v.Monthly = append(v.Monthly, MonthlyAverageView{
			Month:    int(m.Month),
			Name:     m.Month.String(),
			Count:    m.Count,
			MeanFlow: num(m.MeanFlow),
			CoeffVar: num(m.CoeffVar),
			Tqmean:   num(m.Tqmean),
			RBIndex:  num(m.RBIndex),
		})
	}
	return v
}

type RunView struct {
	ID             string     `json:"id"`
	Station        string     `json:"station"`
	StartedAt      time.Time  `json:"started_at"`
	FinishedAt     *time.Time `json:"finished_at,omitempty"`
	RowsLoaded     *int64     `json:"rows_loaded,omitempty"`
	MissingLoaded  *int64     `json:"missing_loaded,omitempty"`
	MissingClipped *int64     `json:"missing_clipped,omitempty"`
	AnnualPeriods  *int64     `json:"annual_periods,omitempty"`
	MonthlyPeriods *int64     `json:"monthly_periods,omitempty"`
	Success        bool       `json:"success"`
	Error          string     `json:"error,omitempty"`
}

func newRunView(r models.PipelineRun) RunView {
	v := RunView{
		ID:        r.ID,
		Station:   r.Station,
		StartedAt: r.StartedAt,
		Success:   r.Success,
		Error:     r.ErrorMessage.String,
	}
	if r.FinishedAt.Valid {
		v.FinishedAt = &r.FinishedAt.Time
	}
	if r.RowsLoaded.Valid {
		v.RowsLoaded = &r.RowsLoaded.Int64
	}
	if r.MissingLoaded.Valid {
		v.MissingLoaded = &r.MissingLoaded.Int64
	}
	if r.MissingClipped.Valid {
		v.MissingClipped = &r.MissingClipped.Int64
	}
	if r.AnnualPeriods.Valid {
		v.AnnualPeriods = &r.AnnualPeriods.Int64
	}
	if r.MonthlyPeriods.Valid {
		v.MonthlyPeriods = &r.MonthlyPeriods.Int64
	}
	return v
}

type RawSourceView struct {
	ID          int64     `json:"id"`
	RunID       string    `json:"run_id,omitempty"`
	Source      string    `json:"source"`
	FetchedAt   time.Time `json:"fetched_at"`
	SizeBytes   int64     `json:"size_bytes"`
	PayloadHash string    `json:"payload_hash"`
}

func newRawSourceView(r store.RawSource) RawSourceView {
	return RawSourceView{
		ID:          r.ID,
		RunID:       r.RunID.String,
		Source:      r.Source,
		FetchedAt:   r.FetchedAt,
		SizeBytes:   r.SizeBytes,
		PayloadHash: r.PayloadHash,
	}
}

// HealthStatus reports database reachability and the latest run per station.
type HealthStatus struct {
	Status        string          `json:"status"`
	SchemaVersion int             `json:"schema_version"`
	Stations      []StationHealth `json:"stations"`
	Errors        []string        `json:"errors,omitempty"`
}

type StationHealth struct {
	Label       string     `json:"label"`
	LastRun     *time.Time `json:"last_run,omitempty"`
	LastSuccess bool       `json:"last_success"`
}
