package models

import (
	"database/sql"
	"time"
)

// Station is one configured gauging station: a label used in reports and the
// source its daily record is read from.
type Station struct {
	Label  string
	Source string
	SiteID string // filled in from the loaded record
}

type Observation struct {
	Date      time.Time
	Agency    string
	SiteID    string
	Discharge sql.NullFloat64
	Quality   string
	Flags     []string
}

// Missing reports whether the observation has no usable discharge.
func (o Observation) Missing() bool {
	return !o.Discharge.Valid
}

// AnnualStats is one water year of descriptive statistics. WaterYear is the
// calendar year the period starts in (October 1).
type AnnualStats struct {
	WaterYear   int
	PeriodStart time.Time
	SiteID      string
	Days        int
	MeanFlow    float64
	PeakFlow    float64
	MedianFlow  float64
	CoeffVar    float64
	Skew        float64
	Tqmean      float64
	RBIndex     float64
	SevenQ      float64
	ExceedCount float64
}

type MonthlyStats struct {
	PeriodStart time.Time
	SiteID      string
	Days        int
	MeanFlow    float64
	CoeffVar    float64
	Tqmean      float64
	RBIndex     float64
}

// AnnualAverage holds the mean of each annual statistic across all water years.
type AnnualAverage struct {
	SiteID      string
	Years       int
	MeanFlow    float64
	PeakFlow    float64
	MedianFlow  float64
	CoeffVar    float64
	Skew        float64
	Tqmean      float64
	RBIndex     float64
	SevenQ      float64
	ExceedCount float64
}

// MonthlyAverage holds the mean of each monthly statistic for one month of
// the year, across every year that month appears in.
type MonthlyAverage struct {
	Month    time.Month
	SiteID   string
	Count    int
	MeanFlow float64
	CoeffVar float64
	Tqmean   float64
	RBIndex  float64
}

// PipelineRun is an audit record of one station pipeline execution.
type PipelineRun struct {
	ID             string
	Station        string
	StartedAt      time.Time
	FinishedAt     sql.NullTime
	RowsLoaded     sql.NullInt64
	MissingLoaded  sql.NullInt64
	MissingClipped sql.NullInt64
	AnnualPeriods  sql.NullInt64
	MonthlyPeriods sql.NullInt64
	Success        bool
	ErrorMessage   sql.NullString
}
