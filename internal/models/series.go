package models

import (
	"errors"
	"math"
	"sort"
	"time"
)

// ErrEmptyRange is returned by callers that treat an empty clipped series as fatal.
var ErrEmptyRange = errors.New("no observations in date range")

// DailySeries is an immutable, date-ordered run of daily observations with
// unique dates. Missing discharge is kept as a row, never dropped.
type DailySeries struct {
	obs []Observation
}

// NewDailySeries copies obs and orders it by date. Callers are responsible
// for date uniqueness.
func NewDailySeries(obs []Observation) DailySeries {
	cp := make([]Observation, len(obs))
	copy(cp, obs)
	for i := range cp {
		cp[i].Date = Day(cp[i].Date)
	}
	sort.SliceStable(cp, func(i, j int) bool { return cp[i].Date.Before(cp[j].Date) })
	return DailySeries{obs: cp}
}

// Day truncates t to midnight UTC of its calendar date.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func (s DailySeries) Len() int {
	return len(s.obs)
}

func (s DailySeries) At(i int) Observation {
	return s.obs[i]
}

// Observations returns a copy of the underlying rows.
func (s DailySeries) Observations() []Observation {
	cp := make([]Observation, len(s.obs))
	copy(cp, s.obs)
	return cp
}

func (s DailySeries) Start() time.Time {
	if len(s.obs) == 0 {
		return time.Time{}
	}
	return s.obs[0].Date
}

func (s DailySeries) End() time.Time {
	if len(s.obs) == 0 {
		return time.Time{}
	}
	return s.obs[len(s.obs)-1].Date
}

// MissingCount counts rows without a valid discharge.
func (s DailySeries) MissingCount() int {
	n := 0
	for _, o := range s.obs {
		if o.Missing() {
			n++
		}
	}
	return n
}

// Values returns discharge in date order with NaN for missing rows.
func (s DailySeries) Values() []float64 {
	vals := make([]float64, len(s.obs))
	for i, o := range s.obs {
		if o.Missing() {
			vals[i] = math.NaN()
			continue
		}
		vals[i] = o.Discharge.Float64
	}
	return vals
}

// Clip returns the observations dated within [start, end] inclusive together
// with the number of missing values inside that window. A window outside the
// series yields an empty series.
func (s DailySeries) Clip(start, end time.Time) (DailySeries, int) {
	start, end = Day(start), Day(end)
	lo := sort.Search(len(s.obs), func(i int) bool { return !s.obs[i].Date.Before(start) })
	hi := sort.Search(len(s.obs), func(i int) bool { return s.obs[i].Date.After(end) })
	if hi <= lo {
		return DailySeries{}, 0
	}
	clipped := DailySeries{obs: make([]Observation, hi-lo)}
	copy(clipped.obs, s.obs[lo:hi])
	return clipped, clipped.MissingCount()
}
