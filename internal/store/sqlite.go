package store

import (
	"database/sql"
	"fmt"
	"math"
	"time"

	"github.com/lox/flowstats/internal/hydro"
	"github.com/lox/flowstats/internal/ingest"
	"github.com/lox/flowstats/internal/models"
)

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// nullFloat maps NaN to NULL; SQLite cannot hold NaN.
func nullFloat(f float64) sql.NullFloat64 {
	if math.IsNaN(f) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: f, Valid: true}
}

func floatOrNaN(n sql.NullFloat64) float64 {
	if !n.Valid {
		return math.NaN()
	}
	return n.Float64
}

func (s *Store) UpsertStation(st models.Station) error {
	_, err := s.db.Exec(`
		INSERT INTO stations (label, site_id, source, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(label) DO UPDATE SET
			site_id = excluded.site_id,
			source = excluded.source,
			updated_at = excluded.updated_at
	`, st.Label, st.SiteID, st.Source, time.Now().UTC())
	return err
}

func (s *Store) GetStations() ([]models.Station, error) {
	rows, err := s.db.Query(`SELECT label, COALESCE(site_id, ''), source FROM stations ORDER BY label`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stations []models.Station
	for rows.Next() {
		var st models.Station
		if err := rows.Scan(&st.Label, &st.SiteID, &st.Source); err != nil {
			return nil, err
		}
		stations = append(stations, st)
	}
	return stations, rows.Err()
}

func (s *Store) GetStation(label string) (*models.Station, error) {
	var st models.Station
	err := s.db.QueryRow(`SELECT label, COALESCE(site_id, ''), source FROM stations WHERE label = ?`, label).
		Scan(&st.Label, &st.SiteID, &st.Source)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// SaveObservations upserts every row of series for station in one transaction.
func (s *Store) SaveObservations(station string, series models.DailySeries) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO observations (station, date, agency, site_id, discharge, quality, qc_flags)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(station, date) DO UPDATE SET
			agency = excluded.agency,
			site_id = excluded.site_id,
			discharge = excluded.discharge,
			quality = excluded.quality,
			qc_flags = excluded.qc_flags
	`)
	if err != nil {
		return fmt.Errorf("prepare observation insert: %w", err)
	}
	defer stmt.Close()

	for i := 0; i < series.Len(); i++ {
		o := series.At(i)
		if _, err := stmt.Exec(station, o.Date, o.Agency, o.SiteID, o.Discharge, o.Quality,
			ingest.QualityFlagsToJSON(o.Flags)); err != nil {
			return fmt.Errorf("insert observation %s: %w", o.Date.Format("2006-01-02"), err)
		}
	}

	return tx.Commit()
}

// GetObservations returns the stored series for station within [start, end].
func (s *Store) GetObservations(station string, start, end time.Time) (models.DailySeries, error) {
	rows, err := s.db.Query(`
		SELECT date, COALESCE(agency, ''), COALESCE(site_id, ''), discharge, COALESCE(quality, ''), COALESCE(qc_flags, '')
		FROM observations
		WHERE station = ? AND date >= ? AND date <= ?
		ORDER BY date ASC
	`, station, start, end)
	if err != nil {
		return models.DailySeries{}, err
	}
	defer rows.Close()

	var obs []models.Observation
	for rows.Next() {
		var o models.Observation
		var flags string
		if err := rows.Scan(&o.Date, &o.Agency, &o.SiteID, &o.Discharge, &o.Quality, &flags); err != nil {
			return models.DailySeries{}, err
		}
		o.Flags = ingest.QualityFlagsFromJSON(flags)
		obs = append(obs, o)
	}
	if err := rows.Err(); err != nil {
		return models.DailySeries{}, err
	}
	return models.NewDailySeries(obs), nil
}

// ObservationSummary is the stored row count and date span for a station.
type ObservationSummary struct {
	Rows    int
	Missing int
	First   sql.NullString
	Last    sql.NullString
}

func (s *Store) GetObservationSummary(station string) (ObservationSummary, error) {
	var sum ObservationSummary
	err := s.db.QueryRow(`
		SELECT COUNT(*), COALESCE(SUM(CASE WHEN discharge IS NULL THEN 1 ELSE 0 END), 0),
			MIN(SUBSTR(date, 1, 10)), MAX(SUBSTR(date, 1, 10))
		FROM observations
		WHERE station = ?
	`, station).Scan(&sum.Rows, &sum.Missing, &sum.First, &sum.Last)
	return sum, err
}

// SaveStats replaces every computed table for station in one transaction.
func (s *Store) SaveStats(station string, annual []models.AnnualStats, monthly []models.MonthlyStats,
	annualAvg models.AnnualAverage, monthlyAvg []models.MonthlyAverage) error {

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"annual_stats", "monthly_stats", "annual_averages", "monthly_averages"} {
		if _, err := tx.Exec(`DELETE FROM `+table+` WHERE station = ?`, station); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	for _, r := range annual {
		if _, err := tx.Exec(`
			INSERT INTO annual_stats (station, water_year, period_start, site_id, days, mean_flow, peak_flow,
				median_flow, coeff_var, skew, tqmean, rb_index, seven_q, exceed_count)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, station, r.WaterYear, r.PeriodStart, r.SiteID, r.Days, nullFloat(r.MeanFlow), nullFloat(r.PeakFlow),
			nullFloat(r.MedianFlow), nullFloat(r.CoeffVar), nullFloat(r.Skew), nullFloat(r.Tqmean),
			nullFloat(r.RBIndex), nullFloat(r.SevenQ), nullFloat(r.ExceedCount)); err != nil {
			return fmt.Errorf("insert annual stats %d: %w", r.WaterYear, err)
		}
	}

	for _, r := range monthly {
		if _, err := tx.Exec(`
			INSERT INTO monthly_stats (station, period_start, site_id, days, mean_flow, coeff_var, tqmean, rb_index)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, station, r.PeriodStart, r.SiteID, r.Days, nullFloat(r.MeanFlow), nullFloat(r.CoeffVar),
			nullFloat(r.Tqmean), nullFloat(r.RBIndex)); err != nil {
			return fmt.Errorf("insert monthly stats %s: %w", r.PeriodStart.Format("2006-01"), err)
		}
	}

	a := annualAvg
	if _, err := tx.Exec(`
		INSERT INTO annual_averages (station, site_id, years, mean_flow, peak_flow, median_flow, coeff_var,
			skew, tqmean, rb_index, seven_q, exceed_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, station, a.SiteID, a.Years, nullFloat(a.MeanFlow), nullFloat(a.PeakFlow), nullFloat(a.MedianFlow),
		nullFloat(a.CoeffVar), nullFloat(a.Skew), nullFloat(a.Tqmean), nullFloat(a.RBIndex),
		nullFloat(a.SevenQ), nullFloat(a.ExceedCount)); err != nil {
		return fmt.Errorf("insert annual averages: %w", err)
	}

	for i, m := range monthlyAvg {
		if _, err := tx.Exec(`
			INSERT INTO monthly_averages (station, month, position, site_id, count, mean_flow, coeff_var, tqmean, rb_index)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, station, int(m.Month), i, m.SiteID, m.Count, nullFloat(m.MeanFlow), nullFloat(m.CoeffVar),
			nullFloat(m.Tqmean), nullFloat(m.RBIndex)); err != nil {
			return fmt.Errorf("insert monthly averages %s: %w", m.Month, err)
		}
	}

	return tx.Commit()
}

func (s *Store) GetAnnualStats(station string) ([]models.AnnualStats, error) {
	rows, err := s.db.Query(`
		SELECT water_year, period_start, COALESCE(site_id, ''), days, mean_flow, peak_flow, median_flow,
			coeff_var, skew, tqmean, rb_index, seven_q, exceed_count
		FROM annual_stats
		WHERE station = ?
		ORDER BY water_year ASC
	`, station)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.AnnualStats
	for rows.Next() {
		var r models.AnnualStats
		var mean, peak, median, cv, skew, tq, rb, q7, exceed sql.NullFloat64
		if err := rows.Scan(&r.WaterYear, &r.PeriodStart, &r.SiteID, &r.Days, &mean, &peak, &median,
			&cv, &skew, &tq, &rb, &q7, &exceed); err != nil {
			return nil, err
		}
		r.MeanFlow, r.PeakFlow, r.MedianFlow = floatOrNaN(mean), floatOrNaN(peak), floatOrNaN(median)
		r.CoeffVar, r.Skew, r.Tqmean = floatOrNaN(cv), floatOrNaN(skew), floatOrNaN(tq)
		r.RBIndex, r.SevenQ, r.ExceedCount = floatOrNaN(rb), floatOrNaN(q7), floatOrNaN(exceed)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) GetMonthlyStats(station string) ([]models.MonthlyStats, error) {
	rows, err := s.db.Query(`
		SELECT period_start, COALESCE(site_id, ''), days, mean_flow, coeff_var, tqmean, rb_index
		FROM monthly_stats
		WHERE station = ?
		ORDER BY period_start ASC
	`, station)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.MonthlyStats
	for rows.Next() {
		var r models.MonthlyStats
		var mean, cv, tq, rb sql.NullFloat64
		if err := rows.Scan(&r.PeriodStart, &r.SiteID, &r.Days, &mean, &cv, &tq, &rb); err != nil {
			return nil, err
		}
		r.MeanFlow, r.CoeffVar, r.Tqmean, r.RBIndex = floatOrNaN(mean), floatOrNaN(cv), floatOrNaN(tq), floatOrNaN(rb)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) GetAnnualAverage(station string) (*models.AnnualAverage, error) {
	var a models.AnnualAverage
	var mean, peak, median, cv, skew, tq, rb, q7, exceed sql.NullFloat64
	err := s.db.QueryRow(`
		SELECT COALESCE(site_id, ''), years, mean_flow, peak_flow, median_flow, coeff_var, skew, tqmean,
			rb_index, seven_q, exceed_count
		FROM annual_averages
		WHERE station = ?
	`, station).Scan(&a.SiteID, &a.Years, &mean, &peak, &median, &cv, &skew, &tq, &rb, &q7, &exceed)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	a.MeanFlow, a.PeakFlow, a.MedianFlow = floatOrNaN(mean), floatOrNaN(peak), floatOrNaN(median)
	a.CoeffVar, a.Skew, a.Tqmean = floatOrNaN(cv), floatOrNaN(skew), floatOrNaN(tq)
	a.RBIndex, a.SevenQ, a.ExceedCount = floatOrNaN(rb), floatOrNaN(q7), floatOrNaN(exceed)
	return &a, nil
}

// GetMonthlyAverages returns the month-of-year averages in water-year order.
func (s *Store) GetMonthlyAverages(station string) ([]models.MonthlyAverage, error) {
	rows, err := s.db.Query(`
		SELECT month, COALESCE(site_id, ''), count, mean_flow, coeff_var, tqmean, rb_index
		FROM monthly_averages
		WHERE station = ?
		ORDER BY position ASC
	`, station)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.MonthlyAverage
	for rows.Next() {
		var m models.MonthlyAverage
		var month int
		var mean, cv, tq, rb sql.NullFloat64
		if err := rows.Scan(&month, &m.SiteID, &m.Count, &mean, &cv, &tq, &rb); err != nil {
			return nil, err
		}
		m.Month = time.Month(month)
		m.MeanFlow, m.CoeffVar, m.Tqmean, m.RBIndex = floatOrNaN(mean), floatOrNaN(cv), floatOrNaN(tq), floatOrNaN(rb)
		out = append(out, m)
	}
	return out, rows.Err()
}

// RecomputeStats rebuilds every computed table for station from its stored
// observations within [start, end].
func (s *Store) RecomputeStats(station string, start, end time.Time, opts hydro.Options) error {
	series, err := s.GetObservations(station, start, end)
	if err != nil {
		return fmt.Errorf("load observations: %w", err)
	}
	agg := hydro.NewAggregator(opts)
	annual := agg.Annual(series)
	monthly := agg.Monthly(series)
	return s.SaveStats(station, annual, monthly, hydro.ReduceAnnual(annual), hydro.ReduceMonthly(monthly))
}
