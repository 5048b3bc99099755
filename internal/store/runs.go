package store

import (
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/lox/flowstats/internal/models"
)

// StartPipelineRun creates a new run record for station and returns it.
func (s *Store) StartPipelineRun(station string) (*models.PipelineRun, error) {
	run := &models.PipelineRun{
		ID:        uuid.NewString(),
		Station:   station,
		StartedAt: time.Now().UTC(),
	}

	_, err := s.db.Exec(`
		INSERT INTO pipeline_runs (id, station, started_at, success)
		VALUES (?, ?, ?, FALSE)
	`, run.ID, run.Station, run.StartedAt)
	if err != nil {
		return nil, err
	}
	return run, nil
}

// CompletePipelineRun records the outcome of run.
func (s *Store) CompletePipelineRun(run *models.PipelineRun) error {
	if run == nil {
		return nil
	}

	run.FinishedAt = sql.NullTime{Time: time.Now().UTC(), Valid: true}

	_, err := s.db.Exec(`
		UPDATE pipeline_runs SET
			finished_at = ?,
			rows_loaded = ?,
			missing_loaded = ?,
			missing_clipped = ?,
			annual_periods = ?,
			monthly_periods = ?,
			success = ?,
			error_message = ?
		WHERE id = ?
	`, run.FinishedAt, run.RowsLoaded, run.MissingLoaded, run.MissingClipped,
		run.AnnualPeriods, run.MonthlyPeriods, run.Success, run.ErrorMessage, run.ID)
	return err
}

// GetRecentRuns returns the most recent pipeline runs, newest first.
func (s *Store) GetRecentRuns(limit int) ([]models.PipelineRun, error) {
	rows, err := s.db.Query(`
		SELECT id, station, started_at, finished_at, rows_loaded, missing_loaded, missing_clipped,
			   annual_periods, monthly_periods, success, error_message
		FROM pipeline_runs
		ORDER BY started_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []models.PipelineRun
	for rows.Next() {
		var r models.PipelineRun
		if err := rows.Scan(&r.ID, &r.Station, &r.StartedAt, &r.FinishedAt, &r.RowsLoaded,
			&r.MissingLoaded, &r.MissingClipped, &r.AnnualPeriods, &r.MonthlyPeriods,
			&r.Success, &r.ErrorMessage); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// GetLatestRun returns the most recent run for station, or nil if it has none.
func (s *Store) GetLatestRun(station string) (*models.PipelineRun, error) {
	var r models.PipelineRun
	err := s.db.QueryRow(`
		SELECT id, station, started_at, finished_at, rows_loaded, missing_loaded, missing_clipped,
			   annual_periods, monthly_periods, success, error_message
		FROM pipeline_runs
		WHERE station = ?
		ORDER BY started_at DESC
		LIMIT 1
	`, station).Scan(&r.ID, &r.Station, &r.StartedAt, &r.FinishedAt, &r.RowsLoaded,
		&r.MissingLoaded, &r.MissingClipped, &r.AnnualPeriods, &r.MonthlyPeriods,
		&r.Success, &r.ErrorMessage)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}
