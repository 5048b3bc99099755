package store

import (
	"database/sql"
	"fmt"
	"log"
	"time"
)

type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "Initial schema",
		SQL: `
CREATE TABLE IF NOT EXISTS stations (
    label TEXT PRIMARY KEY,
    site_id TEXT,
    source TEXT NOT NULL,
    updated_at DATETIME
);

CREATE TABLE IF NOT EXISTS observations (
    station TEXT NOT NULL,
    date DATE NOT NULL,
    agency TEXT,
    site_id TEXT,
    discharge REAL,
    quality TEXT,
    qc_flags TEXT,
    PRIMARY KEY (station, date)
);

CREATE TABLE IF NOT EXISTS annual_stats (
    station TEXT NOT NULL,
    water_year INTEGER NOT NULL,
    period_start DATE NOT NULL,
    site_id TEXT,
    days INTEGER,
    mean_flow REAL,
    peak_flow REAL,
    median_flow REAL,
    coeff_var REAL,
    skew REAL,
    tqmean REAL,
    rb_index REAL,
    seven_q REAL,
    exceed_count REAL,
    PRIMARY KEY (station, water_year)
);

CREATE TABLE IF NOT EXISTS monthly_stats (
    station TEXT NOT NULL,
    period_start DATE NOT NULL,
    site_id TEXT,
    days INTEGER,
    mean_flow REAL,
    coeff_var REAL,
    tqmean REAL,
    rb_index REAL,
    PRIMARY KEY (station, period_start)
);

CREATE TABLE IF NOT EXISTS annual_averages (
    station TEXT PRIMARY KEY,
    site_id TEXT,
    years INTEGER,
    mean_flow REAL,
    peak_flow REAL,
    median_flow REAL,
    coeff_var REAL,
    skew REAL,
    tqmean REAL,
    rb_index REAL,
    seven_q REAL,
    exceed_count REAL
);

CREATE TABLE IF NOT EXISTS monthly_averages (
    station TEXT NOT NULL,
    month INTEGER NOT NULL,
    position INTEGER NOT NULL,
    site_id TEXT,
    count INTEGER,
    mean_flow REAL,
    coeff_var REAL,
    tqmean REAL,
    rb_index REAL,
    PRIMARY KEY (station, month)
);

CREATE INDEX IF NOT EXISTS idx_obs_date ON observations(date);
`,
	},
	{
		Version:     2,
		Description: "Add pipeline run audit and raw source archive",
		SQL: `
CREATE TABLE IF NOT EXISTS pipeline_runs (
    id TEXT PRIMARY KEY,
    station TEXT NOT NULL,
    started_at DATETIME NOT NULL,
    finished_at DATETIME,
    rows_loaded INTEGER,
    missing_loaded INTEGER,
    missing_clipped INTEGER,
    annual_periods INTEGER,
    monthly_periods INTEGER,
    success BOOLEAN NOT NULL DEFAULT FALSE,
    error_message TEXT
);

CREATE INDEX IF NOT EXISTS idx_runs_started ON pipeline_runs(started_at);
CREATE INDEX IF NOT EXISTS idx_runs_station ON pipeline_runs(station, started_at);

CREATE TABLE IF NOT EXISTS raw_sources (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT REFERENCES pipeline_runs(id),
    station TEXT NOT NULL,
    source TEXT NOT NULL,
    fetched_at DATETIME NOT NULL,
    size_bytes INTEGER,
    payload_compressed BLOB NOT NULL,
    payload_hash TEXT NOT NULL UNIQUE
);
`,
	},
}

func (s *Store) Migrate() error {
	if err := s.ensureMigrationsTable(); err != nil {
		return fmt.Errorf("ensure migrations table: %w", err)
	}

	applied, err := s.getAppliedMigrations()
	if err != nil {
		return fmt.Errorf("get applied migrations: %w", err)
	}

	for _, m := range migrations {
		if applied[m.Version] {
			continue
		}

		log.Printf("migrations: applying %d - %s", m.Version, m.Description)

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("begin tx for migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("execute migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_migrations (version, description, applied_at) VALUES (?, ?, ?)",
			m.Version, m.Description, time.Now().UTC(),
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}

		log.Printf("migrations: completed %d", m.Version)
	}

	return nil
}

func (s *Store) ensureMigrationsTable() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			description TEXT,
			applied_at DATETIME
		)
	`)
	return err
}

func (s *Store) getAppliedMigrations() (map[int]bool, error) {
	rows, err := s.db.Query("SELECT version FROM schema_migrations")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		applied[version] = true
	}
	return applied, rows.Err()
}

func (s *Store) MigrationVersion() (int, error) {
	var version sql.NullInt64
	err := s.db.QueryRow("SELECT MAX(version) FROM schema_migrations").Scan(&version)
	if err != nil {
		return 0, err
	}
	if !version.Valid {
		return 0, nil
	}
	return int(version.Int64), nil
}
