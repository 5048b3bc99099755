package store

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/klauspost/compress/zstd"
)

var (
	encoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	decoder, _ = zstd.NewReader(nil)
)

// RawSource is an archived copy of a station's discharge file.
type RawSource struct {
	ID          int64
	RunID       sql.NullString
	Station     string
	Source      string
	FetchedAt   time.Time
	SizeBytes   int64
	PayloadHash string
}

// StoreRawSource archives a zstd-compressed copy of payload.
// Returns the row ID, or 0 if an identical payload is already stored.
func (s *Store) StoreRawSource(runID, station, source string, payload []byte) (int64, error) {
	compressed := encoder.EncodeAll(payload, nil)

	hash := sha256.Sum256(payload)
	hashHex := hex.EncodeToString(hash[:])

	var run sql.NullString
	if runID != "" {
		run = sql.NullString{String: runID, Valid: true}
	}

	result, err := s.db.Exec(`
		INSERT INTO raw_sources
		(run_id, station, source, fetched_at, size_bytes, payload_compressed, payload_hash)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(payload_hash) DO NOTHING
	`, run, station, source, time.Now().UTC(), len(payload), compressed, hashHex)
	if err != nil {
		return 0, fmt.Errorf("insert raw source: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, nil
	}
	return result.LastInsertId()
}

// GetRawSource retrieves and decompresses an archived payload by ID.
func (s *Store) GetRawSource(id int64) ([]byte, error) {
	var compressed []byte
	err := s.db.QueryRow(`SELECT payload_compressed FROM raw_sources WHERE id = ?`, id).
		Scan(&compressed)
	if err != nil {
		return nil, err
	}

	payload, err := decoder.DecodeAll(compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress raw source: %w", err)
	}
	return payload, nil
}

// GetRawSources lists the archive entries for station, newest first.
func (s *Store) GetRawSources(station string) ([]RawSource, error) {
	rows, err := s.db.Query(`
		SELECT id, run_id, station, source, fetched_at, size_bytes, payload_hash
		FROM raw_sources
		WHERE station = ?
		ORDER BY fetched_at DESC
	`, station)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []RawSource
	for rows.Next() {
		var r RawSource
		if err := rows.Scan(&r.ID, &r.RunID, &r.Station, &r.Source, &r.FetchedAt,
			&r.SizeBytes, &r.PayloadHash); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}
