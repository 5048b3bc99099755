package pipeline

import (
	"fmt"
	"log"
	"time"

	"github.com/lox/flowstats/internal/hydro"
	"github.com/lox/flowstats/internal/models"
)

// Recomputer rebuilds a station's statistics from stored observations.
type Recomputer interface {
	RecomputeStats(station string, start, end time.Time, opts hydro.Options) error
}

// Recompute rebuilds the statistics tables of every station from the
// observations already in the store, without fetching. It stops at the
// first failing station.
func Recompute(st Recomputer, stations []models.Station, opts Options) error {
	for _, station := range stations {
		if err := st.RecomputeStats(station.Label, opts.Start, opts.End,
			hydro.Options{SkewCorrected: opts.SkewCorrected}); err != nil {
			return fmt.Errorf("station %s: %w", station.Label, err)
		}
		log.Printf("recompute: %s: rebuilt statistics for %s..%s", station.Label,
			opts.Start.Format(time.DateOnly), opts.End.Format(time.DateOnly))
	}
	return nil
}
