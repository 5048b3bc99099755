package pipeline

import (
	"context"
	"log"
	"time"

	"github.com/lox/flowstats/internal/models"
)

// Scheduler reruns the pipeline for every station on a fixed interval so a
// long-running server picks up new records from remote sources.
type Scheduler struct {
	pipeline *Pipeline
	stations []models.Station
	interval time.Duration
}

func NewScheduler(p *Pipeline, stations []models.Station, interval time.Duration) *Scheduler {
	return &Scheduler{
		pipeline: p,
		stations: stations,
		interval: interval,
	}
}

// Run refreshes once immediately, then on every tick until ctx is done.
func (s *Scheduler) Run(ctx context.Context) {
	s.refresh(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("scheduler: shutting down")
			return
		case <-ticker.C:
			s.refresh(ctx)
		}
	}
}

// refresh runs each station independently; one failing station does not
// skip the rest.
func (s *Scheduler) refresh(ctx context.Context) {
	log.Printf("scheduler: refreshing %d stations", len(s.stations))
	ok := 0
	for _, st := range s.stations {
		if ctx.Err() != nil {
			return
		}
		if _, err := s.pipeline.Run(ctx, st); err != nil {
			log.Printf("scheduler: %v", err)
			continue
		}
		ok++
	}
	log.Printf("scheduler: refreshed %d/%d stations", ok, len(s.stations))
}
