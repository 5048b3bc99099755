// Package pipeline runs one station at a time through fetch, load, clip,
// aggregate and reduce, and optionally persists the outcome.
package pipeline

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/lox/flowstats/internal/config"
	"github.com/lox/flowstats/internal/hydro"
	"github.com/lox/flowstats/internal/ingest"
	"github.com/lox/flowstats/internal/metrics"
	"github.com/lox/flowstats/internal/models"
)

// Fetcher returns the raw bytes of a station source.
type Fetcher interface {
	Fetch(ctx context.Context, source string) ([]byte, error)
}

// Store is the persistence the pipeline writes to. *store.Store satisfies it.
type Store interface {
	StartPipelineRun(station string) (*models.PipelineRun, error)
	CompletePipelineRun(run *models.PipelineRun) error
	UpsertStation(st models.Station) error
	SaveObservations(station string, series models.DailySeries) error
	SaveStats(station string, annual []models.AnnualStats, monthly []models.MonthlyStats,
		annualAvg models.AnnualAverage, monthlyAvg []models.MonthlyAverage) error
	StoreRawSource(runID, station, source string, payload []byte) (int64, error)
}

type Options struct {
	Start         time.Time
	End           time.Time
	SkewCorrected bool
	// RequireData makes an empty clipped series an error (models.ErrEmptyRange).
	RequireData bool
}

// OptionsFromConfig copies the run settings out of cfg.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Start:         cfg.Start,
		End:           cfg.End,
		SkewCorrected: cfg.SkewCorrected,
		RequireData:   cfg.RequireData,
	}
}

// Result is everything one station run produced.
type Result struct {
	Station         models.Station
	Summary         ingest.LoadSummary
	Series          models.DailySeries // clipped
	LoadedMissing   int
	ClippedMissing  int
	Annual          []models.AnnualStats
	Monthly         []models.MonthlyStats
	AnnualAverage   models.AnnualAverage
	MonthlyAverages []models.MonthlyAverage
}

type Pipeline struct {
	fetcher Fetcher
	store   Store
	opts    Options
}

// New returns a pipeline. st may be nil, in which case nothing is persisted.
func New(fetcher Fetcher, st Store, opts Options) *Pipeline {
	return &Pipeline{fetcher: fetcher, store: st, opts: opts}
}

// Run processes one station.
func (p *Pipeline) Run(ctx context.Context, station models.Station) (*Result, error) {
	start := time.Now()

	var run *models.PipelineRun
	if p.store != nil {
		var err error
		run, err = p.store.StartPipelineRun(station.Label)
		if err != nil {
			log.Printf("pipeline: %s: start run record: %v", station.Label, err)
		}
	}

	res, err := p.run(ctx, station, run)

	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.PipelineRunsTotal.WithLabelValues(station.Label, status).Inc()
	metrics.PipelineDuration.WithLabelValues(station.Label).Observe(time.Since(start).Seconds())

	if run != nil {
		run.Success = err == nil
		if err != nil {
			run.ErrorMessage = sql.NullString{String: err.Error(), Valid: true}
		}
		if cerr := p.store.CompletePipelineRun(run); cerr != nil {
			log.Printf("pipeline: %s: complete run record: %v", station.Label, cerr)
		}
	}

	if err != nil {
		return nil, fmt.Errorf("station %s: %w", station.Label, err)
	}
	return res, nil
}

func (p *Pipeline) run(ctx context.Context, station models.Station, run *models.PipelineRun) (*Result, error) {
	raw, err := p.fetcher.Fetch(ctx, station.Source)
	if err != nil {
		return nil, fmt.Errorf("fetch source: %w", err)
	}

	loaded, summary, err := ingest.LoadWithSummary(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("load source: %w", err)
	}
	if loaded.Len() > 0 {
		station.SiteID = loaded.At(0).SiteID
	}
	log.Printf("pipeline: %s: loaded %d rows (%d missing)", station.Label, loaded.Len(), summary.Missing)
	metrics.ObservationsLoaded.WithLabelValues(station.Label).Add(float64(loaded.Len()))
	metrics.MissingValues.WithLabelValues(station.Label, "loaded").Set(float64(summary.Missing))

	clipped, clippedMissing := loaded.Clip(p.opts.Start, p.opts.End)
	log.Printf("pipeline: %s: clipped to %d rows (%d missing)", station.Label, clipped.Len(), clippedMissing)
	metrics.MissingValues.WithLabelValues(station.Label, "clipped").Set(float64(clippedMissing))

	if run != nil {
		run.RowsLoaded = sql.NullInt64{Int64: int64(loaded.Len()), Valid: true}
		run.MissingLoaded = sql.NullInt64{Int64: int64(summary.Missing), Valid: true}
		run.MissingClipped = sql.NullInt64{Int64: int64(clippedMissing), Valid: true}
	}

	if clipped.Len() == 0 && p.opts.RequireData {
		return nil, models.ErrEmptyRange
	}

	agg := hydro.NewAggregator(hydro.Options{SkewCorrected: p.opts.SkewCorrected})
	annual := agg.Annual(clipped)
	monthly := agg.Monthly(clipped)
	metrics.PeriodsComputed.WithLabelValues(station.Label, "annual").Add(float64(len(annual)))
	metrics.PeriodsComputed.WithLabelValues(station.Label, "monthly").Add(float64(len(monthly)))

	if run != nil {
		run.AnnualPeriods = sql.NullInt64{Int64: int64(len(annual)), Valid: true}
		run.MonthlyPeriods = sql.NullInt64{Int64: int64(len(monthly)), Valid: true}
	}

	res := &Result{
		Station:         station,
		Summary:         summary,
		Series:          clipped,
		LoadedMissing:   summary.Missing,
		ClippedMissing:  clippedMissing,
		Annual:          annual,
		Monthly:         monthly,
		AnnualAverage:   hydro.ReduceAnnual(annual),
		MonthlyAverages: hydro.ReduceMonthly(monthly),
	}

	if p.store != nil {
		runID := ""
		if run != nil {
			runID = run.ID
		}
		if err := p.persist(runID, raw, res); err != nil {
			return nil, err
		}
	}

	return res, nil
}

func (p *Pipeline) persist(runID string, raw []byte, res *Result) error {
	label := res.Station.Label
	if err := p.store.UpsertStation(res.Station); err != nil {
		return fmt.Errorf("save station: %w", err)
	}
	if _, err := p.store.StoreRawSource(runID, label, res.Station.Source, raw); err != nil {
		// Archive failures are logged, not fatal.
		log.Printf("pipeline: %s: store raw source: %v", label, err)
	}
	if err := p.store.SaveObservations(label, res.Series); err != nil {
		return fmt.Errorf("save observations: %w", err)
	}
	if err := p.store.SaveStats(label, res.Annual, res.Monthly, res.AnnualAverage, res.MonthlyAverages); err != nil {
		return fmt.Errorf("save stats: %w", err)
	}
	log.Printf("pipeline: %s: stored %d annual and %d monthly periods", label, len(res.Annual), len(res.Monthly))
	return nil
}

// RunAll processes stations in order. Each station is independent; the first
// error stops the run.
func (p *Pipeline) RunAll(ctx context.Context, stations []models.Station) ([]*Result, error) {
	results := make([]*Result, 0, len(stations))
	for _, st := range stations {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		res, err := p.Run(ctx, st)
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}
