package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SourceFetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flowstats_source_fetches_total",
			Help: "Total station source fetches",
		},
		[]string{"scheme", "status"},
	)

	SourceFetchLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "flowstats_source_fetch_latency_seconds",
			Help:    "Station source fetch latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"scheme"},
	)

	ObservationsLoaded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flowstats_observations_loaded_total",
			Help: "Total daily observations loaded",
		},
		[]string{"station"},
	)

	MissingValues = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "flowstats_missing_values",
			Help: "Missing discharge values in the most recent run, after load and after clipping",
		},
		[]string{"station", "stage"},
	)

	PeriodsComputed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flowstats_periods_computed_total",
			Help: "Total statistics periods computed",
		},
		[]string{"station", "granularity"},
	)

	PipelineRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flowstats_pipeline_runs_total",
			Help: "Total station pipeline runs",
		},
		[]string{"station", "status"},
	)

	PipelineDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "flowstats_pipeline_duration_seconds",
			Help:    "Station pipeline duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"station"},
	)
)
