package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	GenerationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "slidegen_generations_total",
		Help: "Generation calls to the upstream service by outcome code.",
	}, []string{"outcome"})

	GenerationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "slidegen_generation_duration_seconds",
		Help:    "Round-trip latency of generation calls.",
		Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 30, 45, 60},
	})

	ValidationRejectsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "slidegen_validation_rejects_total",
		Help: "Submissions rejected locally before reaching the upstream service.",
	})

	DownloadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "slidegen_downloads_total",
		Help: "Artifact deliveries by route.",
	}, []string{"route"})

	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "slidegen_active_sessions",
		Help: "Browser sessions currently tracked in memory.",
	})
)

const OutcomeSuccess = "success"
