package repository

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BuildsTotal counts index builds.
	// Labels: result (success, error)
	BuildsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "codematrix",
			Subsystem: "indexer",
			Name:      "builds_total",
			Help:      "Total number of repository index builds by result",
		},
		[]string{"result"},
	)

	// BuildDuration tracks end-to-end build time.
	BuildDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "codematrix",
			Subsystem: "indexer",
			Name:      "build_duration_seconds",
			Help:      "Duration of repository index builds in seconds",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
	)

	// ChunksTotal counts chunks produced by the loader.
	ChunksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "codematrix",
			Subsystem: "indexer",
			Name:      "chunks_total",
			Help:      "Total number of chunks loaded for indexing",
		},
	)
)

func recordBuild(d time.Duration, err error) {
	BuildDuration.Observe(d.Seconds())
	if err != nil {
		BuildsTotal.WithLabelValues("error").Inc()
		return
	}
	BuildsTotal.WithLabelValues("success").Inc()
}
