package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Run outcomes.
const (
	outcomeReady      = "ready"
	outcomeError      = "error"
	outcomePanic      = "panic"
	outcomeSuperseded = "superseded"
)

var (
	// RunsTotal counts finished pipeline runs.
	// Labels: outcome (ready, error, panic, superseded)
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "codematrix",
			Subsystem: "pipeline",
			Name:      "runs_total",
			Help:      "Total number of pipeline runs by outcome",
		},
		[]string{"outcome"},
	)

	// RunDuration tracks clone-to-ready time.
	RunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "codematrix",
			Subsystem: "pipeline",
			Name:      "run_duration_seconds",
			Help:      "Duration of pipeline runs in seconds",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		},
	)

	// RunsInFlight is 1 while a run is executing.
	RunsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "codematrix",
			Subsystem: "pipeline",
			Name:      "runs_in_flight",
			Help:      "Number of pipeline runs currently executing",
		},
	)

	// BusyRejections counts Start calls refused because a run was in flight.
	BusyRejections = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "codematrix",
			Subsystem: "pipeline",
			Name:      "busy_rejections_total",
			Help:      "Total number of start requests rejected as busy",
		},
	)
)
