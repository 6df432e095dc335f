package acquire

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AttemptsTotal counts clone attempts.
	// Labels: strategy, result (success, error)
	AttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "codematrix",
			Subsystem: "acquire",
			Name:      "attempts_total",
			Help:      "Total number of clone attempts by strategy and result",
		},
		[]string{"strategy", "result"},
	)

	// AttemptDuration tracks how long each clone attempt took.
	AttemptDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "codematrix",
			Subsystem: "acquire",
			Name:      "attempt_duration_seconds",
			Help:      "Duration of clone attempts in seconds",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"strategy"},
	)
)
