package query

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Ask outcomes.
const (
	outcomeAnswered     = "answered"
	outcomeNoRepository = "no_repository"
	outcomeIndexMissing = "index_missing"
	outcomeError        = "error"
	outcomePanic        = "panic"
)

var (
	// QueriesTotal counts Ask calls.
	// Labels: outcome (answered, no_repository, index_missing, error, panic)
	QueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "codematrix",
			Subsystem: "query",
			Name:      "questions_total",
			Help:      "Total number of questions by outcome",
		},
		[]string{"outcome"},
	)

	// QueryDuration tracks Ask latency including the completion call.
	QueryDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "codematrix",
			Subsystem: "query",
			Name:      "question_duration_seconds",
			Help:      "Duration of question answering in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
	)

	// RetrievedChunks observes how many chunks were fed to the model.
	RetrievedChunks = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "codematrix",
			Subsystem: "query",
			Name:      "retrieved_chunks",
			Help:      "Number of chunks retrieved per question",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 22},
		},
	)

	// ExplanationsTotal counts Explain calls.
	// Labels: level, result (success, error)
	ExplanationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "codematrix",
			Subsystem: "query",
			Name:      "explanations_total",
			Help:      "Total number of code explanations by level and result",
		},
		[]string{"level", "result"},
	)
)
