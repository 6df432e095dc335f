package vectorstore

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BuildsTotal counts index builds.
	// Labels: result (success, error)
	BuildsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "codematrix",
			Subsystem: "vectorstore",
			Name:      "builds_total",
			Help:      "Total number of index builds by result",
		},
		[]string{"result"},
	)

	// IndexedDocuments observes the size of each built index.
	IndexedDocuments = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "codematrix",
			Subsystem: "vectorstore",
			Name:      "indexed_documents",
			Help:      "Number of documents per built index",
			Buckets:   prometheus.ExponentialBuckets(10, 4, 8),
		},
	)

	// SearchDuration tracks nearest-neighbour query latency.
	SearchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "codematrix",
			Subsystem: "vectorstore",
			Name:      "search_duration_seconds",
			Help:      "Duration of nearest-neighbour queries in seconds",
			Buckets:   prometheus.DefBuckets,
		},
	)

	// OpenIndexes is the number of built indexes not yet closed.
	OpenIndexes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "codematrix",
			Subsystem: "vectorstore",
			Name:      "open_indexes",
			Help:      "Number of live search indexes",
		},
	)
)

// RecordBuild records the outcome of a build.
func RecordBuild(docs int, err error) {
	if err != nil {
		BuildsTotal.WithLabelValues("error").Inc()
		return
	}
	BuildsTotal.WithLabelValues("success").Inc()
	IndexedDocuments.Observe(float64(docs))
}
