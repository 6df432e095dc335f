package embeddings

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const embeddingsInstrumentationName = "github.com/fyrsmithlabs/codematrix/internal/embeddings"

// Operations recorded on embedding metrics.
const (
	opDocuments = "embed_documents"
	opQuery     = "embed_query"
)

// Metrics records embedding calls: latency per call, texts embedded, failed
// calls and query cache lookups. Nil instruments are skipped.
type Metrics struct {
	latency  metric.Float64Histogram
	texts    metric.Int64Counter
	failures metric.Int64Counter
	lookups  metric.Int64Counter
}

// NewMetrics creates embedding instruments on the global meter provider.
func NewMetrics(logger *zap.Logger) *Metrics {
	return newMetrics(otel.Meter(embeddingsInstrumentationName), logger)
}

func newMetrics(meter metric.Meter, logger *zap.Logger) *Metrics {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Metrics{}
	var err, errs error

	m.latency, err = meter.Float64Histogram("codematrix.embedding.call_duration",
		metric.WithDescription("Embedding call latency by model and operation"),
		metric.WithUnit("s"),
		// Indexing batches take seconds; cached-miss queries take milliseconds.
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30))
	errs = errors.Join(errs, err)

	m.texts, err = meter.Int64Counter("codematrix.embedding.texts",
		metric.WithDescription("Texts sent for embedding by model and operation"),
		metric.WithUnit("{text}"))
	errs = errors.Join(errs, err)

	m.failures, err = meter.Int64Counter("codematrix.embedding.failures",
		metric.WithDescription("Failed embedding calls by model and operation"),
		metric.WithUnit("{call}"))
	errs = errors.Join(errs, err)

	m.lookups, err = meter.Int64Counter("codematrix.embedding.query_cache_lookups",
		metric.WithDescription("Query embedding cache lookups by result (hit, miss)"),
		metric.WithUnit("{lookup}"))
	errs = errors.Join(errs, err)

	if errs != nil {
		logger.Warn("some embedding instruments are unavailable", zap.Error(errs))
	}
	return m
}

// RecordGeneration records one embedding call of n texts.
func (m *Metrics) RecordGeneration(ctx context.Context, model, operation string, duration time.Duration, n int, err error) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("model", model),
		attribute.String("operation", operation),
	)
	if m.latency != nil {
		m.latency.Record(ctx, duration.Seconds(), attrs)
	}
	if err != nil {
		if m.failures != nil {
			m.failures.Add(ctx, 1, attrs)
		}
		return
	}
	if n > 0 && m.texts != nil {
		m.texts.Add(ctx, int64(n), attrs)
	}
}

// RecordCacheLookup records a query cache hit or miss.
func (m *Metrics) RecordCacheLookup(ctx context.Context, hit bool) {
	if m == nil || m.lookups == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.lookups.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}
