package llm

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/fyrsmithlabs/codematrix/internal/llm"

// Metrics holds completion metrics.
type Metrics struct {
	duration metric.Float64Histogram
	errors   metric.Int64Counter
}

// NewMetrics creates completion instruments on the global meter provider.
func NewMetrics(logger *zap.Logger) *Metrics {
	meter := otel.Meter(instrumentationName)
	m := &Metrics{}

	var err error
	m.duration, err = meter.Float64Histogram(
		"codematrix.llm.completion_duration_seconds",
		metric.WithDescription("Duration of chat completions in seconds, including retries"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60),
	)
	if err != nil {
		logger.Warn("failed to create completion duration histogram", zap.Error(err))
	}

	m.errors, err = meter.Int64Counter(
		"codematrix.llm.errors_total",
		metric.WithDescription("Total failed chat completions by model"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		logger.Warn("failed to create completion error counter", zap.Error(err))
	}
	return m
}

// RecordCompletion records one completion call.
func (m *Metrics) RecordCompletion(ctx context.Context, model string, d time.Duration, err error) {
	attrs := metric.WithAttributes(attribute.String("model", model))
	if m.duration != nil {
		m.duration.Record(ctx, d.Seconds(), attrs)
	}
	if err != nil && m.errors != nil {
		m.errors.Add(ctx, 1, attrs)
	}
}
