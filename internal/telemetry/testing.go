package telemetry

import (
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// TestTelemetry records spans in memory for assertions.
type TestTelemetry struct {
	SpanRecorder   *tracetest.SpanRecorder
	TracerProvider *trace.TracerProvider
}

// NewTestTelemetry installs an in-memory tracer provider as the global
// provider and restores the previous one when the test ends.
func NewTestTelemetry(tb testing.TB) *TestTelemetry {
	tb.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := trace.NewTracerProvider(trace.WithSpanProcessor(recorder))

	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	tb.Cleanup(func() { otel.SetTracerProvider(previous) })

	return &TestTelemetry{SpanRecorder: recorder, TracerProvider: tp}
}

// Tracer returns a tracer from the in-memory provider.
func (t *TestTelemetry) Tracer(name string) oteltrace.Tracer {
	return t.TracerProvider.Tracer(name)
}

// SpanByName finds an ended span by name, or nil if not found.
func (t *TestTelemetry) SpanByName(name string) trace.ReadOnlySpan {
	for _, span := range t.SpanRecorder.Ended() {
		if span.Name() == name {
			return span
		}
	}
	return nil
}

// AssertSpanEvent verifies the named span recorded an event.
func (t *TestTelemetry) AssertSpanEvent(tb testing.TB, spanName, event string) {
	tb.Helper()
	span := t.SpanByName(spanName)
	if span == nil {
		tb.Fatalf("span %q not found", spanName)
	}
	for _, e := range span.Events() {
		if e.Name == event {
			return
		}
	}
	tb.Errorf("span %q has no event %q", spanName, event)
}
