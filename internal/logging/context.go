package logging

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ContextFields extracts correlation data from context.
func ContextFields(ctx context.Context) []zap.Field {
	fields := make([]zap.Field, 0, 6)

	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		sc := span.SpanContext()
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
	}

	if requestID := RequestIDFromContext(ctx); requestID != "" {
		fields = append(fields, zap.String("request.id", requestID))
	}
	if runID := RunIDFromContext(ctx); runID != "" {
		fields = append(fields, zap.String("run.id", runID))
	}
	if repoID := RepoIDFromContext(ctx); repoID != "" {
		fields = append(fields, zap.String("repo.id", repoID))
	}

	return fields
}

type requestCtxKey struct{}
type runCtxKey struct{}
type repoCtxKey struct{}

// maxIDLen bounds identifiers copied from untrusted headers.
const maxIDLen = 128

// WithRequestID adds a request ID to ctx. Empty or oversized IDs are ignored.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	if requestID == "" || len(requestID) > maxIDLen {
		return ctx
	}
	return context.WithValue(ctx, requestCtxKey{}, requestID)
}

// RequestIDFromContext extracts the request ID from ctx.
func RequestIDFromContext(ctx context.Context) string {
	s, _ := ctx.Value(requestCtxKey{}).(string)
	return s
}

// WithRunID tags ctx with the pipeline run it belongs to.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runCtxKey{}, runID)
}

// RunIDFromContext extracts the pipeline run ID from ctx.
func RunIDFromContext(ctx context.Context) string {
	s, _ := ctx.Value(runCtxKey{}).(string)
	return s
}

// WithRepoID tags ctx with the repository being processed or queried.
func WithRepoID(ctx context.Context, repoID string) context.Context {
	return context.WithValue(ctx, repoCtxKey{}, repoID)
}

// RepoIDFromContext extracts the repository ID from ctx.
func RepoIDFromContext(ctx context.Context) string {
	s, _ := ctx.Value(repoCtxKey{}).(string)
	return s
}
