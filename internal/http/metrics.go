package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const httpInstrumentationName = "github.com/fyrsmithlabs/codematrix/internal/http"

// apiMetrics records per-route traffic for the API. Status streams are
// counted separately because their duration is the client's watch time,
// not handler latency.
type apiMetrics struct {
	requests  metric.Int64Counter
	latency   metric.Float64Histogram
	inFlight  metric.Int64UpDownCounter
	streams   metric.Int64UpDownCounter
	throttled metric.Int64Counter
}

// newAPIMetrics creates the instruments on meter, or on the global meter
// provider when meter is nil. Instruments that fail to register are left
// nil and skipped.
func newAPIMetrics(meter metric.Meter, logger *zap.Logger) *apiMetrics {
	if meter == nil {
		meter = otel.Meter(httpInstrumentationName)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	var errs []error
	check := func(name string, err error) {
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}

	m := &apiMetrics{}
	var err error
	m.requests, err = meter.Int64Counter("codematrix.http.requests",
		metric.WithDescription("API requests by route, method and status class"),
		metric.WithUnit("{request}"))
	check("requests", err)

	m.latency, err = meter.Float64Histogram("codematrix.http.request_duration",
		metric.WithDescription("Handler latency for non-streaming routes"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.025, 0.1, 0.25, 1, 2.5, 10, 30))
	check("request_duration", err)

	m.inFlight, err = meter.Int64UpDownCounter("codematrix.http.in_flight",
		metric.WithDescription("Requests currently being handled"),
		metric.WithUnit("{request}"))
	check("in_flight", err)

	m.streams, err = meter.Int64UpDownCounter("codematrix.http.status_streams",
		metric.WithDescription("Open status event streams"),
		metric.WithUnit("{stream}"))
	check("status_streams", err)

	m.throttled, err = meter.Int64Counter("codematrix.http.rate_limited",
		metric.WithDescription("Requests rejected by the per-client rate limit"),
		metric.WithUnit("{request}"))
	check("rate_limited", err)

	if err := errors.Join(errs...); err != nil {
		logger.Warn("some http instruments are unavailable", zap.Error(err))
	}
	return m
}

// middleware counts every request. Latency is skipped for streaming routes.
func (m *apiMetrics) middleware(streaming ...string) echo.MiddlewareFunc {
	skipLatency := make(map[string]bool, len(streaming))
	for _, route := range streaming {
		skipLatency[route] = true
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			start := time.Now()
			if m.inFlight != nil {
				m.inFlight.Add(ctx, 1)
				defer m.inFlight.Add(ctx, -1)
			}

			err := next(c)

			route := routeLabel(c.Path())
			status := c.Response().Status
			if err != nil && !c.Response().Committed {
				// The error handler writes the status after this middleware returns.
				status = http.StatusInternalServerError
				var he *echo.HTTPError
				if errors.As(err, &he) {
					status = he.Code
				}
			}
			attrs := metric.WithAttributes(
				attribute.String("route", route),
				attribute.String("method", c.Request().Method),
				attribute.String("status_class", statusClass(status)),
			)
			if m.requests != nil {
				m.requests.Add(ctx, 1, attrs)
			}
			if m.latency != nil && !skipLatency[route] {
				m.latency.Record(ctx, time.Since(start).Seconds(), attrs)
			}
			return err
		}
	}
}

// streamOpened records an open status stream; the returned func closes it.
func (m *apiMetrics) streamOpened(ctx context.Context) func() {
	if m.streams == nil {
		return func() {}
	}
	m.streams.Add(ctx, 1)
	return func() { m.streams.Add(context.WithoutCancel(ctx), -1) }
}

func (m *apiMetrics) rateLimited(ctx context.Context, route string) {
	if m.throttled != nil {
		m.throttled.Add(ctx, 1, metric.WithAttributes(attribute.String("route", routeLabel(route))))
	}
}

// routeLabel maps a request to its route template so label values stay
// bounded. Unmatched requests share one label.
func routeLabel(path string) string {
	if path == "" || path == "/*" {
		return "unmatched"
	}
	return path
}

func statusClass(code int) string {
	if code < 100 || code > 599 {
		return "unknown"
	}
	return fmt.Sprintf("%dxx", code/100)
}
