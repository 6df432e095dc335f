package embeddings

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collectSums(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Sum[int64] {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	out := map[string]metricdata.Sum[int64]{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if sum, ok := m.Data.(metricdata.Sum[int64]); ok {
				out[m.Name] = sum
			}
		}
	}
	return out
}

func valueWhere(sum metricdata.Sum[int64], key, value string) int64 {
	var total int64
	for _, dp := range sum.DataPoints {
		if v, ok := dp.Attributes.Value(attribute.Key(key)); ok && v.AsString() == value {
			total += dp.Value
		}
	}
	return total
}

func TestMetrics_RecordGeneration(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	m := newMetrics(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)).Meter("test"), nil)
	ctx := context.Background()

	m.RecordGeneration(ctx, "text-embedding-004", opDocuments, 2*time.Second, 32, nil)
	m.RecordGeneration(ctx, "text-embedding-004", opDocuments, time.Second, 8, nil)
	m.RecordGeneration(ctx, "text-embedding-004", opQuery, 10*time.Millisecond, 1, errors.New("quota"))

	sums := collectSums(t, reader)
	assert.Equal(t, int64(40), valueWhere(sums["codematrix.embedding.texts"], "operation", opDocuments))
	assert.Equal(t, int64(0), valueWhere(sums["codematrix.embedding.texts"], "operation", opQuery))
	assert.Equal(t, int64(1), valueWhere(sums["codematrix.embedding.failures"], "operation", opQuery))
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordGeneration(context.Background(), "m", opQuery, time.Millisecond, 1, nil)
		m.RecordCacheLookup(context.Background(), true)
	})
}

func TestCachedEmbedder_RecordsLookups(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	inner := &countingEmbedder{}
	e, err := NewCachedEmbedder(inner, 4)
	require.NoError(t, err)
	cached := e.(*CachedEmbedder)
	cached.metrics = newMetrics(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)).Meter("test"), nil)

	ctx := context.Background()
	for _, q := range []string{"how are routes registered?", "how are routes registered?", "where is config loaded?"} {
		_, err := cached.EmbedQuery(ctx, q)
		require.NoError(t, err)
	}

	lookups := collectSums(t, reader)["codematrix.embedding.query_cache_lookups"]
	assert.Equal(t, int64(1), valueWhere(lookups, "result", "hit"))
	assert.Equal(t, int64(2), valueWhere(lookups, "result", "miss"))
}
