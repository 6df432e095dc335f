package embeddings

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingEmbedder struct {
	queries int
	err     error
}

func (c *countingEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1}
	}
	return out, nil
}

func (c *countingEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	c.queries++
	if c.err != nil {
		return nil, c.err
	}
	return []float32{float32(len(text))}, nil
}

func TestCachedEmbedder(t *testing.T) {
	inner := &countingEmbedder{}
	e, err := NewCachedEmbedder(inner, 2)
	require.NoError(t, err)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		v, err := e.EmbedQuery(ctx, "what does this do?")
		require.NoError(t, err)
		assert.Equal(t, float32(18), v[0])
	}
	assert.Equal(t, 1, inner.queries)

	_, _ = e.EmbedQuery(ctx, "b")
	_, _ = e.EmbedQuery(ctx, "c")
	_, _ = e.EmbedQuery(ctx, "what does this do?")
	assert.Equal(t, 4, inner.queries, "evicted entry is re-embedded")

	cached := e.(*CachedEmbedder)
	assert.Equal(t, 2, cached.Len())
	cached.Purge()
	assert.Zero(t, cached.Len())
}

func TestCachedEmbedder_ErrorsNotCached(t *testing.T) {
	inner := &countingEmbedder{err: errors.New("rate limited")}
	e, err := NewCachedEmbedder(inner, 4)
	require.NoError(t, err)

	_, err = e.EmbedQuery(context.Background(), "q")
	assert.Error(t, err)
	inner.err = nil
	_, err = e.EmbedQuery(context.Background(), "q")
	assert.NoError(t, err)
	assert.Equal(t, 2, inner.queries)
}

func TestNewCachedEmbedder_Disabled(t *testing.T) {
	inner := &countingEmbedder{}
	e, err := NewCachedEmbedder(inner, 0)
	require.NoError(t, err)
	assert.Same(t, inner, e)
}
