package vectorstore

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/codematrix/internal/telemetry"
)

func testDocs() []Document {
	return []Document{
		{Content: "def route(): pass", Source: "app/routes.py", Embedding: []float32{1, 0, 0}},
		{Content: "class Model: pass", Source: "app/models.py", Embedding: []float32{0, 1, 0}},
		{Content: "# Flask", Source: "README.md", Embedding: []float32{0, 0, 1}},
		{Content: "def route2(): pass", Source: "app/routes.py", Embedding: []float32{0.9, 0.1, 0}},
	}
}

func TestChromemBuilder_BuildAndSearch(t *testing.T) {
	b := NewChromemBuilder(ChromemConfig{}, nil)
	ctx := context.Background()

	h, err := b.Build(ctx, "flask", testDocs())
	require.NoError(t, err)
	defer h.Close()

	assert.Equal(t, 4, h.Len())

	res, err := h.Nearest(ctx, []float32{1, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, "def route(): pass", res[0].Content)
	assert.Equal(t, "app/routes.py", res[0].Source)
	assert.Equal(t, "def route2(): pass", res[1].Content)
	assert.GreaterOrEqual(t, res[0].Score, res[1].Score)
}

func TestChromemHandle_KCappedAtSize(t *testing.T) {
	b := NewChromemBuilder(ChromemConfig{}, nil)
	h, err := b.Build(context.Background(), "flask", testDocs())
	require.NoError(t, err)
	defer h.Close()

	res, err := h.Nearest(context.Background(), []float32{0, 0, 1}, 50)
	require.NoError(t, err)
	assert.Len(t, res, 4)
	assert.Equal(t, "README.md", res[0].Source)
}

func TestChromemBuilder_Errors(t *testing.T) {
	b := NewChromemBuilder(ChromemConfig{}, nil)
	ctx := context.Background()

	t.Run("empty", func(t *testing.T) {
		_, err := b.Build(ctx, "x", nil)
		assert.ErrorIs(t, err, ErrEmptyDocuments)
	})

	t.Run("missing embedding", func(t *testing.T) {
		_, err := b.Build(ctx, "x", []Document{{Content: "a"}})
		assert.ErrorIs(t, err, ErrMissingEmbedding)
	})

	t.Run("dimension mismatch", func(t *testing.T) {
		_, err := b.Build(ctx, "x", []Document{
			{Content: "a", Embedding: []float32{1, 0}},
			{Content: "b", Embedding: []float32{1, 0, 0}},
		})
		assert.ErrorIs(t, err, ErrDimensionMismatch)
	})
}

func TestChromemHandle_QueryErrors(t *testing.T) {
	b := NewChromemBuilder(ChromemConfig{}, nil)
	h, err := b.Build(context.Background(), "flask", testDocs())
	require.NoError(t, err)

	_, err = h.Nearest(context.Background(), []float32{1, 0, 0}, 0)
	assert.ErrorIs(t, err, ErrInvalidK)

	_, err = h.Nearest(context.Background(), []float32{1, 0}, 1)
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	require.NoError(t, h.Close())
	require.NoError(t, h.Close(), "close is idempotent")

	_, err = h.Nearest(context.Background(), []float32{1, 0, 0}, 1)
	assert.True(t, errors.Is(err, ErrClosed))
	assert.Zero(t, h.Len())
}

func TestChromemBuilder_RebuildSameRepoIsIndependent(t *testing.T) {
	b := NewChromemBuilder(ChromemConfig{}, nil)
	ctx := context.Background()

	first, err := b.Build(ctx, "flask", testDocs())
	require.NoError(t, err)
	second, err := b.Build(ctx, "flask", testDocs()[:1])
	require.NoError(t, err)

	require.NoError(t, first.Close())

	res, err := second.Nearest(ctx, []float32{1, 0, 0}, 1)
	require.NoError(t, err)
	assert.Len(t, res, 1)
}

func TestChromemBuilder_RecordsSpan(t *testing.T) {
	tel := telemetry.NewTestTelemetry(t)
	b := NewChromemBuilder(ChromemConfig{}, nil)

	h, err := b.Build(context.Background(), "flask", testDocs())
	require.NoError(t, err)
	defer h.Close()

	assert.NotNil(t, tel.SpanByName("ChromemBuilder.Build"))
}
