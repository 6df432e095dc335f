package embeddings

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/codematrix/internal/config"
)

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

// newOpenAIServer answers /embeddings with [len(text), index] vectors.
func newOpenAIServer(t *testing.T, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req embeddingRequest
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&req)) {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		assert.Equal(t, "text-embedding-004", req.Model)

		type item struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		}
		data := make([]item, len(req.Input))
		for i, in := range req.Input {
			data[i] = item{Embedding: []float32{float32(len(in)), float32(i)}, Index: i}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"object": "list", "data": data, "model": req.Model})
	}))
}

func TestOpenAIProvider_Embed(t *testing.T) {
	var calls atomic.Int32
	srv := newOpenAIServer(t, &calls)
	defer srv.Close()

	p, err := NewOpenAIProvider(ProviderConfig{
		BaseURL:   srv.URL + "/",
		Model:     "text-embedding-004",
		APIKey:    config.Secret("test-key"),
		BatchSize: 2,
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, 768, p.Dimension(), "known model dimension")

	vecs, err := p.EmbedDocuments(context.Background(), []string{"a", "bb", "ccc"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	assert.Equal(t, float32(1), vecs[0][0])
	assert.Equal(t, float32(3), vecs[2][0], "order preserved across batches")
	assert.Equal(t, int32(2), calls.Load(), "three texts in batches of two")
	assert.Equal(t, 2, p.Dimension(), "learned from response")

	vec, err := p.EmbedQuery(context.Background(), "line one\nline two")
	require.NoError(t, err)
	assert.Equal(t, float32(len("line one\nline two")), vec[0], "newlines kept")
}

func TestOpenAIProvider_Errors(t *testing.T) {
	t.Run("missing key", func(t *testing.T) {
		_, err := NewOpenAIProvider(ProviderConfig{Model: "m"}, nil)
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})

	t.Run("empty input", func(t *testing.T) {
		p, err := NewOpenAIProvider(ProviderConfig{Model: "m", APIKey: config.Secret("k"), BaseURL: "http://127.0.0.1:1"}, nil)
		require.NoError(t, err)
		_, err = p.EmbedDocuments(context.Background(), nil)
		assert.ErrorIs(t, err, ErrEmptyInput)
		_, err = p.EmbedQuery(context.Background(), "")
		assert.ErrorIs(t, err, ErrEmptyInput)
	})

	t.Run("server error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, `{"error":{"message":"quota exceeded"}}`, http.StatusTooManyRequests)
		}))
		defer srv.Close()

		p, err := NewOpenAIProvider(ProviderConfig{Model: "m", APIKey: config.Secret("k"), BaseURL: srv.URL}, nil)
		require.NoError(t, err)
		_, err = p.EmbedQuery(context.Background(), "hello")
		assert.ErrorIs(t, err, ErrEmbeddingFailed)
	})
}
