package embeddings

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"
)

// CachedEmbedder memoizes query embeddings. Document embeddings pass
// through uncached since each build embeds different text.
type CachedEmbedder struct {
	Embedder
	cache   *lru.Cache[string, []float32]
	metrics *Metrics
}

// NewCachedEmbedder wraps inner with an LRU of size entries. A non-positive
// size disables caching and returns inner unchanged.
func NewCachedEmbedder(inner Embedder, size int) (Embedder, error) {
	if size <= 0 {
		return inner, nil
	}
	cache, err := lru.New[string, []float32](size)
	if err != nil {
		return nil, err
	}
	return &CachedEmbedder{Embedder: inner, cache: cache, metrics: NewMetrics(nil)}, nil
}

// EmbedQuery returns a cached vector when text was embedded before.
func (c *CachedEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vec, ok := c.cache.Get(text)
	c.metrics.RecordCacheLookup(ctx, ok)
	if ok {
		return vec, nil
	}
	vec, err := c.Embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Add(text, vec)
	return vec, nil
}

// Purge drops every cached vector. Call it when the model changes.
func (c *CachedEmbedder) Purge() {
	c.cache.Purge()
}

// Len returns the number of cached queries.
func (c *CachedEmbedder) Len() int {
	return c.cache.Len()
}
