package embeddings

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	lcembeddings "github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"
)

// OpenAIProvider embeds through any OpenAI-compatible /embeddings API.
type OpenAIProvider struct {
	embedder  *lcembeddings.EmbedderImpl
	model     string
	dimension atomic.Int64
	metrics   *Metrics
	logger    *zap.Logger
}

// NewOpenAIProvider creates a provider from cfg. An API key is required.
func NewOpenAIProvider(cfg ProviderConfig, logger *zap.Logger) (*OpenAIProvider, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if !cfg.APIKey.IsSet() {
		return nil, fmt.Errorf("%w: embeddings api key required for provider openai", ErrInvalidConfig)
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("%w: embeddings model required", ErrInvalidConfig)
	}

	opts := []openai.Option{
		openai.WithToken(cfg.APIKey.Value()),
		openai.WithEmbeddingModel(cfg.Model),
		openai.WithHTTPClient(cfg.httpClient()),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(strings.TrimRight(cfg.BaseURL, "/")))
	}
	client, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating openai client: %w", err)
	}

	batch := cfg.BatchSize
	if batch <= 0 {
		batch = 32
	}
	// newlines carry structure in source code
	embedder, err := lcembeddings.NewEmbedder(client,
		lcembeddings.WithBatchSize(batch),
		lcembeddings.WithStripNewLines(false),
	)
	if err != nil {
		return nil, fmt.Errorf("creating embedder: %w", err)
	}

	p := &OpenAIProvider{
		embedder: embedder,
		model:    cfg.Model,
		metrics:  NewMetrics(logger),
		logger:   logger,
	}
	if dim, ok := knownModelDimensions[cfg.Model]; ok {
		p.dimension.Store(int64(dim))
	}
	logger.Info("openai-compatible embeddings configured",
		zap.String("model", cfg.Model),
		zap.String("base_url", cfg.BaseURL),
		zap.Int("batch_size", batch))
	return p, nil
}

// EmbedDocuments generates embeddings for multiple texts.
func (p *OpenAIProvider) EmbedDocuments(ctx context.Context, texts []string) (vecs [][]float32, err error) {
	start := time.Now()
	defer func() {
		p.metrics.RecordGeneration(ctx, p.model, opDocuments, time.Since(start), len(texts), err)
	}()

	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: texts cannot be empty", ErrEmptyInput)
	}
	vecs, err = p.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEmbeddingFailed, err)
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("%w: got %d vectors for %d texts", ErrEmbeddingFailed, len(vecs), len(texts))
	}
	p.observeDimension(vecs[0])
	return vecs, nil
}

// EmbedQuery generates an embedding for a single query.
func (p *OpenAIProvider) EmbedQuery(ctx context.Context, text string) (vec []float32, err error) {
	start := time.Now()
	defer func() {
		p.metrics.RecordGeneration(ctx, p.model, opQuery, time.Since(start), 1, err)
	}()

	if text == "" {
		return nil, fmt.Errorf("%w: text cannot be empty", ErrEmptyInput)
	}
	vec, err = p.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEmbeddingFailed, err)
	}
	p.observeDimension(vec)
	return vec, nil
}

func (p *OpenAIProvider) observeDimension(vec []float32) {
	if old := p.dimension.Swap(int64(len(vec))); old != 0 && old != int64(len(vec)) {
		p.logger.Warn("embedding dimension changed",
			zap.Int64("previous", old),
			zap.Int("current", len(vec)))
	}
}

// Dimension returns the configured model's dimension, learned from the
// first response for unknown models.
func (p *OpenAIProvider) Dimension() int {
	return int(p.dimension.Load())
}

// Model returns the embedding model name.
func (p *OpenAIProvider) Model() string {
	return p.model
}

// Close is a no-op; the HTTP client holds no resources worth releasing.
func (p *OpenAIProvider) Close() error {
	return nil
}
