package embeddings

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/codematrix/internal/config"
)

// ProviderConfig holds configuration for creating an embedding provider.
type ProviderConfig struct {
	// Provider is the provider type: "openai", "tei" or "fastembed"
	Provider string
	// Model is the embedding model name
	Model string
	// BaseURL is the API root for openai and tei
	BaseURL string
	// APIKey authenticates against openai-compatible APIs
	APIKey config.Secret
	// CacheDir is the model cache directory (only used for FastEmbed)
	CacheDir string
	// BatchSize caps texts per request
	BatchSize int
	// Timeout bounds each HTTP request
	Timeout time.Duration
	// ONNX locates the runtime for FastEmbed
	ONNX RuntimeConfig
}

// FromSettings converts the loaded configuration section.
func FromSettings(s config.EmbeddingsConfig) ProviderConfig {
	return ProviderConfig{
		Provider:  s.Provider,
		Model:     s.Model,
		BaseURL:   s.BaseURL,
		APIKey:    s.APIKey,
		CacheDir:  s.CacheDir,
		BatchSize: s.BatchSize,
		Timeout:   s.Timeout.Duration(),
		ONNX:      RuntimeConfigFromSettings(s),
	}
}

func (c ProviderConfig) httpClient() *http.Client {
	return &http.Client{Timeout: c.Timeout}
}

// NewProvider creates an embedding provider based on the configuration.
func NewProvider(cfg ProviderConfig, logger *zap.Logger) (Provider, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch cfg.Provider {
	case "openai", "":
		p, err := NewOpenAIProvider(cfg, logger)
		if err != nil {
			return nil, err
		}
		return p, nil
	case "tei":
		svc, err := NewService(Config{
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			APIKey:  cfg.APIKey.Value(),
			Timeout: cfg.Timeout,
		}, logger)
		if err != nil {
			return nil, err
		}
		return &teiProvider{Service: svc, dimension: detectDimensionFromModel(cfg.Model)}, nil
	case "fastembed":
		rt, err := NewRuntime(cfg.ONNX, logger.Named("onnx"))
		if err != nil {
			return nil, err
		}
		p, err := NewFastEmbedProvider(FastEmbedConfig{
			Model:    cfg.Model,
			CacheDir: cfg.CacheDir,
			Runtime:  rt,
		}, logger)
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, cfg.Provider)
	}
}

// detectDimensionFromModel returns the embedding dimension for a model name.
// Falls back to 384 if model is unknown.
func detectDimensionFromModel(model string) int {
	if dim, ok := knownModelDimensions[model]; ok {
		return dim
	}
	lower := strings.ToLower(model)
	switch {
	case strings.Contains(lower, "base"):
		return 768
	case strings.Contains(lower, "large"):
		return 1024
	default:
		return 384
	}
}

// knownModelDimensions covers the models the providers are documented with.
var knownModelDimensions = map[string]int{
	"BAAI/bge-small-en-v1.5":                 384,
	"BAAI/bge-small-en":                      384,
	"BAAI/bge-base-en-v1.5":                  768,
	"BAAI/bge-base-en":                       768,
	"BAAI/bge-small-zh-v1.5":                 512,
	"sentence-transformers/all-MiniLM-L6-v2": 384,
	"text-embedding-004":                     768,
	"text-embedding-3-small":                 1536,
	"text-embedding-3-large":                 3072,
	"text-embedding-ada-002":                 1536,
}

// teiProvider wraps Service to implement Provider interface.
type teiProvider struct {
	*Service
	dimension int
}

// Dimension returns the embedding dimension based on the configured model.
func (t *teiProvider) Dimension() int {
	return t.dimension
}

// Close is a no-op for TEI since it uses HTTP.
func (t *teiProvider) Close() error {
	return nil
}
