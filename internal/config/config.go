// Package config provides configuration loading for codematrix.
//
// Values are layered: built-in defaults, then an optional YAML file, then
// CODEMATRIX_* environment variables. A handful of legacy variable names
// (GROQ_API_KEY, GEMINI_API_KEY_1, OPENAI_API_KEY, REPO_STORAGE_PATH) are
// honoured as fallbacks.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config holds the complete codematrix configuration.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Repository RepositoryConfig `koanf:"repository"`
	Indexing   IndexingConfig   `koanf:"indexing"`
	Query      QueryConfig      `koanf:"query"`
	Embeddings EmbeddingsConfig `koanf:"embeddings"`
	LLM        LLMConfig        `koanf:"llm"`
	State      StateConfig      `koanf:"state"`
	Secrets    SecretsConfig    `koanf:"secrets"`
	GitHub     GitHubConfig     `koanf:"github"`
	Logging    LoggingConfig    `koanf:"logging"`
	Telemetry  TelemetryConfig  `koanf:"telemetry"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host               string   `koanf:"host"`
	Port               int      `koanf:"port"`
	ShutdownTimeout    Duration `koanf:"shutdown_timeout"`
	RateLimitPerMinute int      `koanf:"rate_limit_per_minute"`
	CORSOrigins        []string `koanf:"cors_origins"`
}

// RepositoryConfig controls where and how repositories are fetched.
type RepositoryConfig struct {
	ReposDir          string   `koanf:"repos_dir"`
	ScratchDir        string   `koanf:"scratch_dir"`
	AttemptTimeout    Duration `koanf:"attempt_timeout"`
	CleanupRetryDelay Duration `koanf:"cleanup_retry_delay"`
	AuthUsername      string   `koanf:"auth_username"`
	AuthToken         Secret   `koanf:"auth_token"`
}

// IndexingConfig controls file selection and chunking.
type IndexingConfig struct {
	Extensions       []string `koanf:"extensions"`
	MaxFileSize      int64    `koanf:"max_file_size"`
	ChunkSize        int      `koanf:"chunk_size"`
	ChunkOverlap     int      `koanf:"chunk_overlap"`
	EmbedBatchSize   int      `koanf:"embed_batch_size"`
	EmbedConcurrency int      `koanf:"embed_concurrency"`
}

// QueryConfig controls retrieval defaults.
type QueryConfig struct {
	DefaultTopK        int `koanf:"default_top_k"`
	MaxTopK            int `koanf:"max_top_k"`
	EmbeddingCacheSize int `koanf:"embedding_cache_size"`
}

// EmbeddingsConfig selects and configures the embedding provider.
type EmbeddingsConfig struct {
	Provider  string   `koanf:"provider"` // openai, tei, fastembed
	BaseURL   string   `koanf:"base_url"`
	Model     string   `koanf:"model"`
	APIKey    Secret   `koanf:"api_key"`
	CacheDir  string   `koanf:"cache_dir"`
	BatchSize int      `koanf:"batch_size"`
	Timeout   Duration `koanf:"timeout"`

	// ONNX runtime used by the fastembed provider. It is installed under
	// CacheDir unless ONNX_PATH points at an existing library.
	ONNXVersion    string `koanf:"onnx_version"`
	ONNXReleaseURL string `koanf:"onnx_release_url"`
}

// LLMConfig configures the chat completion backend.
type LLMConfig struct {
	BaseURL           string   `koanf:"base_url"`
	Model             string   `koanf:"model"`
	APIKey            Secret   `koanf:"api_key"`
	Temperature       float64  `koanf:"temperature"`
	MaxTokens         int      `koanf:"max_tokens"`
	Timeout           Duration `koanf:"timeout"`
	RequestsPerMinute int      `koanf:"requests_per_minute"`
	MaxRetries        int      `koanf:"max_retries"`
}

// StateConfig controls process-state persistence.
type StateConfig struct {
	Persist bool   `koanf:"persist"`
	Path    string `koanf:"path"`
}

// SecretsConfig controls scrubbing of credentials from indexed text.
type SecretsConfig struct {
	Enabled bool   `koanf:"enabled"`
	Engine  string `koanf:"engine"` // regex, gitleaks
}

// GitHubConfig configures the remote description lookup.
type GitHubConfig struct {
	Enabled bool   `koanf:"enabled"`
	Token   Secret `koanf:"token"`
	BaseURL string `koanf:"base_url"`
}

// LoggingConfig is the subset of logging settings exposed through config files.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// TelemetryConfig mirrors telemetry.Config for file/env loading.
type TelemetryConfig struct {
	Enabled        bool     `koanf:"enabled"`
	Endpoint       string   `koanf:"endpoint"`
	Protocol       string   `koanf:"protocol"`
	Insecure       bool     `koanf:"insecure"`
	ServiceName    string   `koanf:"service_name"`
	SampleRate     float64  `koanf:"sample_rate"`
	MetricsEnabled bool     `koanf:"metrics_enabled"`
	ExportInterval Duration `koanf:"export_interval"`
}

// DefaultExtensions is the set of file extensions indexed when none are configured.
var DefaultExtensions = []string{
	".py", ".js", ".ts", ".jsx", ".tsx", ".md", ".java", ".html",
	".css", ".cpp", ".c", ".go", ".rs", ".php", ".rb",
}

// Default returns the built-in configuration.
func Default() *Config {
	dataDir := defaultDataDir()
	return &Config{
		Server: ServerConfig{
			Host:               "0.0.0.0",
			Port:               8000,
			ShutdownTimeout:    Duration(10 * time.Second),
			RateLimitPerMinute: 60,
			CORSOrigins:        []string{"*"},
		},
		Repository: RepositoryConfig{
			ReposDir:          filepath.Join(dataDir, "repos"),
			ScratchDir:        filepath.Join(os.TempDir(), "codematrix"),
			AttemptTimeout:    Duration(60 * time.Second),
			CleanupRetryDelay: Duration(time.Second),
			AuthUsername:      "x-access-token",
		},
		Indexing: IndexingConfig{
			Extensions:       append([]string(nil), DefaultExtensions...),
			MaxFileSize:      1 << 20,
			ChunkSize:        2000,
			ChunkOverlap:     200,
			EmbedBatchSize:   32,
			EmbedConcurrency: 4,
		},
		Query: QueryConfig{
			DefaultTopK:        5,
			MaxTopK:            20,
			EmbeddingCacheSize: 256,
		},
		Embeddings: EmbeddingsConfig{
			Provider:  "openai",
			BaseURL:   "https://generativelanguage.googleapis.com/v1beta/openai/",
			Model:     "text-embedding-004",
			CacheDir:  filepath.Join(dataDir, "models"),
			BatchSize: 32,
			Timeout:   Duration(30 * time.Second),

			ONNXVersion:    "1.23.0",
			ONNXReleaseURL: "https://github.com/microsoft/onnxruntime/releases/download",
		},
		LLM: LLMConfig{
			BaseURL:           "https://api.groq.com/openai/v1",
			Model:             "llama3-8b-8192",
			Temperature:       0.7,
			MaxTokens:         4000,
			Timeout:           Duration(60 * time.Second),
			RequestsPerMinute: 30,
			MaxRetries:        3,
		},
		State: StateConfig{
			Persist: true,
			Path:    filepath.Join(dataDir, "state.json"),
		},
		Secrets: SecretsConfig{
			Enabled: true,
			Engine:  "regex",
		},
		GitHub: GitHubConfig{
			Enabled: true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Telemetry: TelemetryConfig{
			Enabled:        false,
			Endpoint:       "localhost:4317",
			Protocol:       "grpc",
			Insecure:       true,
			ServiceName:    "codematrix",
			SampleRate:     1.0,
			MetricsEnabled: true,
			ExportInterval: Duration(15 * time.Second),
		},
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "codematrix")
	}
	return filepath.Join(home, ".local", "share", "codematrix")
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port))
	}
	if c.Server.RateLimitPerMinute < 0 {
		errs = append(errs, fmt.Errorf("server.rate_limit_per_minute cannot be negative"))
	}
	if c.Repository.ReposDir == "" {
		errs = append(errs, errors.New("repository.repos_dir is required"))
	}
	if c.Repository.AttemptTimeout.Duration() <= 0 {
		errs = append(errs, errors.New("repository.attempt_timeout must be positive"))
	}
	if c.Indexing.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("indexing.chunk_size must be positive, got %d", c.Indexing.ChunkSize))
	}
	if c.Indexing.ChunkOverlap < 0 || c.Indexing.ChunkOverlap >= c.Indexing.ChunkSize {
		errs = append(errs, fmt.Errorf("indexing.chunk_overlap must be in [0, chunk_size), got %d", c.Indexing.ChunkOverlap))
	}
	if len(c.Indexing.Extensions) == 0 {
		errs = append(errs, errors.New("indexing.extensions cannot be empty"))
	}
	if c.Indexing.EmbedBatchSize <= 0 || c.Indexing.EmbedConcurrency <= 0 {
		errs = append(errs, errors.New("indexing.embed_batch_size and indexing.embed_concurrency must be positive"))
	}
	if c.Query.DefaultTopK <= 0 || c.Query.MaxTopK < c.Query.DefaultTopK {
		errs = append(errs, fmt.Errorf("query.default_top_k must be positive and <= max_top_k (got %d/%d)", c.Query.DefaultTopK, c.Query.MaxTopK))
	}
	switch c.Embeddings.Provider {
	case "openai", "tei", "fastembed":
	default:
		errs = append(errs, fmt.Errorf("embeddings.provider must be openai, tei or fastembed, got %q", c.Embeddings.Provider))
	}
	if c.Embeddings.Provider == "fastembed" && (c.Embeddings.ONNXVersion == "" || c.Embeddings.CacheDir == "") {
		errs = append(errs, errors.New("embeddings.onnx_version and embeddings.cache_dir are required for the fastembed provider"))
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errs = append(errs, fmt.Errorf("llm.temperature must be between 0 and 2, got %v", c.LLM.Temperature))
	}
	if c.LLM.MaxTokens <= 0 {
		errs = append(errs, errors.New("llm.max_tokens must be positive"))
	}
	if c.State.Persist && c.State.Path == "" {
		errs = append(errs, errors.New("state.path is required when state.persist is enabled"))
	}
	switch c.Secrets.Engine {
	case "regex", "gitleaks":
	default:
		errs = append(errs, fmt.Errorf("secrets.engine must be regex or gitleaks, got %q", c.Secrets.Engine))
	}
	switch strings.ToLower(c.Logging.Format) {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("logging.format must be json or console, got %q", c.Logging.Format))
	}
	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		errs = append(errs, fmt.Errorf("telemetry.sample_rate must be between 0 and 1, got %v", c.Telemetry.SampleRate))
	}

	return errors.Join(errs...)
}

// ConfiguredProviders reports which remote AI credentials are present.
func (c *Config) ConfiguredProviders() map[string]bool {
	return map[string]bool{
		"llm":        c.LLM.APIKey.IsSet(),
		"embeddings": c.Embeddings.APIKey.IsSet() || c.Embeddings.Provider != "openai",
		"github":     c.GitHub.Token.IsSet(),
	}
}
