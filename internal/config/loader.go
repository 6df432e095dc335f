package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	// EnvPrefix is the prefix for environment overrides.
	EnvPrefix = "CODEMATRIX_"

	maxConfigFileSize = 1024 * 1024 // 1MB
)

// DefaultPath returns ~/.config/codematrix/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".config", "codematrix", "config.yaml"), nil
}

// Load reads configuration from the YAML file at path (if it exists) and
// then applies environment overrides.
//
// Precedence (highest to lowest):
//  1. CODEMATRIX_* environment variables
//  2. Legacy environment variables (GROQ_API_KEY, GEMINI_API_KEY_1, ...)
//  3. YAML config file
//  4. Built-in defaults
//
// Environment variables map onto keys by splitting on the first underscore
// after the prefix:
//
//	CODEMATRIX_SERVER_PORT          -> server.port
//	CODEMATRIX_INDEXING_CHUNK_SIZE  -> indexing.chunk_size
//	CODEMATRIX_LLM_API_KEY          -> llm.api_key
//
// The file must be 0600 or 0400 and no larger than 1MB. An empty path
// selects DefaultPath.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	if err := loadFile(k, path); err != nil {
		return nil, err
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// List values replace defaults wholesale instead of merging by index.
	if k.Exists("indexing.extensions") {
		cfg.Indexing.Extensions = listValue(k, "indexing.extensions")
	}
	if k.Exists("server.cors_origins") {
		cfg.Server.CORSOrigins = listValue(k, "server.cors_origins")
	}

	applyLegacyEnv(cfg, k)
	cfg.Repository.ReposDir = expandHome(cfg.Repository.ReposDir)
	cfg.Repository.ScratchDir = expandHome(cfg.Repository.ScratchDir)
	cfg.State.Path = expandHome(cfg.State.Path)
	cfg.Embeddings.CacheDir = expandHome(cfg.Embeddings.CacheDir)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func loadFile(k *koanf.Koanf, path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	// Validate through the open descriptor to avoid a TOCTOU race.
	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat config file: %w", err)
	}
	if err := validateConfigFileProperties(info); err != nil {
		return fmt.Errorf("config file validation failed: %w", err)
	}

	content, err := io.ReadAll(f)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
		return fmt.Errorf("failed to load config file %s: %w", path, err)
	}
	return nil
}

// envKey maps CODEMATRIX_SECTION_FIELD_NAME to section.field_name.
func envKey(s string) string {
	lower := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	parts := strings.SplitN(lower, "_", 2)
	if len(parts) == 1 {
		return lower
	}
	return parts[0] + "." + parts[1]
}

// OpenAI endpoints used when the only credential is OPENAI_API_KEY.
const (
	OpenAIBaseURL        = "https://api.openai.com/v1"
	OpenAIChatModel      = "gpt-4o-mini"
	OpenAIEmbeddingModel = "text-embedding-3-small"
)

// applyLegacyEnv fills unset values from the variable names older
// deployments used. Explicit configuration always wins.
//
// GROQ_API_KEY and GEMINI_API_KEY_* match the default endpoints. A key taken
// from OPENAI_API_KEY also moves any endpoint and model that were not set
// explicitly over to OpenAI, so the key is never sent to another vendor.
func applyLegacyEnv(cfg *Config, k *koanf.Koanf) {
	if !k.Exists("llm.api_key") {
		if v := os.Getenv("GROQ_API_KEY"); v != "" {
			cfg.LLM.APIKey = Secret(v)
		} else if v := os.Getenv("OPENAI_API_KEY"); v != "" {
			cfg.LLM.APIKey = Secret(v)
			useOpenAI(k, "llm", &cfg.LLM.BaseURL, &cfg.LLM.Model, OpenAIChatModel)
		}
	}
	if !k.Exists("embeddings.api_key") {
		if v := firstEnv("GEMINI_API_KEY_1", "GEMINI_API_KEY_2"); v != "" {
			cfg.Embeddings.APIKey = Secret(v)
		} else if v := os.Getenv("OPENAI_API_KEY"); v != "" {
			cfg.Embeddings.APIKey = Secret(v)
			if cfg.Embeddings.Provider == "openai" {
				useOpenAI(k, "embeddings", &cfg.Embeddings.BaseURL, &cfg.Embeddings.Model, OpenAIEmbeddingModel)
			}
		}
	}
	if !k.Exists("github.token") {
		if v := os.Getenv("GITHUB_TOKEN"); v != "" {
			cfg.GitHub.Token = Secret(v)
		}
	}
	if !k.Exists("repository.repos_dir") {
		if v := os.Getenv("REPO_STORAGE_PATH"); v != "" {
			cfg.Repository.ReposDir = v
		}
	}
}

func useOpenAI(k *koanf.Koanf, section string, baseURL, model *string, defaultModel string) {
	if !k.Exists(section + ".base_url") {
		*baseURL = OpenAIBaseURL
	}
	if !k.Exists(section + ".model") {
		*model = defaultModel
	}
}

func firstEnv(keys ...string) string {
	for _, key := range keys {
		if v := os.Getenv(key); v != "" {
			return v
		}
	}
	return ""
}

// listValue accepts both YAML lists and comma-separated env strings.
func listValue(k *koanf.Koanf, key string) []string {
	if s, ok := k.Get(key).(string); ok {
		return splitList([]string{s})
	}
	return splitList(k.Strings(key))
}

func splitList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}

// validateConfigFileProperties checks file permissions and size.
func validateConfigFileProperties(info os.FileInfo) error {
	if runtime.GOOS != "windows" {
		perm := info.Mode().Perm()
		if perm != 0600 && perm != 0400 {
			return fmt.Errorf("insecure config file permissions: %v (expected 0600 or 0400)", perm)
		}
	}

	if info.Size() > maxConfigFileSize {
		return fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}

	return nil
}
