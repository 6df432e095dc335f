package repository

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/tmc/langchaingo/documentloaders"
	"github.com/tmc/langchaingo/textsplitter"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/codematrix/internal/config"
	"github.com/fyrsmithlabs/codematrix/internal/ignore"
	"github.com/fyrsmithlabs/codematrix/internal/index"
)

// maxFileSizeCap bounds the configurable file size limit.
const maxFileSizeCap = 10 << 20

// Loader reads a checkout into ordered chunks.
type Loader interface {
	// Load returns chunks in walk order. A nil matcher applies the
	// built-in skip patterns only.
	Load(ctx context.Context, root string, matcher *ignore.Matcher) ([]index.Chunk, error)
}

// LoaderConfig configures file selection and splitting.
type LoaderConfig struct {
	Extensions   []string
	MaxFileSize  int64
	ChunkSize    int
	ChunkOverlap int
}

// LoaderConfigFromSettings converts the loaded configuration section.
func LoaderConfigFromSettings(s config.IndexingConfig) LoaderConfig {
	return LoaderConfig{
		Extensions:   s.Extensions,
		MaxFileSize:  s.MaxFileSize,
		ChunkSize:    s.ChunkSize,
		ChunkOverlap: s.ChunkOverlap,
	}
}

// loadStats counts what a Load call indexed and skipped.
type loadStats struct {
	Files     int
	Oversized int
	Binary    int
	Unread    int
}

// LangchainLoader loads files with langchaingo's text loader and splits
// them with its recursive character splitter.
type LangchainLoader struct {
	extensions  map[string]bool
	maxFileSize int64
	splitter    textsplitter.TextSplitter
	logger      *zap.Logger
}

// NewLangchainLoader validates cfg and builds a loader.
func NewLangchainLoader(cfg LoaderConfig, logger *zap.Logger) (*LangchainLoader, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(cfg.Extensions) == 0 {
		cfg.Extensions = config.DefaultExtensions
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = 1 << 20
	}
	if cfg.MaxFileSize > maxFileSizeCap {
		return nil, fmt.Errorf("max_file_size cannot exceed 10MB")
	}
	if cfg.ChunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", cfg.ChunkSize)
	}
	if cfg.ChunkOverlap < 0 || cfg.ChunkOverlap >= cfg.ChunkSize {
		return nil, fmt.Errorf("chunk overlap must be in [0, %d), got %d", cfg.ChunkSize, cfg.ChunkOverlap)
	}

	exts := make(map[string]bool, len(cfg.Extensions))
	for _, e := range cfg.Extensions {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		exts[e] = true
	}

	return &LangchainLoader{
		extensions:  exts,
		maxFileSize: cfg.MaxFileSize,
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(cfg.ChunkSize),
			textsplitter.WithChunkOverlap(cfg.ChunkOverlap),
		),
		logger: logger,
	}, nil
}

// Load implements Loader.
func (l *LangchainLoader) Load(ctx context.Context, root string, matcher *ignore.Matcher) ([]index.Chunk, error) {
	chunks, _, err := l.load(ctx, root, matcher)
	return chunks, err
}

func (l *LangchainLoader) load(ctx context.Context, root string, matcher *ignore.Matcher) ([]index.Chunk, loadStats, error) {
	var stats loadStats
	if matcher == nil {
		matcher = ignore.NewParser(ignore.DefaultPatterns).Default()
	}

	var chunks []index.Chunk
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			l.logger.Debug("skipping unreadable entry", zap.String("path", path), zap.Error(err))
			stats.Unread++
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if path == root {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return fmt.Errorf("computing relative path: %w", err)
		}
		rel = filepath.ToSlash(rel)

		if matcher.Match(rel, d.IsDir()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		if !l.extensions[strings.ToLower(filepath.Ext(rel))] {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			stats.Unread++
			return nil
		}
		if info.Size() > l.maxFileSize {
			stats.Oversized++
			return nil
		}

		content, err := os.ReadFile(path)
		if err != nil {
			l.logger.Warn("could not read file", zap.String("path", rel), zap.Error(err))
			stats.Unread++
			return nil
		}
		// Binary content is skipped silently.
		if !utf8.Valid(content) {
			stats.Binary++
			return nil
		}
		if len(bytes.TrimSpace(content)) == 0 {
			return nil
		}

		docs, err := documentloaders.NewText(bytes.NewReader(content)).LoadAndSplit(ctx, l.splitter)
		if err != nil {
			return fmt.Errorf("splitting %s: %w", rel, err)
		}
		for _, doc := range docs {
			if strings.TrimSpace(doc.PageContent) == "" {
				continue
			}
			chunks = append(chunks, index.Chunk{Text: doc.PageContent, Source: rel})
		}
		stats.Files++
		return nil
	})
	if err != nil {
		return nil, stats, fmt.Errorf("walking file tree: %w", err)
	}

	l.logger.Debug("loaded repository files",
		zap.String("root", root),
		zap.Int("files", stats.Files),
		zap.Int("chunks", len(chunks)),
		zap.Int("oversized", stats.Oversized),
		zap.Int("binary", stats.Binary),
		zap.Int("unreadable", stats.Unread))
	return chunks, stats, nil
}

// validatePath cleans path and checks it is an existing directory.
func validatePath(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("path cannot be empty")
	}

	cleanPath := filepath.Clean(path)
	info, err := os.Stat(cleanPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("path does not exist: %s", cleanPath)
		}
		return "", fmt.Errorf("stat path: %w", err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("path must be a directory: %s", cleanPath)
	}
	return cleanPath, nil
}
