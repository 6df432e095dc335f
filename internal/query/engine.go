// Package query answers natural-language questions about the active
// repository. It resolves which index to use from the process state and the
// index registry, retrieves the most similar chunks, and asks the chat model
// for an answer grounded in them.
//
// Ask never returns an error: every failure is rendered as an answer string
// so that callers can show it directly.
package query

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/codematrix/internal/config"
	"github.com/fyrsmithlabs/codematrix/internal/embeddings"
	"github.com/fyrsmithlabs/codematrix/internal/index"
	"github.com/fyrsmithlabs/codematrix/internal/llm"
	"github.com/fyrsmithlabs/codematrix/internal/logging"
	"github.com/fyrsmithlabs/codematrix/internal/state"
	"github.com/fyrsmithlabs/codematrix/internal/vectorstore"
)

// Fixed answers for questions that cannot reach the model.
const (
	NoRepositoryAnswer = "No repository is currently loaded. Please clone a repository first."
	IndexClearedAnswer = "Vector database for this repository not found. Please re-index."
	errorAnswerPrefix  = "An error occurred while processing your question: "
)

// focusBonus is how many extra neighbours are fetched when a focus file is
// given, so chunks from that file have room to be promoted.
const focusBonus = 2

// Request is a question about the active repository.
type Request struct {
	Question       string
	TopK           int
	FocusFile      string
	CursorPosition *int
}

// Response is the rendered answer plus what was retrieved to produce it.
type Response struct {
	Answer          string   `json:"answer"`
	RetrievedChunks []string `json:"retrieved_code"`
	Sources         []string `json:"sources,omitempty"`
	RepoID          string   `json:"repo_id,omitempty"`
}

// Config controls retrieval.
type Config struct {
	DefaultTopK        int
	MaxTopK            int
	EmbeddingCacheSize int
}

// ApplyDefaults fills zero values.
func (c *Config) ApplyDefaults() {
	if c.DefaultTopK <= 0 {
		c.DefaultTopK = 5
	}
	if c.MaxTopK <= 0 {
		c.MaxTopK = 20
	}
	if c.DefaultTopK > c.MaxTopK {
		c.DefaultTopK = c.MaxTopK
	}
}

// FromSettings converts the file/env configuration.
func FromSettings(s config.QueryConfig) Config {
	return Config{
		DefaultTopK:        s.DefaultTopK,
		MaxTopK:            s.MaxTopK,
		EmbeddingCacheSize: s.EmbeddingCacheSize,
	}
}

// Engine answers questions against the registry.
type Engine struct {
	config    Config
	tracker   *state.Tracker
	registry  *index.Registry
	embedder  embeddings.Embedder
	completer llm.Completer
	logger    *logging.Logger
}

// New creates an Engine. Query embeddings are cached when
// cfg.EmbeddingCacheSize is positive.
func New(cfg Config, tracker *state.Tracker, registry *index.Registry, embedder embeddings.Embedder, completer llm.Completer, logger *zap.Logger) (*Engine, error) {
	if tracker == nil || registry == nil {
		return nil, errors.New("tracker and registry are required")
	}
	if embedder == nil {
		return nil, errors.New("embedder is required")
	}
	if completer == nil {
		return nil, errors.New("completer is required")
	}
	cfg.ApplyDefaults()

	if cfg.EmbeddingCacheSize > 0 {
		cached, err := embeddings.NewCachedEmbedder(embedder, cfg.EmbeddingCacheSize)
		if err != nil {
			return nil, fmt.Errorf("creating query embedding cache: %w", err)
		}
		embedder = cached
	}

	return &Engine{
		config:    cfg,
		tracker:   tracker,
		registry:  registry,
		embedder:  embedder,
		completer: completer,
		logger:    logging.Wrap(logger),
	}, nil
}

func tracer() trace.Tracer { return otel.Tracer("codematrix.query") }

// Ask answers req. It never fails; errors and panics become answer text.
func (e *Engine) Ask(ctx context.Context, req Request) (resp Response) {
	ctx, span := tracer().Start(ctx, "Engine.Ask")
	defer span.End()

	start := time.Now()
	outcome := outcomeAnswered
	defer func() {
		if r := recover(); r != nil {
			outcome = outcomePanic
			err := fmt.Errorf("internal error: %v", r)
			span.RecordError(err)
			span.SetStatus(codes.Error, "panic")
			e.logger.Error(ctx, "question panicked", zap.Any("panic", r))
			resp = Response{Answer: errorAnswer(err), RetrievedChunks: []string{}}
		}
		QueriesTotal.WithLabelValues(outcome).Inc()
		QueryDuration.Observe(time.Since(start).Seconds())
	}()

	resp = Response{RetrievedChunks: []string{}}

	if strings.TrimSpace(req.Question) == "" {
		outcome = outcomeError
		resp.Answer = errorAnswer(ErrEmptyQuestion)
		return resp
	}

	entry, err := e.resolve(ctx)
	if err != nil {
		span.SetAttributes(attribute.String("resolution", err.Error()))
		switch {
		case errors.Is(err, ErrNoRepository):
			outcome = outcomeNoRepository
			resp.Answer = NoRepositoryAnswer
		default:
			outcome = outcomeIndexMissing
			resp.Answer = IndexClearedAnswer
		}
		e.logger.Info(ctx, "question not answerable", zap.Error(err))
		return resp
	}

	resp.RepoID = entry.RepoID
	ctx = logging.WithRepoID(ctx, entry.RepoID)
	span.SetAttributes(attribute.String("repo.id", entry.RepoID))

	answer, chunks, sources, err := e.answer(ctx, entry, req)
	resp.RetrievedChunks = chunks
	resp.Sources = sources
	if err != nil {
		outcome = outcomeError
		span.RecordError(err)
		span.SetStatus(codes.Error, "question failed")
		e.logger.Warn(ctx, "question failed", zap.Error(err))
		resp.Answer = errorAnswer(err)
		return resp
	}

	resp.Answer = answer
	e.logger.Info(ctx, "question answered",
		zap.Int("chunks", len(chunks)),
		zap.Duration("duration", time.Since(start)))
	return resp
}

// resolve picks the index to query. When no repository id is recorded the
// first registered id is used; an empty registry means nothing is loaded.
func (e *Engine) resolve(ctx context.Context) (*index.Entry, error) {
	repoID := e.tracker.Snapshot().ActiveRepoID()

	if repoID == "" {
		if first, ok := e.registry.First(); ok {
			e.logger.Debug(ctx, "no active repository recorded, using first registered",
				zap.String("repo_id", first))
			repoID = first
		}
	}

	if e.registry.Len() == 0 {
		return nil, &ResolutionError{RepoID: repoID, Err: ErrNoRepository}
	}

	if entry, ok := e.registry.Get(repoID); ok {
		return entry, nil
	}
	if entry, ok := e.registry.GetFuzzy(repoID); ok {
		return entry, nil
	}
	return nil, &ResolutionError{RepoID: repoID, Err: ErrIndexMissing}
}

func (e *Engine) answer(ctx context.Context, entry *index.Entry, req Request) (string, []string, []string, error) {
	chunks, sources, err := e.retrieve(ctx, entry, req)
	if err != nil {
		return "", []string{}, nil, err
	}
	RetrievedChunks.Observe(float64(len(chunks)))

	prompt := buildPrompt(entry.RepoID, entry.Metadata, chunks, req)
	text, err := e.completer.Complete(ctx, systemPrompt, prompt)
	if err != nil {
		return "", chunks, sources, fmt.Errorf("generating answer: %w", err)
	}
	return text, chunks, sources, nil
}

func (e *Engine) retrieve(ctx context.Context, entry *index.Entry, req Request) ([]string, []string, error) {
	if entry.Search == nil {
		return nil, nil, ErrIndexMissing
	}

	topK := e.topK(req.TopK)
	k := topK
	if req.FocusFile != "" {
		k += focusBonus
	}
	if n := entry.Search.Len(); k > n {
		k = n
	}
	if k <= 0 {
		return []string{}, nil, nil
	}

	vec, err := e.embedder.EmbedQuery(ctx, req.Question)
	if err != nil {
		return nil, nil, fmt.Errorf("embedding question: %w", err)
	}

	results, err := entry.Search.Nearest(ctx, vec, k)
	if err != nil {
		return nil, nil, fmt.Errorf("searching index: %w", err)
	}

	if req.FocusFile != "" {
		focused := func(source string) bool { return matchesFocus(req.FocusFile, source) }
		// Stable partition: focus-file hits first, similarity order kept.
		slices.SortStableFunc(results, func(a, b vectorstore.SearchResult) int {
			fa, fb := focused(a.Source), focused(b.Source)
			switch {
			case fa && !fb:
				return -1
			case fb && !fa:
				return 1
			}
			return 0
		})
		if len(results) > topK+focusBonus {
			results = results[:topK+focusBonus]
		}
	}

	chunks := make([]string, 0, len(results))
	var sources []string
	for _, r := range results {
		chunks = append(chunks, r.Content)
		if r.Source != "" && !slices.Contains(sources, r.Source) {
			sources = append(sources, r.Source)
		}
	}
	return chunks, sources, nil
}

// topK clamps a requested count into [1, MaxTopK].
func (e *Engine) topK(requested int) int {
	if requested <= 0 {
		return e.config.DefaultTopK
	}
	return min(requested, e.config.MaxTopK)
}

// matchesFocus reports whether a chunk source (relative to the repository
// root) refers to the focus file, which may be relative or absolute.
func matchesFocus(focus, source string) bool {
	focus = filepath.ToSlash(filepath.Clean(focus))
	source = filepath.ToSlash(filepath.Clean(source))
	return focus == source || strings.HasSuffix(focus, "/"+source)
}

func errorAnswer(err error) string {
	return errorAnswerPrefix + err.Error()
}

// Explain describes code at the given level, one of Level5YearOld,
// Level10YearOld, LevelTeenager or LevelAdult. Unknown levels fall back to
// LevelAdult.
func (e *Engine) Explain(ctx context.Context, code, level string) (string, error) {
	ctx, span := tracer().Start(ctx, "Engine.Explain")
	defer span.End()

	level = NormalizeLevel(level)
	span.SetAttributes(attribute.String("level", level))

	if strings.TrimSpace(code) == "" {
		ExplanationsTotal.WithLabelValues(level, "error").Inc()
		return "", ErrEmptyCode
	}

	text, err := e.completer.Complete(ctx, "", buildExplainPrompt(code, level))
	if err != nil {
		ExplanationsTotal.WithLabelValues(level, "error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "explain failed")
		e.logger.Warn(ctx, "explanation failed", zap.String("level", level), zap.Error(err))
		return "", fmt.Errorf("explaining code: %w", err)
	}

	ExplanationsTotal.WithLabelValues(level, "success").Inc()
	return text, nil
}
