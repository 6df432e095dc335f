package repository

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fyrsmithlabs/codematrix/internal/config"
	"github.com/fyrsmithlabs/codematrix/internal/embeddings"
	"github.com/fyrsmithlabs/codematrix/internal/ignore"
	"github.com/fyrsmithlabs/codematrix/internal/index"
	"github.com/fyrsmithlabs/codematrix/internal/metadata"
	"github.com/fyrsmithlabs/codematrix/internal/secrets"
	"github.com/fyrsmithlabs/codematrix/internal/vectorstore"
)

func tracer() trace.Tracer { return otel.Tracer("codematrix.repository") }

// Config controls embedding fan-out and metadata collection.
type Config struct {
	// BatchSize is the number of chunks per embedding request.
	// Default: 32
	BatchSize int

	// Concurrency bounds in-flight embedding requests.
	// Default: 4
	Concurrency int

	// CodeExtensions are the extensions whose lines metadata counts.
	CodeExtensions []string
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.BatchSize <= 0 {
		c.BatchSize = 32
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
	if len(c.CodeExtensions) == 0 {
		c.CodeExtensions = config.DefaultExtensions
	}
}

// FromSettings converts the loaded configuration section.
func FromSettings(s config.IndexingConfig) Config {
	return Config{
		BatchSize:      s.EmbedBatchSize,
		Concurrency:    s.EmbedConcurrency,
		CodeExtensions: s.Extensions,
	}
}

// BuildOptions are per-call settings for Build.
type BuildOptions struct {
	// OnChunked receives the chunk count once loading is done and before
	// embedding starts.
	OnChunked func(n int)
}

// BuildOption customizes a single Build call.
type BuildOption func(*BuildOptions)

// WithChunkedHook calls fn with the chunk count once loading is done and
// before embedding starts.
func WithChunkedHook(fn func(n int)) BuildOption {
	return func(o *BuildOptions) { o.OnChunked = fn }
}

// Indexer builds index entries from local checkouts.
type Indexer struct {
	config   Config
	loader   Loader
	embedder embeddings.Embedder
	builder  vectorstore.Builder
	scrubber secrets.Scrubber
	ignore   *ignore.Parser
	logger   *zap.Logger
	now      func() time.Time
}

// NewIndexer wires an Indexer. A nil scrubber disables scrubbing.
func NewIndexer(cfg Config, loader Loader, embedder embeddings.Embedder, builder vectorstore.Builder, scrubber secrets.Scrubber, logger *zap.Logger) *Indexer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if scrubber == nil {
		scrubber = secrets.NoopScrubber{}
	}
	cfg.ApplyDefaults()
	return &Indexer{
		config:   cfg,
		loader:   loader,
		embedder: embedder,
		builder:  builder,
		scrubber: scrubber,
		ignore:   ignore.NewParser(ignore.DefaultPatterns),
		logger:   logger,
		now:      time.Now,
	}
}

// Build indexes the checkout at localPath under repoID. The returned entry
// is not registered anywhere; the caller owns it. Failures are returned as
// *IndexingError.
func (idx *Indexer) Build(ctx context.Context, repoID, localPath string, opts ...BuildOption) (entry *index.Entry, err error) {
	var o BuildOptions
	for _, opt := range opts {
		opt(&o)
	}

	ctx, span := tracer().Start(ctx, "Indexer.Build", trace.WithAttributes(
		attribute.String("repo.id", repoID),
	))
	defer span.End()

	start := time.Now()
	defer func() {
		recordBuild(time.Since(start), err)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "indexing failed")
		}
	}()

	root, err := validatePath(localPath)
	if err != nil {
		return nil, &IndexingError{RepoID: repoID, Stage: StageLoad, Err: err}
	}

	matcher, err := idx.ignore.ParseProject(root)
	if err != nil {
		idx.logger.Warn("could not read ignore files, using defaults", zap.String("root", root), zap.Error(err))
		matcher = idx.ignore.Default()
	}

	chunks, err := idx.loader.Load(ctx, root, matcher)
	if err != nil {
		return nil, &IndexingError{RepoID: repoID, Stage: StageLoad, Err: err}
	}
	if len(chunks) == 0 {
		return nil, &IndexingError{RepoID: repoID, Stage: StageLoad, Err: ErrNoSupportedFiles}
	}
	span.SetAttributes(attribute.Int("chunks", len(chunks)))
	ChunksTotal.Add(float64(len(chunks)))

	idx.scrub(ctx, repoID, chunks)

	if o.OnChunked != nil {
		o.OnChunked(len(chunks))
	}

	vectors, err := idx.embed(ctx, chunks)
	if err != nil {
		return nil, &IndexingError{RepoID: repoID, Stage: StageEmbed, Err: err}
	}
	span.AddEvent("embedded")

	docs := make([]vectorstore.Document, len(chunks))
	for i, c := range chunks {
		docs[i] = vectorstore.Document{
			ID:        strconv.Itoa(i),
			Content:   c.Text,
			Source:    c.Source,
			Embedding: vectors[i],
		}
	}
	handle, err := idx.builder.Build(ctx, repoID, docs)
	if err != nil {
		return nil, &IndexingError{RepoID: repoID, Stage: StageSearch, Err: err}
	}

	meta, err := metadata.Collect(ctx, root, metadata.Options{
		CodeExtensions: idx.config.CodeExtensions,
		Matcher:        matcher,
		Logger:         idx.logger,
	})
	if err != nil {
		if closeErr := handle.Close(); closeErr != nil {
			idx.logger.Warn("failed to release search index", zap.Error(closeErr))
		}
		return nil, &IndexingError{RepoID: repoID, Stage: StageMetadata, Err: err}
	}

	idx.logger.Info("repository indexed",
		zap.String("repo_id", repoID),
		zap.Int("chunks", len(chunks)),
		zap.Int("code_files", meta.CodeFiles),
		zap.Duration("duration", time.Since(start)))

	return &index.Entry{
		RepoID:   repoID,
		Chunks:   chunks,
		Search:   handle,
		Metadata: meta,
		BuiltAt:  idx.now(),
	}, nil
}

// scrub redacts secrets from chunk text in place.
func (idx *Indexer) scrub(ctx context.Context, repoID string, chunks []index.Chunk) {
	if !idx.scrubber.IsEnabled() {
		return
	}
	findings := 0
	for i := range chunks {
		res := idx.scrubber.Scrub(chunks[i].Text)
		if res.HasFindings() {
			findings += res.TotalFindings
			chunks[i].Text = res.Scrubbed
		}
	}
	if findings > 0 {
		trace.SpanFromContext(ctx).AddEvent("secrets.redacted", trace.WithAttributes(attribute.Int("findings", findings)))
		idx.logger.Info("redacted secrets from repository content",
			zap.String("repo_id", repoID),
			zap.Int("findings", findings))
	}
}

// embed embeds chunks in batches with bounded parallelism. The result is
// index-aligned with chunks.
func (idx *Indexer) embed(ctx context.Context, chunks []index.Chunk) ([][]float32, error) {
	vectors := make([][]float32, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(idx.config.Concurrency)

	for lo := 0; lo < len(chunks); lo += idx.config.BatchSize {
		hi := min(lo+idx.config.BatchSize, len(chunks))

		g.Go(func() error {
			texts := make([]string, hi-lo)
			for i := range texts {
				texts[i] = chunks[lo+i].Text
			}
			out, err := idx.embedder.EmbedDocuments(gctx, texts)
			if err != nil {
				return fmt.Errorf("embedding chunks %d-%d: %w", lo, hi-1, err)
			}
			if len(out) != len(texts) {
				return fmt.Errorf("embedding chunks %d-%d: got %d vectors for %d texts", lo, hi-1, len(out), len(texts))
			}
			copy(vectors[lo:hi], out)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}
