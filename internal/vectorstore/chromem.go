package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	chromem "github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/codematrix/internal/sanitize"
)

// tracer is resolved per call so a provider installed later is honoured.
func tracer() trace.Tracer { return otel.Tracer("codematrix.vectorstore") }

// errNoEmbedder guards chromem's fallback to a remote embedding function.
var errNoEmbedder = errors.New("vectorstore: documents must be embedded before indexing")

// ChromemConfig configures the in-memory chromem-go database.
type ChromemConfig struct {
	// Concurrency is passed to chromem when adding documents.
	// Default: 4
	Concurrency int
}

// ApplyDefaults sets default values for unset fields.
func (c *ChromemConfig) ApplyDefaults() {
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
}

// ChromemBuilder builds indexes as collections of one in-memory chromem-go
// database. Each build gets its own collection so replacing an index never
// touches the one it replaces until that one is closed.
type ChromemBuilder struct {
	db     *chromem.DB
	config ChromemConfig
	logger *zap.Logger
	seq    atomic.Uint64
}

// NewChromemBuilder creates a builder backed by a fresh in-memory database.
func NewChromemBuilder(config ChromemConfig, logger *zap.Logger) *ChromemBuilder {
	if logger == nil {
		logger = zap.NewNop()
	}
	config.ApplyDefaults()
	return &ChromemBuilder{
		db:     chromem.NewDB(),
		config: config,
		logger: logger,
	}
}

// Build implements Builder.
func (b *ChromemBuilder) Build(ctx context.Context, repoID string, docs []Document) (handle SearchHandle, err error) {
	ctx, span := tracer().Start(ctx, "ChromemBuilder.Build")
	defer span.End()
	defer func() { RecordBuild(len(docs), err) }()

	span.SetAttributes(
		attribute.String("repo_id", repoID),
		attribute.Int("document_count", len(docs)),
	)

	if len(docs) == 0 {
		span.SetStatus(codes.Error, ErrEmptyDocuments.Error())
		return nil, ErrEmptyDocuments
	}

	dim := len(docs[0].Embedding)
	chromemDocs := make([]chromem.Document, len(docs))
	for i, doc := range docs {
		if len(doc.Embedding) == 0 {
			return nil, fmt.Errorf("%w: document %d (%s)", ErrMissingEmbedding, i, doc.Source)
		}
		if len(doc.Embedding) != dim {
			return nil, fmt.Errorf("%w: document %d has %d dimensions, expected %d",
				ErrDimensionMismatch, i, len(doc.Embedding), dim)
		}

		meta := make(map[string]string, len(doc.Metadata)+2)
		for k, v := range doc.Metadata {
			meta[k] = v
		}
		meta[metaSource] = doc.Source
		meta[metaPosition] = strconv.Itoa(i)

		id := doc.ID
		if id == "" {
			id = strconv.Itoa(i)
		}
		chromemDocs[i] = chromem.Document{
			ID:        id,
			Content:   doc.Content,
			Metadata:  meta,
			Embedding: doc.Embedding,
		}
	}

	name := fmt.Sprintf("%s_%d", sanitize.Identifier(repoID), b.seq.Add(1))
	collection, err := b.db.CreateCollection(name, map[string]string{"repo_id": repoID}, noEmbed)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("creating collection %s: %w", name, err)
	}

	if err := collection.AddDocuments(ctx, chromemDocs, b.config.Concurrency); err != nil {
		_ = b.db.DeleteCollection(name)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("adding documents to %s: %w", name, err)
	}

	OpenIndexes.Inc()
	span.SetAttributes(attribute.String("collection", name))
	span.SetStatus(codes.Ok, "success")
	b.logger.Debug("built chromem index",
		zap.String("collection", name),
		zap.Int("documents", collection.Count()),
		zap.Int("dimensions", dim),
	)

	return &chromemHandle{
		db:         b.db,
		name:       name,
		collection: collection,
		dim:        dim,
		logger:     b.logger,
	}, nil
}

func noEmbed(context.Context, string) ([]float32, error) {
	return nil, errNoEmbedder
}

type chromemHandle struct {
	db         *chromem.DB
	name       string
	collection *chromem.Collection
	dim        int
	logger     *zap.Logger

	mu     sync.RWMutex
	closed bool
}

// Nearest implements SearchHandle.
func (h *chromemHandle) Nearest(ctx context.Context, vec []float32, k int) ([]SearchResult, error) {
	ctx, span := tracer().Start(ctx, "chromemHandle.Nearest")
	defer span.End()

	span.SetAttributes(
		attribute.String("collection", h.name),
		attribute.Int("k", k),
	)

	if k <= 0 {
		return nil, fmt.Errorf("%w, got %d", ErrInvalidK, k)
	}
	if len(vec) != h.dim {
		return nil, fmt.Errorf("%w: query has %d dimensions, index has %d", ErrDimensionMismatch, len(vec), h.dim)
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return nil, ErrClosed
	}

	// chromem requires nResults <= document count
	if n := h.collection.Count(); k > n {
		k = n
	}
	if k == 0 {
		return []SearchResult{}, nil
	}

	start := time.Now()
	results, err := h.collection.QueryEmbedding(ctx, vec, k, nil, nil)
	SearchDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("querying collection %s: %w", h.name, err)
	}

	out := make([]SearchResult, len(results))
	for i, r := range results {
		out[i] = SearchResult{
			ID:       r.ID,
			Content:  r.Content,
			Source:   r.Metadata[metaSource],
			Score:    r.Similarity,
			Metadata: r.Metadata,
		}
	}
	// equal scores keep insertion order
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return position(out[i]) < position(out[j])
	})

	span.SetAttributes(attribute.Int("results_count", len(out)))
	span.SetStatus(codes.Ok, "success")
	return out, nil
}

func position(r SearchResult) int {
	n, err := strconv.Atoi(r.Metadata[metaPosition])
	if err != nil {
		return 0
	}
	return n
}

// Len implements SearchHandle.
func (h *chromemHandle) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return 0
	}
	return h.collection.Count()
}

// Close implements SearchHandle. It is idempotent.
func (h *chromemHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	OpenIndexes.Dec()
	if err := h.db.DeleteCollection(h.name); err != nil {
		return fmt.Errorf("deleting collection %s: %w", h.name, err)
	}
	h.logger.Debug("released chromem index", zap.String("collection", h.name))
	return nil
}
