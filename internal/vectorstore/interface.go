// Package vectorstore builds per-repository similarity indexes over chunk
// embeddings and answers k-nearest-neighbour queries against them.
//
// Embeddings are computed by the caller; the store never calls an
// embedding provider itself.
package vectorstore

import (
	"context"
	"errors"
)

var (
	// ErrEmptyDocuments is returned when a build has nothing to index.
	ErrEmptyDocuments = errors.New("no documents to index")

	// ErrMissingEmbedding is returned when a document carries no vector.
	ErrMissingEmbedding = errors.New("document has no embedding")

	// ErrDimensionMismatch is returned when vectors differ in length.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrInvalidK is returned for a non-positive result count.
	ErrInvalidK = errors.New("k must be positive")

	// ErrClosed is returned when searching a released handle.
	ErrClosed = errors.New("search handle closed")
)

// Builder creates a searchable index from embedded documents.
type Builder interface {
	// Build indexes docs under a name derived from repoID. Every document
	// must carry an embedding of the same dimension.
	Build(ctx context.Context, repoID string, docs []Document) (SearchHandle, error)
}

// SearchHandle is a built index.
type SearchHandle interface {
	// Nearest returns up to k documents ordered by descending similarity to
	// vec. k larger than the index size is capped.
	Nearest(ctx context.Context, vec []float32, k int) ([]SearchResult, error)

	// Len returns the number of indexed documents.
	Len() int

	// Close releases the index. Searching afterwards returns ErrClosed.
	Close() error
}
