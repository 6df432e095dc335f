// Package embeddings turns text into vectors for indexing and retrieval.
//
// Three providers are available: any OpenAI-compatible embeddings API
// (OpenAI, Gemini's compatibility endpoint) through langchaingo, a
// HuggingFace text-embeddings-inference server, and local ONNX models via
// FastEmbed (cgo builds only).
package embeddings

import (
	"context"
	"errors"
)

var (
	// ErrEmptyInput indicates empty or nil input texts
	ErrEmptyInput = errors.New("empty or nil input texts")

	// ErrInvalidConfig indicates invalid configuration
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmbeddingFailed indicates embedding generation failure
	ErrEmbeddingFailed = errors.New("embedding generation failed")
)

// Embedder produces vectors for documents and queries. Some models embed
// the two differently, so they are separate calls.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Provider is an Embedder owning resources.
type Provider interface {
	Embedder
	// Dimension returns the embedding dimension, or 0 if not yet known.
	Dimension() int
	// Model names the model in use.
	Model() string
	// Close releases resources held by the provider.
	Close() error
}
