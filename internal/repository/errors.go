package repository

import (
	"errors"
	"fmt"
)

var (
	// ErrIndexing matches every failure returned by Indexer.Build.
	ErrIndexing = errors.New("indexing failed")

	// ErrNoSupportedFiles means the checkout produced zero chunks.
	ErrNoSupportedFiles = errors.New("no supported files found")
)

// Stages reported by IndexingError.
const (
	StageLoad     = "load"
	StageEmbed    = "embed"
	StageSearch   = "search"
	StageMetadata = "metadata"
)

// IndexingError reports which stage of a build failed.
type IndexingError struct {
	RepoID string
	Stage  string
	Err    error
}

func (e *IndexingError) Error() string {
	return fmt.Sprintf("indexing %s failed during %s: %v", e.RepoID, e.Stage, e.Err)
}

// Unwrap exposes ErrIndexing and the cause.
func (e *IndexingError) Unwrap() []error {
	return []error{ErrIndexing, e.Err}
}
