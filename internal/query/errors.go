package query

import (
	"errors"
	"fmt"
)

var (
	// ErrNoRepository means nothing has been indexed.
	ErrNoRepository = errors.New("no repository loaded")

	// ErrIndexMissing means the active repository has no index in memory.
	ErrIndexMissing = errors.New("index not found")

	// ErrEmptyQuestion rejects blank questions.
	ErrEmptyQuestion = errors.New("question is empty")

	// ErrEmptyCode rejects blank snippets passed to Explain.
	ErrEmptyCode = errors.New("code is empty")
)

// ResolutionError reports why no index could be selected for a question.
type ResolutionError struct {
	RepoID string
	Err    error
}

func (e *ResolutionError) Error() string {
	if e.RepoID == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.RepoID, e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }
