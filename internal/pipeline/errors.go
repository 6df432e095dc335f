package pipeline

import (
	"errors"
	"fmt"

	"github.com/fyrsmithlabs/codematrix/internal/state"
)

var (
	// ErrBusy is returned by Start while another run is in flight.
	ErrBusy = errors.New("a repository is already being processed")

	// ErrClosed is returned by Start after Close.
	ErrClosed = errors.New("pipeline is shut down")
)

// BusyError describes the run that caused a rejection.
type BusyError struct {
	RunID  string
	RepoID string
	Status state.Status
}

func (e *BusyError) Error() string {
	if e.RepoID == "" {
		return ErrBusy.Error()
	}
	return fmt.Sprintf("%s: %s is %s", ErrBusy, e.RepoID, e.Status)
}

func (e *BusyError) Unwrap() error { return ErrBusy }
