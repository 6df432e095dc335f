package acquire

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrAcquisition matches every failure returned by Acquire.
	ErrAcquisition = errors.New("repository acquisition failed")

	// ErrInvalidURL indicates a URL that is not an accepted git remote.
	ErrInvalidURL = errors.New("invalid repository url")
)

// Attempt records the outcome of one strategy.
type Attempt struct {
	Strategy string
	Path     string
	Err      error
}

// Error aggregates the causes of a failed acquisition.
type Error struct {
	URL      string
	Attempts []Attempt
	// Cause is set when the request failed before any strategy ran.
	Cause error
}

func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "failed to acquire %s", e.URL)
	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	for _, a := range e.Attempts {
		fmt.Fprintf(&b, "; %s: %v", a.Strategy, a.Err)
	}
	return b.String()
}

// Unwrap exposes ErrAcquisition and every underlying cause to errors.Is/As.
func (e *Error) Unwrap() []error {
	errs := make([]error, 0, len(e.Attempts)+2)
	errs = append(errs, ErrAcquisition)
	if e.Cause != nil {
		errs = append(errs, e.Cause)
	}
	for _, a := range e.Attempts {
		if a.Err != nil {
			errs = append(errs, a.Err)
		}
	}
	return errs
}
