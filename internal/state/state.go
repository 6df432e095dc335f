// Package state holds the process-wide record of repository processing:
// current status, progress and the active repository. It is the single
// gate that keeps at most one pipeline run in flight.
package state

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/fyrsmithlabs/codematrix/internal/metadata"
)

// Status is a pipeline lifecycle state.
type Status string

const (
	StatusIdle     Status = "idle"
	StatusCloning  Status = "cloning"
	StatusIndexing Status = "indexing"
	StatusReady    Status = "ready"
	StatusError    Status = "error"
)

// Terminal reports whether s ends a run.
func (s Status) Terminal() bool {
	return s == StatusReady || s == StatusError
}

// InFlight reports whether s belongs to a running pipeline.
func (s Status) InFlight() bool {
	return s == StatusCloning || s == StatusIndexing
}

const (
	// InitialMessage is shown before any repository has been requested.
	InitialMessage = "Awaiting repository."

	// InitialDescription is the description of an empty workspace.
	InitialDescription = "No repository loaded."
)

// State is a snapshot of processing state. Values returned by Tracker are
// copies and safe to retain.
type State struct {
	Status       Status                 `json:"status"`
	Message      string                 `json:"message"`
	Progress     float64                `json:"progress"`
	RepoID       *string                `json:"repo_id,omitempty"`
	RepoLocation *string                `json:"repo_location,omitempty"`
	RepoURL      *string                `json:"repo_url,omitempty"`
	Description  string                 `json:"description"`
	Metadata     *metadata.RepoMetadata `json:"metadata,omitempty"`
	RunID        string                 `json:"run_id,omitempty"`
	IsProcessing bool                   `json:"is_processing"`
	LastUpdated  time.Time              `json:"last_updated"`
}

// Initial returns the idle state a process starts with.
func Initial() State {
	return State{
		Status:      StatusIdle,
		Message:     InitialMessage,
		Description: InitialDescription,
	}
}

// ActiveRepoID returns the repository id or "" when none is recorded.
func (s State) ActiveRepoID() string {
	if s.RepoID == nil {
		return ""
	}
	return *s.RepoID
}

func (s State) clone() State {
	c := s
	c.RepoID = clonePtr(s.RepoID)
	c.RepoLocation = clonePtr(s.RepoLocation)
	c.RepoURL = clonePtr(s.RepoURL)
	c.Metadata = s.Metadata.Clone()
	return c
}

// Patch is a partial update. Nil fields are left unchanged.
type Patch struct {
	Status       *Status
	Message      *string
	Progress     *float64
	RepoID       *string
	RepoLocation *string
	RepoURL      *string
	Description  *string
	Metadata     *metadata.RepoMetadata
	RunID        *string
}

// Set returns a pointer to v for building patches inline.
func Set[T any](v T) *T {
	return &v
}

// apply overlays p onto s. A location without an explicit id derives the
// id from the location's last path segment.
func (p Patch) apply(s *State) {
	if p.Status != nil {
		s.Status = *p.Status
	}
	if p.Message != nil {
		s.Message = *p.Message
	}
	if p.Progress != nil {
		s.Progress = clampProgress(*p.Progress)
	}
	if p.RepoURL != nil {
		s.RepoURL = clonePtr(p.RepoURL)
	}
	if p.RepoLocation != nil {
		s.RepoLocation = clonePtr(p.RepoLocation)
		if p.RepoID == nil {
			if id := RepoIDFromLocation(*p.RepoLocation); id != "" {
				s.RepoID = &id
			}
		}
	}
	if p.RepoID != nil {
		s.RepoID = clonePtr(p.RepoID)
	}
	if p.Description != nil {
		s.Description = *p.Description
	}
	if p.Metadata != nil {
		s.Metadata = p.Metadata.Clone()
	}
	if p.RunID != nil {
		s.RunID = *p.RunID
	}
}

// RepoIDFromLocation returns the terminal segment of a local path or URL,
// without a trailing ".git".
func RepoIDFromLocation(location string) string {
	loc := strings.TrimRight(filepath.ToSlash(location), "/")
	if i := strings.LastIndex(loc, "/"); i >= 0 {
		loc = loc[i+1:]
	}
	if i := strings.LastIndex(loc, ":"); i >= 0 {
		loc = loc[i+1:]
	}
	return strings.TrimSuffix(loc, ".git")
}

func clampProgress(p float64) float64 {
	switch {
	case p < 0 || p != p:
		return 0
	case p > 1:
		return 1
	}
	return p
}

func clonePtr(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
