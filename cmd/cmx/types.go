package main

import (
	"time"
)

// The types below mirror the JSON bodies served by internal/http.

// CloneRequest matches internal/http CloneRequest
type CloneRequest struct {
	RepoURL string `json:"repo_url"`
}

// CloneResponse matches internal/http CloneResponse
type CloneResponse struct {
	RunID   string `json:"run_id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// StatusResponse matches internal/http StatusResponse. Metadata is kept as
// the subset the CLI prints.
type StatusResponse struct {
	Status       string    `json:"status"`
	Message      string    `json:"message"`
	Progress     float64   `json:"progress"`
	IsProcessing bool      `json:"is_processing"`
	RepoID       string    `json:"repo_id,omitempty"`
	RepoURL      string    `json:"repo_url,omitempty"`
	Description  string    `json:"description"`
	Metadata     *Metadata `json:"metadata,omitempty"`
	RunID        string    `json:"run_id,omitempty"`
	LastUpdated  time.Time `json:"last_updated"`
}

// Metadata is the repository summary attached to status.
type Metadata struct {
	TotalFiles int    `json:"total_files"`
	CodeFiles  int    `json:"code_files"`
	TotalLines int    `json:"total_lines"`
	HeadCommit string `json:"head_commit,omitempty"`
	Branch     string `json:"branch,omitempty"`
}

// Status values reported by the server.
const (
	statusIdle  = "idle"
	statusReady = "ready"
	statusError = "error"
)

// RepositoryInfo matches internal/http RepositoryInfo
type RepositoryInfo struct {
	ID      string    `json:"id"`
	Chunks  int       `json:"chunks"`
	Active  bool      `json:"active"`
	BuiltAt time.Time `json:"built_at"`
}

// RepositoriesResponse matches internal/http RepositoriesResponse
type RepositoriesResponse struct {
	Repositories []RepositoryInfo `json:"repositories"`
}

// ChatRequest matches internal/http ChatRequest
type ChatRequest struct {
	Question       string `json:"question"`
	TopK           int    `json:"top_k"`
	FocusFile      string `json:"focus_file,omitempty"`
	CursorPosition *int   `json:"cursor_position,omitempty"`
}

// ChatResponse matches query.Response
type ChatResponse struct {
	Answer          string   `json:"answer"`
	RetrievedChunks []string `json:"retrieved_code"`
	Sources         []string `json:"sources,omitempty"`
	RepoID          string   `json:"repo_id,omitempty"`
}

// ExplainRequest matches internal/http ExplainRequest
type ExplainRequest struct {
	Code       string `json:"code"`
	Complexity string `json:"complexity"`
}

// ExplainResponse matches internal/http ExplainResponse
type ExplainResponse struct {
	Explanation string `json:"explanation"`
	Complexity  string `json:"complexity"`
}

// HealthResponse matches internal/http HealthResponse
type HealthResponse struct {
	Status            string          `json:"status"`
	Timestamp         time.Time       `json:"timestamp"`
	APIKeysConfigured map[string]bool `json:"api_keys_configured"`
}
