package http

import (
	"time"

	"github.com/fyrsmithlabs/codematrix/internal/metadata"
	"github.com/fyrsmithlabs/codematrix/internal/state"
)

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status            string          `json:"status"`
	Timestamp         time.Time       `json:"timestamp"`
	APIKeysConfigured map[string]bool `json:"api_keys_configured"`
}

// CloneRequest is the request body for POST /api/v1/clone.
type CloneRequest struct {
	RepoURL string `json:"repo_url"`
}

// CloneResponse is the response body for an accepted clone.
type CloneResponse struct {
	RunID   string `json:"run_id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// StatusResponse is the response body for GET /api/v1/status and the
// payload of each GET /api/v1/status/stream event.
type StatusResponse struct {
	Status       state.Status           `json:"status"`
	Message      string                 `json:"message"`
	Progress     float64                `json:"progress"`
	IsProcessing bool                   `json:"is_processing"`
	RepoID       string                 `json:"repo_id,omitempty"`
	RepoURL      string                 `json:"repo_url,omitempty"`
	Description  string                 `json:"description"`
	Metadata     *metadata.RepoMetadata `json:"metadata,omitempty"`
	RunID        string                 `json:"run_id,omitempty"`
	LastUpdated  time.Time              `json:"last_updated"`
}

func newStatusResponse(s state.State) StatusResponse {
	resp := StatusResponse{
		Status:       s.Status,
		Message:      s.Message,
		Progress:     s.Progress,
		IsProcessing: s.IsProcessing,
		RepoID:       s.ActiveRepoID(),
		Description:  s.Description,
		Metadata:     s.Metadata,
		RunID:        s.RunID,
		LastUpdated:  s.LastUpdated,
	}
	if s.RepoURL != nil {
		resp.RepoURL = *s.RepoURL
	}
	return resp
}

// RepoInfoResponse is the response body for GET /api/v1/repo_info.
type RepoInfoResponse struct {
	RepoName        string `json:"repo_name"`
	RepoDescription string `json:"repo_description"`
}

// RepositoryInfo describes one in-memory index.
type RepositoryInfo struct {
	ID      string                 `json:"id"`
	Chunks  int                    `json:"chunks"`
	Active  bool                   `json:"active"`
	BuiltAt time.Time              `json:"built_at"`
	Summary *metadata.RepoMetadata `json:"metadata,omitempty"`
}

// RepositoriesResponse is the response body for GET /api/v1/repositories.
type RepositoriesResponse struct {
	Repositories []RepositoryInfo `json:"repositories"`
}

// ChatRequest is the request body for POST /api/v1/chat.
type ChatRequest struct {
	Question       string `json:"question"`
	TopK           int    `json:"top_k"`
	FocusFile      string `json:"focus_file,omitempty"`
	CursorPosition *int   `json:"cursor_position,omitempty"`
}

// ExplainRequest is the request body for POST /api/v1/explain.
type ExplainRequest struct {
	Code       string `json:"code"`
	Complexity string `json:"complexity"`
}

// ExplainResponse is the response body for POST /api/v1/explain.
type ExplainResponse struct {
	Explanation string `json:"explanation"`
	Complexity  string `json:"complexity"`
}
