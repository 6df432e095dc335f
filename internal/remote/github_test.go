package remote

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/codematrix/internal/config"
)

func TestParseRepo(t *testing.T) {
	tests := []struct {
		url         string
		owner, repo string
		ok          bool
	}{
		{"https://github.com/pallets/flask.git", "pallets", "flask", true},
		{"https://github.com/pallets/flask", "pallets", "flask", true},
		{"https://GitHub.com/pallets/flask/", "pallets", "flask", true},
		{"ssh://git@github.com/pallets/flask.git", "pallets", "flask", true},
		{"git@github.com:pallets/flask.git", "pallets", "flask", true},
		{"https://gitlab.com/pallets/flask.git", "", "", false},
		{"git@gitlab.com:pallets/flask.git", "", "", false},
		{"https://github.com/pallets", "", "", false},
		{"https://github.com/pallets/flask/tree/main", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			owner, repo, ok := ParseRepo(tt.url, "github.com")
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.owner, owner)
			assert.Equal(t, tt.repo, repo)
		})
	}
}

func newEnterpriseDescriber(t *testing.T, handler http.HandlerFunc) *GitHubDescriber {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	d, err := NewGitHubDescriber(context.Background(), config.GitHubConfig{
		Enabled: true,
		Token:   config.Secret("ghp_test"),
		BaseURL: srv.URL,
	}, nil)
	require.NoError(t, err)
	return d
}

func TestGitHubDescriber_Describe(t *testing.T) {
	d := newEnterpriseDescriber(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/repos/pallets/flask", r.URL.Path)
		assert.Equal(t, "Bearer ghp_test", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"name":"flask","description":"  The Python micro framework  "}`))
	})

	desc, err := d.Describe(context.Background(), "https://127.0.0.1/pallets/flask.git")
	require.NoError(t, err)
	assert.Equal(t, "The Python micro framework", desc)
}

func TestGitHubDescriber_NotFound(t *testing.T) {
	d := newEnterpriseDescriber(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message":"Not Found"}`))
	})

	_, err := d.Describe(context.Background(), "https://127.0.0.1/pallets/missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pallets/missing")
}

func TestGitHubDescriber_UnsupportedHost(t *testing.T) {
	d, err := NewGitHubDescriber(context.Background(), config.GitHubConfig{}, nil)
	require.NoError(t, err)

	_, err = d.Describe(context.Background(), "https://gitlab.com/group/project.git")
	assert.True(t, errors.Is(err, ErrUnsupportedHost))
}

func TestNewGitHubDescriber_InvalidBaseURL(t *testing.T) {
	_, err := NewGitHubDescriber(context.Background(), config.GitHubConfig{BaseURL: "::bad"}, nil)
	assert.Error(t, err)
}
