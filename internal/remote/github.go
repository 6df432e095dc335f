// Package remote looks up repository details from the hosting service.
// Lookups are best-effort: callers log failures and carry on.
package remote

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/google/go-github/v57/github"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/fyrsmithlabs/codematrix/internal/config"
)

// ErrUnsupportedHost is returned for URLs the describer cannot look up.
var ErrUnsupportedHost = errors.New("repository host not supported")

const defaultLookupTimeout = 10 * time.Second

// Describer returns a short human-readable description of a repository.
type Describer interface {
	Describe(ctx context.Context, sourceURL string) (string, error)
}

// GitHubDescriber reads the description field of GitHub repositories.
type GitHubDescriber struct {
	client  *github.Client
	host    string
	timeout time.Duration
	logger  *zap.Logger
}

// NewGitHubDescriber creates a describer. Without a token requests are
// anonymous and subject to GitHub's lower rate limit. A BaseURL selects a
// GitHub Enterprise server.
func NewGitHubDescriber(ctx context.Context, cfg config.GitHubConfig, logger *zap.Logger) (*GitHubDescriber, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var httpClient *http.Client
	if cfg.Token.IsSet() {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token.Value()})
		httpClient = oauth2.NewClient(ctx, ts)
	}
	client := github.NewClient(httpClient)

	host := "github.com"
	if cfg.BaseURL != "" {
		u, err := url.Parse(cfg.BaseURL)
		if err != nil || u.Host == "" {
			return nil, fmt.Errorf("invalid github base url %q", cfg.BaseURL)
		}
		client, err = client.WithEnterpriseURLs(cfg.BaseURL, cfg.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("configuring github enterprise: %w", err)
		}
		host = strings.TrimPrefix(u.Hostname(), "api.")
	}

	return &GitHubDescriber{
		client:  client,
		host:    host,
		timeout: defaultLookupTimeout,
		logger:  logger,
	}, nil
}

// Describe implements Describer.
func (d *GitHubDescriber) Describe(ctx context.Context, sourceURL string) (string, error) {
	owner, repo, ok := ParseRepo(sourceURL, d.host)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedHost, sourceURL)
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	r, resp, err := d.client.Repositories.Get(ctx, owner, repo)
	if err != nil {
		return "", fmt.Errorf("fetching %s/%s: %w", owner, repo, err)
	}
	if resp != nil && resp.Rate.Remaining < 5 {
		d.logger.Debug("github rate limit nearly exhausted",
			zap.Int("remaining", resp.Rate.Remaining),
			zap.Time("reset", resp.Rate.Reset.Time))
	}
	return strings.TrimSpace(r.GetDescription()), nil
}

var scpRepo = regexp.MustCompile(`^[^@\s]+@([^:\s]+):([^/\s]+)/([^/\s]+?)(?:\.git)?/?$`)

// ParseRepo extracts owner and repository name from an https, ssh or
// scp-style URL on host.
//
//	https://github.com/pallets/flask.git -> pallets, flask
//	git@github.com:pallets/flask.git     -> pallets, flask
func ParseRepo(rawURL, host string) (owner, repo string, ok bool) {
	raw := strings.TrimSpace(rawURL)
	if m := scpRepo.FindStringSubmatch(raw); m != nil && !strings.Contains(raw, "://") {
		if !strings.EqualFold(m[1], host) {
			return "", "", false
		}
		return m[2], m[3], true
	}

	u, err := url.Parse(raw)
	if err != nil || !strings.EqualFold(u.Hostname(), host) {
		return "", "", false
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	name := strings.TrimSuffix(parts[1], ".git")
	if name == "" {
		return "", "", false
	}
	return parts[0], name, true
}
