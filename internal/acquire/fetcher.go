package acquire

import (
	"context"
	"fmt"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"

	"github.com/fyrsmithlabs/codematrix/internal/config"
)

// CloneOptions narrows what a fetch transfers.
type CloneOptions struct {
	Depth        int
	SingleBranch bool
	NoTags       bool
}

// Fetcher copies a remote repository into dest.
type Fetcher interface {
	Fetch(ctx context.Context, url, dest string, opts CloneOptions) error
}

// GitFetcher clones with go-git, without a git binary.
type GitFetcher struct {
	auth transport.AuthMethod
}

// NewGitFetcher creates a fetcher. A non-empty token is sent as HTTP basic
// auth for private repositories.
func NewGitFetcher(username string, token config.Secret) *GitFetcher {
	f := &GitFetcher{}
	if token.IsSet() {
		if username == "" {
			username = "x-access-token"
		}
		f.auth = &githttp.BasicAuth{Username: username, Password: token.Value()}
	}
	return f
}

// Fetch implements Fetcher.
func (f *GitFetcher) Fetch(ctx context.Context, url, dest string, opts CloneOptions) error {
	if _, err := git.PlainCloneContext(ctx, dest, false, f.cloneOptions(url, opts)); err != nil {
		return fmt.Errorf("git clone: %w", err)
	}
	return nil
}

func (f *GitFetcher) cloneOptions(url string, opts CloneOptions) *git.CloneOptions {
	o := &git.CloneOptions{
		URL:          url,
		Depth:        opts.Depth,
		SingleBranch: opts.SingleBranch,
	}
	if opts.NoTags {
		o.Tags = git.NoTags
	}
	// Basic auth is meaningless for ssh remotes.
	if f.auth != nil && isHTTP(url) {
		o.Auth = f.auth
	}
	return o
}
