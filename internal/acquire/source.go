package acquire

import (
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/fyrsmithlabs/codematrix/internal/sanitize"
)

// scpPattern matches scp-style remotes such as git@github.com:pallets/flask.git.
var scpPattern = regexp.MustCompile(`^[A-Za-z0-9._-]+@[A-Za-z0-9.-]+:([^/].*)$`)

var allowedSchemes = map[string]bool{
	"http":  true,
	"https": true,
	"ssh":   true,
	"git":   true,
}

// Source is a validated remote repository location.
type Source struct {
	URL  string
	Name string
}

// ParseSource validates rawURL and derives the repository name from its
// terminal path segment, minus any ".git" suffix.
//
//	https://github.com/pallets/flask.git -> flask
//	git@github.com:pallets/flask.git     -> flask
func ParseSource(rawURL string) (Source, error) {
	raw := strings.TrimSpace(rawURL)
	if raw == "" {
		return Source{}, fmt.Errorf("%w: empty url", ErrInvalidURL)
	}

	var repoPath string
	if m := scpPattern.FindStringSubmatch(raw); m != nil && !strings.Contains(raw, "://") {
		repoPath = m[1]
	} else {
		u, err := url.Parse(raw)
		if err != nil {
			return Source{}, fmt.Errorf("%w: %v", ErrInvalidURL, err)
		}
		if !allowedSchemes[strings.ToLower(u.Scheme)] {
			return Source{}, fmt.Errorf("%w: scheme %q not allowed", ErrInvalidURL, u.Scheme)
		}
		if u.Host == "" {
			return Source{}, fmt.Errorf("%w: missing host", ErrInvalidURL)
		}
		repoPath = u.Path
	}

	name := strings.TrimSuffix(path.Base(strings.TrimRight(repoPath, "/")), ".git")
	if name == "" || name == "." || name == "/" {
		return Source{}, fmt.Errorf("%w: no repository name in %q", ErrInvalidURL, raw)
	}

	return Source{URL: raw, Name: sanitize.PathSegment(name)}, nil
}

func isHTTP(rawURL string) bool {
	lower := strings.ToLower(rawURL)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}
