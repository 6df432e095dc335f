// Package ignore decides which repository paths are excluded from indexing,
// combining the repository's own .gitignore files with built-in patterns.
package ignore

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
)

// DefaultPatterns exclude VCS metadata, dependency trees and build output.
var DefaultPatterns = []string{
	".git/",
	".hg/",
	".svn/",
	"node_modules/",
	"vendor/",
	"__pycache__/",
	".venv/",
	"venv/",
	".tox/",
	".idea/",
	".vscode/",
	"dist/",
	"build/",
	"target/",
	".next/",
	"coverage/",
}

// Parser reads gitignore-style rules for a project.
type Parser struct {
	// Patterns are applied before the project's own files, so a project
	// can re-include a path with a "!" rule.
	Patterns []string
}

// NewParser creates a parser with the given built-in patterns.
func NewParser(patterns []string) *Parser {
	return &Parser{Patterns: patterns}
}

// Matcher reports whether a path relative to the project root is ignored.
type Matcher struct {
	m gitignore.Matcher
}

// Default returns a matcher for the built-in patterns only.
func (p *Parser) Default() *Matcher {
	return &Matcher{m: gitignore.NewMatcher(p.builtin())}
}

// ParseProject reads .git/info/exclude and every .gitignore beneath root.
func (p *Parser) ParseProject(root string) (*Matcher, error) {
	ps := p.builtin()

	projectPatterns, err := gitignore.ReadPatterns(osfs.New(root), nil)
	if err != nil {
		return nil, fmt.Errorf("reading ignore files in %s: %w", root, err)
	}
	ps = append(ps, projectPatterns...)

	return &Matcher{m: gitignore.NewMatcher(ps)}, nil
}

func (p *Parser) builtin() []gitignore.Pattern {
	ps := make([]gitignore.Pattern, 0, len(p.Patterns))
	for _, line := range p.Patterns {
		if pat := parseLine(line); pat != "" {
			ps = append(ps, gitignore.ParsePattern(pat, nil))
		}
	}
	return ps
}

// Match reports whether rel (slash or OS separated, relative to the root)
// is ignored.
func (m *Matcher) Match(rel string, isDir bool) bool {
	rel = filepath.ToSlash(rel)
	if rel == "" || rel == "." {
		return false
	}
	return m.m.Match(strings.Split(rel, "/"), isDir)
}

// parseLine strips comments and blank lines.
func parseLine(line string) string {
	line = strings.TrimRight(line, " \t")
	if line == "" || strings.HasPrefix(line, "#") {
		return ""
	}
	return line
}
