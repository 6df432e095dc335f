package metadata

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/src-d/enry/v2"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/codematrix/internal/ignore"
)

var (
	readmeNames = map[string]bool{
		"readme": true, "readme.md": true, "readme.rst": true, "readme.txt": true,
	}
	requirementsNames = map[string]bool{
		"requirements.txt": true, "pyproject.toml": true, "pipfile": true,
	}
	manifestNames = map[string]bool{
		"package.json": true, "go.mod": true, "cargo.toml": true, "pom.xml": true,
		"build.gradle": true, "composer.json": true, "gemfile": true,
	}
)

// Options controls what Collect counts as code.
type Options struct {
	// CodeExtensions lists extensions (with leading dot) whose lines are
	// counted. Matching is case-insensitive.
	CodeExtensions []string

	// Matcher excludes paths. Nil falls back to the default skip list.
	Matcher *ignore.Matcher

	Logger *zap.Logger
}

// Collect walks root once and summarizes it. Unreadable files are skipped
// and logged; only a failure to walk root itself is returned.
func Collect(ctx context.Context, root string, opts Options) (*RepoMetadata, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	matcher := opts.Matcher
	if matcher == nil {
		matcher = ignore.NewParser(ignore.DefaultPatterns).Default()
	}
	codeExt := make(map[string]bool, len(opts.CodeExtensions))
	for _, e := range opts.CodeExtensions {
		codeExt[strings.ToLower(e)] = true
	}

	m := &RepoMetadata{
		Extensions: make(map[string]int),
		Languages:  make(map[string]int),
	}

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			if path == root {
				return err
			}
			logger.Debug("skipping unreadable entry", zap.String("path", path), zap.Error(err))
			m.SkippedFiles++
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if path == root {
			return nil
		}

		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil
		}
		if matcher.Match(filepath.ToSlash(rel), d.IsDir()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}

		m.TotalFiles++
		name := strings.ToLower(d.Name())
		ext := strings.ToLower(filepath.Ext(name))
		if ext != "" {
			m.Extensions[ext]++
		}
		switch {
		case readmeNames[name]:
			m.HasReadme = true
		case requirementsNames[name]:
			m.HasRequirements = true
		case manifestNames[name]:
			m.HasPackageManifest = true
		}

		if !codeExt[ext] {
			return nil
		}
		m.CodeFiles++

		content, readErr := os.ReadFile(path)
		if readErr != nil {
			logger.Warn("could not read file for metadata", zap.String("path", rel), zap.Error(readErr))
			m.SkippedFiles++
			return nil
		}
		m.TotalBytes += int64(len(content))
		m.TotalLines += countLines(content)
		if lang := enry.GetLanguage(d.Name(), content); lang != "" {
			m.Languages[lang]++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.HeadCommit, m.Branch = gitHead(root, logger)
	return m, nil
}

func countLines(content []byte) int {
	if len(content) == 0 {
		return 0
	}
	n := bytes.Count(content, []byte{'\n'})
	if content[len(content)-1] != '\n' {
		n++
	}
	return n
}

// gitHead reports the checked-out commit and branch. Directories that are
// not git repositories yield empty strings.
func gitHead(root string, logger *zap.Logger) (commit, branch string) {
	repo, err := git.PlainOpen(root)
	if err != nil {
		if !errors.Is(err, git.ErrRepositoryNotExists) {
			logger.Debug("could not open repository", zap.String("path", root), zap.Error(err))
		}
		return "", ""
	}
	head, err := repo.Head()
	if err != nil {
		logger.Debug("repository has no head", zap.String("path", root), zap.Error(err))
		return "", ""
	}
	if head.Name().IsBranch() {
		branch = head.Name().Short()
	}
	return head.Hash().String(), branch
}
