package metadata

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestCollect(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "README.md", "# demo\n")
	writeFile(t, root, "requirements.txt", "flask\n")
	writeFile(t, root, "app/main.py", "import flask\n\napp = flask.Flask(__name__)\n")
	writeFile(t, root, "app/util.py", "def f():\n    return 1")
	writeFile(t, root, "web/index.js", "console.log('hi')\n")
	writeFile(t, root, "logo.png", "\x89PNG")
	writeFile(t, root, "node_modules/dep/index.js", "module.exports = 1\n")

	m, err := Collect(context.Background(), root, Options{CodeExtensions: []string{".py", ".JS"}})
	require.NoError(t, err)

	assert.Equal(t, 6, m.TotalFiles, "node_modules is skipped")
	assert.Equal(t, 3, m.CodeFiles)
	assert.Equal(t, 3+2+1, m.TotalLines)
	assert.Equal(t, map[string]int{".md": 1, ".txt": 1, ".py": 2, ".js": 1, ".png": 1}, m.Extensions)
	assert.Equal(t, 2, m.Languages["Python"])
	assert.Equal(t, 1, m.Languages["JavaScript"])
	assert.True(t, m.HasReadme)
	assert.True(t, m.HasRequirements)
	assert.False(t, m.HasPackageManifest)
	assert.Empty(t, m.HeadCommit, "not a git repository")
}

func TestCollect_PresenceFlagsCaseInsensitive(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "ReadMe.RST", "x")
	writeFile(t, root, "Cargo.toml", "[package]")

	m, err := Collect(context.Background(), root, Options{})
	require.NoError(t, err)

	assert.True(t, m.HasReadme)
	assert.True(t, m.HasPackageManifest)
	assert.False(t, m.HasRequirements)
}

func TestCollect_UnreadableFileSkipped(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root can read any file")
	}
	root := t.TempDir()
	writeFile(t, root, "ok.go", "package a\n")
	writeFile(t, root, "locked.go", "package b\n")
	require.NoError(t, os.Chmod(filepath.Join(root, "locked.go"), 0o000))

	m, err := Collect(context.Background(), root, Options{CodeExtensions: []string{".go"}})
	require.NoError(t, err)

	assert.Equal(t, 2, m.CodeFiles)
	assert.Equal(t, 1, m.TotalLines)
	assert.Equal(t, 1, m.SkippedFiles)
}

func TestCollect_MissingRoot(t *testing.T) {
	_, err := Collect(context.Background(), filepath.Join(t.TempDir(), "absent"), Options{})
	assert.Error(t, err)
}

func TestCollect_GitHead(t *testing.T) {
	root := t.TempDir()
	repo, err := git.PlainInit(root, false)
	require.NoError(t, err)
	writeFile(t, root, "main.go", "package main\n")

	wt, err := repo.Worktree()
	require.NoError(t, err)
	_, err = wt.Add("main.go")
	require.NoError(t, err)
	hash, err := wt.Commit("initial", &git.CommitOptions{
		Author: &object.Signature{Name: "test", Email: "test@example.com", When: time.Now()},
	})
	require.NoError(t, err)

	m, err := Collect(context.Background(), root, Options{CodeExtensions: []string{".go"}})
	require.NoError(t, err)

	assert.Equal(t, hash.String(), m.HeadCommit)
	assert.Equal(t, "master", m.Branch)
	assert.Equal(t, 1, m.TotalFiles, ".git is skipped")
}

func TestCountLines(t *testing.T) {
	assert.Equal(t, 0, countLines(nil))
	assert.Equal(t, 1, countLines([]byte("a")))
	assert.Equal(t, 1, countLines([]byte("a\n")))
	assert.Equal(t, 2, countLines([]byte("a\nb")))
}
