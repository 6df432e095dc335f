package repository

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/codematrix/internal/ignore"
	"github.com/fyrsmithlabs/codematrix/internal/index"
)

func writeFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
}

func newTestLoader(t *testing.T, cfg LoaderConfig) *LangchainLoader {
	t.Helper()
	if cfg.ChunkSize == 0 {
		cfg.ChunkSize = 2000
		cfg.ChunkOverlap = 200
	}
	l, err := NewLangchainLoader(cfg, nil)
	require.NoError(t, err)
	return l
}

func sources(chunks []index.Chunk) []string {
	var out []string
	seen := map[string]bool{}
	for _, c := range chunks {
		if !seen[c.Source] {
			seen[c.Source] = true
			out = append(out, c.Source)
		}
	}
	return out
}

func TestLangchainLoader_Selection(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"app.py":                "from flask import Flask\napp = Flask(__name__)\n",
		"README.md":             "# Demo\n",
		"pkg/main.go":           "package main\n\nfunc main() {}\n",
		"static/logo.png":       "\x89PNG",
		"static/Site.CSS":       "body { margin: 0 }\n",
		"node_modules/lib/x.js": "module.exports = 1\n",
		"generated/out.ts":      "export const x = 1\n",
		".gitignore":            "generated/\n",
		"blank.py":              "   \n\n",
		"binary.py":             "\xff\xfe\x00bad",
		"notes.txt":             "plain text\n",
		"big.js":                strings.Repeat("a", 512),
	})

	matcher, err := ignore.NewParser(ignore.DefaultPatterns).ParseProject(root)
	require.NoError(t, err)

	l := newTestLoader(t, LoaderConfig{MaxFileSize: 256})
	chunks, stats, err := l.load(context.Background(), root, matcher)
	require.NoError(t, err)

	assert.Equal(t, []string{"README.md", "app.py", "pkg/main.go", "static/Site.CSS"}, sources(chunks))
	assert.Equal(t, 4, stats.Files)
	assert.Equal(t, 1, stats.Oversized)
	assert.Equal(t, 1, stats.Binary)
}

func TestLangchainLoader_NilMatcherUsesDefaults(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"app.py":          "print(1)\n",
		"vendor/dep/x.go": "package dep\n",
		".git/hooks/a.py": "print(2)\n",
	})

	chunks, err := newTestLoader(t, LoaderConfig{}).Load(context.Background(), root, nil)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "app.py", chunks[0].Source)
}

func TestLangchainLoader_Splits(t *testing.T) {
	root := t.TempDir()
	var b strings.Builder
	for i := 0; i < 60; i++ {
		b.WriteString("def handler_")
		b.WriteString(strings.Repeat("x", 20))
		b.WriteString("(): pass\n")
	}
	writeFiles(t, root, map[string]string{"views.py": b.String()})

	l := newTestLoader(t, LoaderConfig{ChunkSize: 200, ChunkOverlap: 20})
	chunks, err := l.Load(context.Background(), root, nil)
	require.NoError(t, err)

	require.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		assert.Equal(t, "views.py", c.Source)
		assert.LessOrEqual(t, utf8.RuneCountInString(c.Text), 200)
		assert.NotEmpty(t, strings.TrimSpace(c.Text))
	}
}

func TestLangchainLoader_ExtensionNormalization(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{"a.RS": "fn main() {}\n", "b.rb": "puts 1\n"})

	l := newTestLoader(t, LoaderConfig{Extensions: []string{"rs", " "}})
	chunks, err := l.Load(context.Background(), root, nil)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "a.RS", chunks[0].Source)
}

func TestLangchainLoader_Cancelled(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{"a.py": "x = 1\n"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newTestLoader(t, LoaderConfig{}).Load(ctx, root, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLangchainLoader_MissingRoot(t *testing.T) {
	_, err := newTestLoader(t, LoaderConfig{}).Load(context.Background(), filepath.Join(t.TempDir(), "missing"), nil)
	assert.Error(t, err)
}

func TestNewLangchainLoader_Validation(t *testing.T) {
	tests := []struct {
		name string
		cfg  LoaderConfig
	}{
		{"zero chunk size", LoaderConfig{ChunkSize: 0}},
		{"overlap too large", LoaderConfig{ChunkSize: 100, ChunkOverlap: 100}},
		{"negative overlap", LoaderConfig{ChunkSize: 100, ChunkOverlap: -1}},
		{"file size over cap", LoaderConfig{ChunkSize: 100, MaxFileSize: 11 << 20}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewLangchainLoader(tt.cfg, nil)
			assert.Error(t, err)
		})
	}
}

func TestValidatePath(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "f.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	got, err := validatePath(dir + "/./")
	require.NoError(t, err)
	assert.Equal(t, filepath.Clean(dir), got)

	_, err = validatePath("")
	assert.Error(t, err)
	_, err = validatePath(file)
	assert.Error(t, err)
	_, err = validatePath(filepath.Join(dir, "nope"))
	assert.Error(t, err)
}
