package ignore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestParseProject_DefaultPatterns(t *testing.T) {
	root := t.TempDir()

	m, err := NewParser(DefaultPatterns).ParseProject(root)
	require.NoError(t, err)

	assert.True(t, m.Match(".git", true))
	assert.True(t, m.Match("web/node_modules", true))
	assert.True(t, m.Match("pkg/__pycache__", true))
	assert.False(t, m.Match("src", true))
	assert.False(t, m.Match("main.go", false))
	assert.False(t, m.Match(".", true))
}

func TestParseProject_Gitignore(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, ".gitignore", "# comment\n*.log\n/secrets/\n!keep.log\n")
	writeFile(t, root, "sub/.gitignore", "generated.py\n")

	m, err := NewParser(nil).ParseProject(root)
	require.NoError(t, err)

	tests := []struct {
		path  string
		isDir bool
		want  bool
	}{
		{"debug.log", false, true},
		{"nested/dir/app.log", false, true},
		{"keep.log", false, false},
		{"secrets", true, true},
		{"other/secrets", true, false},
		{"sub/generated.py", false, true},
		{"generated.py", false, false},
		{"main.py", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, m.Match(tt.path, tt.isDir))
		})
	}
}

func TestParseProject_ProjectCanReinclude(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, ".gitignore", "!build/\n")

	m, err := NewParser([]string{"build/"}).ParseProject(root)
	require.NoError(t, err)
	assert.False(t, m.Match("build", true))
}

func TestParseLine(t *testing.T) {
	assert.Equal(t, "", parseLine("   "))
	assert.Equal(t, "", parseLine("# note"))
	assert.Equal(t, "*.tmp", parseLine("*.tmp  "))
}

func TestParser_Default(t *testing.T) {
	m := NewParser(DefaultPatterns).Default()

	assert.True(t, m.Match(".git", true))
	assert.True(t, m.Match("pkg/node_modules", true))
	assert.False(t, m.Match("main.go", false))
}
