package state

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/codematrix/internal/metadata"
)

func TestFileStore_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.json")
	store := NewFileStore(path)

	_, ok, err := store.Load()
	require.NoError(t, err)
	assert.False(t, ok)

	want := State{
		Status:       StatusReady,
		Message:      "indexed",
		Progress:     1,
		RepoID:       Set("flask"),
		RepoLocation: Set("/repos/flask"),
		Metadata:     &metadata.RepoMetadata{TotalFiles: 3, Extensions: map[string]int{".py": 3}},
		LastUpdated:  time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, store.Save(want))

	got, ok, err := store.Load()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, want.Status, got.Status)
	assert.Equal(t, "flask", got.ActiveRepoID())
	assert.Equal(t, 3, got.Metadata.Extensions[".py"])
	assert.True(t, want.LastUpdated.Equal(got.LastUpdated))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files are cleaned up")
}

func TestFileStore_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, _, err := NewFileStore(path).Load()
	assert.Error(t, err)
}

func TestTracker_WithFileStoreAcrossRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")

	first := NewTracker(WithStore(NewFileStore(path)))
	_, ok := first.TryBegin(Patch{Status: Set(StatusCloning), RepoID: Set("flask"), RunID: Set("run-1")})
	require.True(t, ok)

	second := NewTracker(WithStore(NewFileStore(path)))
	s := second.Snapshot()
	assert.Equal(t, StatusError, s.Status)
	assert.Equal(t, InterruptedMessage, s.Message)
	assert.False(t, s.IsProcessing)
	assert.Equal(t, "flask", s.ActiveRepoID())
}
