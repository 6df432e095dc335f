package main

import (
	"bytes"
	"errors"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProgressModel_Init(t *testing.T) {
	m := newProgressModel("run-1")
	assert.Nil(t, m.Init())
	assert.Contains(t, m.View(), "waiting for status")
}

func TestProgressModel_Update_Status(t *testing.T) {
	m := newProgressModel("run-1")

	updated, cmd := m.Update(statusMsg{Status: "indexing", Message: "Creating embeddings for 1,024 code chunks...", Progress: 0.7, RunID: "run-1"})
	m = updated.(progressModel)
	assert.Nil(t, cmd)
	assert.False(t, m.done)

	view := m.View()
	assert.Contains(t, view, "run run-1")
	assert.Contains(t, view, "70%")
	assert.Contains(t, view, "Creating embeddings for 1,024 code chunks...")
	assert.Contains(t, view, "q: stop watching")
}

func TestProgressModel_Update_Terminal(t *testing.T) {
	tests := []struct {
		name    string
		msg     statusMsg
		wantErr string
	}{
		{name: "ready", msg: statusMsg{Status: statusReady, Message: "ready", Progress: 1, RunID: "run-1"}},
		{name: "error", msg: statusMsg{Status: statusError, Message: "clone failed", RunID: "run-1"}, wantErr: "processing failed: clone failed"},
		{name: "reset", msg: statusMsg{Status: statusIdle}, wantErr: errRunReset.Error()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			updated, cmd := newProgressModel("run-1").Update(tt.msg)
			m := updated.(progressModel)

			assert.True(t, m.done)
			assert.NotNil(t, cmd)
			if tt.wantErr == "" {
				assert.NoError(t, m.err)
			} else {
				assert.EqualError(t, m.err, tt.wantErr)
			}
			assert.NotContains(t, m.View(), "q: stop watching")
		})
	}
}

func TestProgressModel_Update_QuitKey(t *testing.T) {
	m := newProgressModel("run-1")

	updated, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	m = updated.(progressModel)

	assert.True(t, m.done)
	assert.ErrorIs(t, m.err, errDetached)
	assert.NotNil(t, cmd)
}

func TestProgressModel_Update_StreamDone(t *testing.T) {
	t.Run("before the run finished", func(t *testing.T) {
		updated, cmd := newProgressModel("run-1").Update(streamDoneMsg{})
		m := updated.(progressModel)
		assert.ErrorIs(t, m.err, errStreamClosed)
		assert.NotNil(t, cmd)
	})

	t.Run("after the run finished", func(t *testing.T) {
		updated, _ := newProgressModel("run-1").Update(statusMsg{Status: statusReady, RunID: "run-1"})
		updated, cmd := updated.(progressModel).Update(streamDoneMsg{err: errors.New("connection reset")})
		m := updated.(progressModel)
		assert.NoError(t, m.err)
		assert.Nil(t, cmd)
	})
}

func TestProgressModel_Update_WindowSize(t *testing.T) {
	updated, _ := newProgressModel("run-1").Update(tea.WindowSizeMsg{Width: 30, Height: 10})
	assert.Equal(t, 26, updated.(progressModel).bar.Width)

	updated, _ = newProgressModel("run-1").Update(tea.WindowSizeMsg{Width: 200, Height: 10})
	assert.Equal(t, barWidth, updated.(progressModel).bar.Width)

	updated, _ = newProgressModel("run-1").Update(tea.WindowSizeMsg{Width: 5, Height: 10})
	assert.Equal(t, minBarWidth, updated.(progressModel).bar.Width)
}

func TestIsTTY(t *testing.T) {
	assert.False(t, isTTY(&bytes.Buffer{}))
	assert.False(t, isTTY(nil))
}

func TestRunOutcome(t *testing.T) {
	done, err := runOutcome("run-1", StatusResponse{Status: "cloning", RunID: "run-1"})
	assert.False(t, done)
	require.NoError(t, err)

	done, err = runOutcome("run-1", StatusResponse{Status: statusReady, RunID: "run-1"})
	assert.True(t, done)
	require.NoError(t, err)

	// Servers that do not report run ids are trusted.
	done, err = runOutcome("run-1", StatusResponse{Status: statusReady})
	assert.True(t, done)
	require.NoError(t, err)
}
