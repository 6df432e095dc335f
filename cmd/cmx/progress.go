package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const (
	barWidth    = 50
	minBarWidth = 10
)

// errDetached is returned when the user stops watching. The run keeps
// going on the server.
var errDetached = errors.New("stopped watching; the run continues on the server")

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("0")).
			Background(lipgloss.Color("51")).
			Bold(true).
			Padding(0, 1)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	activeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("51")).
			Bold(true)

	readyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("46")).
			Bold(true)

	failedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)
)

type (
	statusMsg     StatusResponse
	streamDoneMsg struct{ err error }
)

// progressModel renders one pipeline run as a progress bar.
type progressModel struct {
	runID  string
	bar    progress.Model
	status StatusResponse
	seen   bool
	done   bool
	err    error
}

func newProgressModel(runID string) progressModel {
	return progressModel{
		runID: runID,
		bar: progress.New(
			progress.WithGradient("#00ffff", "#00ff00"),
			progress.WithWidth(barWidth),
		),
	}
}

func (m progressModel) Init() tea.Cmd {
	return nil
}

func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			m.done = true
			m.err = errDetached
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.bar.Width = max(min(msg.Width-4, barWidth), minBarWidth)

	case statusMsg:
		m.status = StatusResponse(msg)
		m.seen = true
		if done, err := runOutcome(m.runID, m.status); done {
			m.done = true
			m.err = err
			return m, tea.Quit
		}

	case streamDoneMsg:
		if m.done {
			return m, nil
		}
		m.done = true
		m.err = msg.err
		if m.err == nil {
			m.err = errStreamClosed
		}
		return m, tea.Quit
	}
	return m, nil
}

func (m progressModel) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("codematrix"))
	b.WriteString(" ")
	b.WriteString(dimStyle.Render("run " + m.runID))
	b.WriteString("\n\n")

	if !m.seen {
		b.WriteString(dimStyle.Render("waiting for status..."))
		b.WriteString("\n")
		return b.String()
	}

	b.WriteString(m.bar.ViewAs(m.status.Progress))
	b.WriteString("\n")
	b.WriteString(statusStyle(m.status.Status).Render(m.status.Status))
	b.WriteString(" ")
	b.WriteString(m.status.Message)
	b.WriteString("\n")
	if !m.done {
		b.WriteString(dimStyle.Render("q: stop watching (the run continues)"))
		b.WriteString("\n")
	}
	return b.String()
}

func statusStyle(status string) lipgloss.Style {
	switch status {
	case statusReady:
		return readyStyle
	case statusError:
		return failedStyle
	default:
		return activeStyle
	}
}

// waitWithProgressBar runs the bubbletea program while a goroutine feeds
// it status events from the stream.
func waitWithProgressBar(ctx context.Context, c *client, out io.Writer, in io.Reader, runID string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(newProgressModel(runID),
		tea.WithContext(ctx),
		tea.WithOutput(out),
		tea.WithInput(in),
	)

	go func() {
		err := c.watchStatus(ctx, func(st StatusResponse) bool {
			p.Send(statusMsg(st))
			done, _ := runOutcome(runID, st)
			return done
		})
		p.Send(streamDoneMsg{err: err})
	}()

	final, err := p.Run()
	if err != nil {
		if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("progress display failed: %w", err)
	}
	m, ok := final.(progressModel)
	if !ok {
		return fmt.Errorf("unexpected progress model %T", final)
	}
	return m.err
}
