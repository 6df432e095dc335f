package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

const statusStreamPath = "/api/v1/status/stream"

// maxEventSize bounds one status event; metadata can carry a long
// language histogram.
const maxEventSize = 1 << 20

var (
	errStreamClosed = errors.New("status stream closed before the run finished")
	errRunReset     = errors.New("run was reset")
)

// watchStatus reads status events until fn returns true. The request has
// no client timeout; it ends with ctx, fn or the server.
func (c *client) watchStatus(ctx context.Context, fn func(StatusResponse) bool) error {
	url := c.baseURL + statusStreamPath
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	stream := &http.Client{Transport: c.http.Transport}
	resp, err := stream.Do(req)
	if err != nil {
		return fmt.Errorf("failed to open status stream at %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return readAPIError(resp)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxEventSize)

	var data strings.Builder
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if data.Len() == 0 {
				continue
			}
			var st StatusResponse
			if err := json.Unmarshal([]byte(data.String()), &st); err != nil {
				return fmt.Errorf("failed to decode status event: %w", err)
			}
			data.Reset()
			if fn(st) {
				return nil
			}
		case strings.HasPrefix(line, "data:"):
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read status stream: %w", err)
	}
	return errStreamClosed
}

// runOutcome reports whether st ends the run started as runID, and how.
func runOutcome(runID string, st StatusResponse) (bool, error) {
	switch {
	case st.Status == statusIdle:
		return true, errRunReset
	case runID != "" && st.RunID != "" && st.RunID != runID:
		return true, fmt.Errorf("run %s was replaced by run %s", runID, st.RunID)
	case st.Status == statusReady:
		return true, nil
	case st.Status == statusError:
		return true, fmt.Errorf("processing failed: %s", st.Message)
	}
	return false, nil
}

func progressLine(st StatusResponse) string {
	return fmt.Sprintf("[%3.0f%%] %s", st.Progress*100, st.Message)
}

// waitForRun follows the run until it finishes. Terminals get a progress
// bar; pipes and files get one line per change.
func waitForRun(ctx context.Context, c *client, out io.Writer, in io.Reader, runID string) error {
	if isTTY(out) {
		return waitWithProgressBar(ctx, c, out, in, runID)
	}
	return waitWithLines(ctx, c, out, runID)
}

func waitWithLines(ctx context.Context, c *client, out io.Writer, runID string) error {
	var (
		last   string
		result error
	)
	err := c.watchStatus(ctx, func(st StatusResponse) bool {
		if line := progressLine(st); line != last {
			fmt.Fprintln(out, line)
			last = line
		}
		done, err := runOutcome(runID, st)
		result = err
		return done
	})
	if err != nil {
		return err
	}
	return result
}

func isTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
