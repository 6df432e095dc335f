package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/codematrix/internal/state"
)

const (
	statusStreamRoute = "/api/v1/status/stream"

	// statusEvent is the SSE event name carrying a StatusResponse.
	statusEvent = "status"
)

// streamKeepAlive is how often an idle stream sends a comment line so
// proxies do not close it.
var streamKeepAlive = 15 * time.Second

// handleStatusStream sends the current status and then every change as
// server-sent events until the client disconnects. Snapshots are dropped
// for clients that cannot keep up; the next event carries the latest state.
func (s *Server) handleStatusStream(c echo.Context) error {
	updates, unsubscribe := s.deps.Tracker.Subscribe()
	defer unsubscribe()

	ctx := c.Request().Context()
	defer s.metrics.streamOpened(ctx)()

	w := c.Response()
	w.Header().Set(echo.HeaderContentType, "text/event-stream")
	w.Header().Set(echo.HeaderCacheControl, "no-cache")
	w.Header().Set(echo.HeaderConnection, "keep-alive")
	w.WriteHeader(http.StatusOK)

	if err := writeStatusEvent(w, s.deps.Tracker.Snapshot()); err != nil {
		return nil
	}

	keepAlive := time.NewTicker(streamKeepAlive)
	defer keepAlive.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case snap, ok := <-updates:
			if !ok {
				return nil
			}
			if err := writeStatusEvent(w, snap); err != nil {
				s.logger.Debug("status stream closed", zap.Error(err))
				return nil
			}
		case <-keepAlive.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return nil
			}
			w.Flush()
		}
	}
}

func writeStatusEvent(w *echo.Response, snap state.State) error {
	data, err := json.Marshal(newStatusResponse(snap))
	if err != nil {
		return fmt.Errorf("encoding status: %w", err)
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", statusEvent, data); err != nil {
		return err
	}
	w.Flush()
	return nil
}
