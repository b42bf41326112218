package handler

import (
	"net/http"
	"time"
)

// FeedClock reports when the feed snapshot was last rebuilt.
type FeedClock interface {
	RefreshedAt() (time.Time, bool)
}

// StatusHandler serves the backend status for dashboards.
type StatusHandler struct {
	Mode      string
	StartedAt time.Time
	Feed      FeedClock
}

// NewStatusHandler creates a StatusHandler for the given runtime mode.
func NewStatusHandler(mode string, startedAt time.Time, feed FeedClock) *StatusHandler {
	return &StatusHandler{Mode: mode, StartedAt: startedAt, Feed: feed}
}

// GetStatus responds with the current backend mode, uptime, and feed age.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"mode":          h.Mode,
		"uptimeSeconds": int64(time.Since(h.StartedAt).Seconds()),
	}
	if h.Feed != nil {
		if at, ok := h.Feed.RefreshedAt(); ok {
			resp["feedRefreshedAt"] = at.UTC().Format(time.RFC3339)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}
