package handlers

import (
	"net/http"
	"time"
)

// HealthHandler reports process liveness.
type HealthHandler struct {
	startedAt time.Time
}

// NewHealthHandler creates a health check handler.
func NewHealthHandler() *HealthHandler {
	return &HealthHandler{startedAt: time.Now()}
}

// Check responds with service status and uptime.
func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
	})
}
