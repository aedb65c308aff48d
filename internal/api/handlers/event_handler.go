package handlers

import (
	"net/http"
	"strconv"

	"github.com/isdelr/ender-monitor-be/internal/services"
)

// maxLogLimit caps the ?limit= parameter of the log listing.
const maxLogLimit = 500

// EventHandler handles HTTP requests for the latest metrics, logs and db stats.
type EventHandler struct {
	service services.ExportServiceProvider
}

// NewEventHandler creates a new EventHandler.
func NewEventHandler(service services.ExportServiceProvider) *EventHandler {
	return &EventHandler{service: service}
}

// GetLatestMetric returns the newest metric, or a zero reading when none exist.
func (h *EventHandler) GetLatestMetric(w http.ResponseWriter, r *http.Request) {
	metric, err := h.service.LatestMetric(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to retrieve metrics", err)
		return
	}
	respondJSON(w, http.StatusOK, metric)
}

// GetLogs returns the latest log lines, newest first.
func (h *EventHandler) GetLogs(w http.ResponseWriter, r *http.Request) {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		limit = services.DefaultLogLimit
	}
	limit = min(limit, maxLogLimit)

	logs, err := h.service.LatestLogs(r.Context(), limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to retrieve logs", err)
		return
	}
	respondJSON(w, http.StatusOK, logs)
}

// GetDbStats returns the latest db_stats rows, newest first.
func (h *EventHandler) GetDbStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.LatestDbStats(r.Context(), services.DefaultStatsLimit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to retrieve db stats", err)
		return
	}
	respondJSON(w, http.StatusOK, stats)
}
