package handlers

import (
	"net/http"

	"github.com/isdelr/ender-monitor-be/internal/insights"
)

// InsightsHandler serves the current anomaly verdict and optimization suggestion.
type InsightsHandler struct {
	current *insights.Current
}

func NewInsightsHandler(current *insights.Current) *InsightsHandler {
	return &InsightsHandler{current: current}
}

func (h *InsightsHandler) GetAnomaly(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.current.Anomaly())
}

func (h *InsightsHandler) GetOptimization(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.current.Optimization())
}
