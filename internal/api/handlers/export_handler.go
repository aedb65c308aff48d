package handlers

import (
	"context"
	"net/http"

	"github.com/isdelr/ender-monitor-be/internal/services"
)

// ExportHandler serves whole-history downloads.
type ExportHandler struct {
	service services.ExportServiceProvider
}

// NewExportHandler creates a new ExportHandler.
func NewExportHandler(service services.ExportServiceProvider) *ExportHandler {
	return &ExportHandler{service: service}
}

func (h *ExportHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, h.service.ExportMetrics, "application/json", "metrics.json")
}

func (h *ExportHandler) Logs(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, h.service.ExportLogs, "application/json", "logs.json")
}

func (h *ExportHandler) MetricsCSV(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, h.service.ExportMetricsCSV, "text/csv", "metrics.csv")
}

// serve renders the export completely before sending any header so a
// failed export never produces a partial file.
func (h *ExportHandler) serve(w http.ResponseWriter, r *http.Request, render func(context.Context) ([]byte, error), contentType, filename string) {
	body, err := render(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to export "+filename, err)
		return
	}
	respondAttachment(w, contentType, filename, body)
}
