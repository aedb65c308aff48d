package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"
)

type errorResponse struct {
	Error string `json:"error"`
}

// respondJSON writes v as a JSON body with the given status.
func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

// respondError logs err and answers with a JSON error body.
func respondError(w http.ResponseWriter, status int, msg string, err error) {
	log.Error().Err(err).Int("status", status).Msg(msg)
	respondJSON(w, status, errorResponse{Error: msg + ": " + err.Error()})
}

// respondAttachment writes a fully rendered document as a download.
func respondAttachment(w http.ResponseWriter, contentType, filename string, body []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", "attachment; filename="+filename)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		log.Warn().Err(err).Str("file", filename).Msg("Failed to write export")
	}
}
