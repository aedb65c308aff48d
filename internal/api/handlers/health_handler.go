package handlers

import (
	"net/http"
)

type subscriberCounter interface {
	ClientCount() int
}

type healthResponse struct {
	Status      string `json:"status"`
	Subscribers int    `json:"subscribers"`
}

// Health reports liveness and the number of live subscribers.
func Health(hub subscriberCounter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, healthResponse{Status: "ok", Subscribers: hub.ClientCount()})
	}
}
