package websocket

import "encoding/json"

// Live event names.
const (
	EventMetrics      = "metrics"
	EventLog          = "log"
	EventAlert        = "alert"
	EventDbStats      = "db_stats"
	EventAnomaly      = "anomaly"
	EventOptimization = "optimization"
)

// Message defines the structure for websocket messages.
type Message struct {
	Event   string `json:"event"`
	Payload any    `json:"payload"`
}

// Encode renders a message the way every subscriber receives it.
func Encode(event string, payload any) ([]byte, error) {
	return json.Marshal(Message{Event: event, Payload: payload})
}
