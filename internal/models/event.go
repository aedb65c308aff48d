package models

import "time"

// Log levels.
const (
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

// Log is a single log line recorded alongside every sampled metric.
type Log struct {
	ID        string         `json:"id"`
	Message   string         `json:"message"`
	Level     string         `json:"level"` // e.g., "info", "warn", "error"
	Timestamp time.Time      `json:"timestamp"`
	Context   map[string]any `json:"context,omitempty"`
}

// Normalize fills the defaults a stored log line must carry.
func (l *Log) Normalize() {
	switch l.Level {
	case LevelInfo, LevelWarn, LevelError:
	default:
		l.Level = LevelInfo
	}
}

// Alert is a live-only notification raised when a threshold condition holds.
type Alert struct {
	Type  string    `json:"type"` // e.g., "High CPU"
	Value float64   `json:"value"`
	Time  time.Time `json:"time"`
}
