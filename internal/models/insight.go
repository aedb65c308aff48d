package models

// Anomaly is the verdict of the anomaly detector for the latest tick.
type Anomaly struct {
	Anomaly bool    `json:"anomaly"`
	Score   float64 `json:"score"`
}

// Optimization is a suggestion from the optimizer for the latest tick.
type Optimization struct {
	Suggestion string  `json:"suggestion"`
	Impact     float64 `json:"impact"`
}
