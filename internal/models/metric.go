package models

import "time"

// Metric is one system reading as stored in the event store.
type Metric struct {
	ID        string    `json:"id"`
	CPU       float64   `json:"cpu"` // percent, 0-100
	Mem       float64   `json:"mem"` // GB
	Timestamp time.Time `json:"timestamp"`
}

// DbStat is one row of the db_stats table.
type DbStat struct {
	ID            int64     `json:"id"`
	Timestamp     time.Time `json:"timestamp"`
	Connections   int       `json:"connections"`
	QueryCount    int       `json:"query_count"`
	CacheHitRatio float64   `json:"cache_hit_ratio"`
}

// Reading is the raw sample taken on a single tick, before it is split into
// the entities above.
type Reading struct {
	CPU           float64
	Mem           float64
	Connections   int
	QueryCount    int
	CacheHitRatio float64
	Timestamp     time.Time
}
