package services

import (
	"context"
	"errors"
	"iter"
	"path/filepath"
	"testing"
	"time"

	"github.com/isdelr/ender-monitor-be/internal/database"
	"github.com/isdelr/ender-monitor-be/internal/models"
)

var base = time.Date(2026, 2, 21, 12, 0, 0, 0, time.UTC)

func newTestEvents(t *testing.T) *SQLEventService {
	t.Helper()
	db, err := database.New(database.SQLite, filepath.Join(t.TempDir(), "events.db"))
	if err != nil {
		t.Fatalf("open events db: %v", err)
	}
	svc, err := NewSQLEventService(db)
	if err != nil {
		t.Fatalf("migrate events db: %v", err)
	}
	t.Cleanup(func() { _ = svc.Close() })
	return svc
}

func newTestStats(t *testing.T) *StatsService {
	t.Helper()
	db, err := database.New(database.SQLite, filepath.Join(t.TempDir(), "stats.db"))
	if err != nil {
		t.Fatalf("open stats db: %v", err)
	}
	if err := database.Migrate(db, database.SQLite); err != nil {
		t.Fatalf("migrate stats db: %v", err)
	}
	svc := NewStatsService(db)
	t.Cleanup(func() { _ = svc.Close() })
	return svc
}

func seedMetrics(t *testing.T, events EventServiceProvider, cpus ...float64) []models.Metric {
	t.Helper()
	out := make([]models.Metric, 0, len(cpus))
	for i, cpu := range cpus {
		m := models.Metric{CPU: cpu, Mem: 8.25, Timestamp: base.Add(time.Duration(i) * time.Second)}
		if err := events.InsertMetric(context.Background(), &m); err != nil {
			t.Fatalf("insert metric %d: %v", i, err)
		}
		out = append(out, m)
	}
	return out
}

// brokenEvents fails every operation.
type brokenEvents struct{}

var errBackendDown = errors.New("connection refused")

func (brokenEvents) InsertMetric(context.Context, *models.Metric) error {
	return eventsErr("insert metric", errBackendDown)
}
func (brokenEvents) InsertLog(context.Context, *models.Log) error {
	return eventsErr("insert log", errBackendDown)
}
func (brokenEvents) LatestMetrics(context.Context, int) ([]models.Metric, error) {
	return nil, eventsErr("latest metrics", errBackendDown)
}
func (brokenEvents) LatestLogs(context.Context, int) ([]models.Log, error) {
	return nil, eventsErr("latest logs", errBackendDown)
}
func (brokenEvents) AllMetrics(context.Context) iter.Seq2[models.Metric, error] {
	return func(yield func(models.Metric, error) bool) {
		yield(models.Metric{}, eventsErr("scan metrics", errBackendDown))
	}
}
func (brokenEvents) AllLogs(context.Context) iter.Seq2[models.Log, error] {
	return func(yield func(models.Log, error) bool) {
		yield(models.Log{}, eventsErr("scan logs", errBackendDown))
	}
}
func (brokenEvents) Close() error { return nil }
