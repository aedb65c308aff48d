package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"iter"
	"time"

	"github.com/google/uuid"
	"github.com/isdelr/ender-monitor-be/internal/database"
	"github.com/isdelr/ender-monitor-be/internal/models"
)

const (
	collectionMetrics = "metrics"
	collectionLogs    = "logs"
)

// EventServiceProvider defines the interface for the event store that keeps
// metric and log documents.
type EventServiceProvider interface {
	InsertMetric(ctx context.Context, m *models.Metric) error
	InsertLog(ctx context.Context, l *models.Log) error
	// LatestMetrics returns at most n metrics, newest first.
	LatestMetrics(ctx context.Context, n int) ([]models.Metric, error)
	// LatestLogs returns at most n logs, newest first.
	LatestLogs(ctx context.Context, n int) ([]models.Log, error)
	// AllMetrics streams every metric, oldest first. Each call starts over.
	AllMetrics(ctx context.Context) iter.Seq2[models.Metric, error]
	// AllLogs streams every log, oldest first. Each call starts over.
	AllLogs(ctx context.Context) iter.Seq2[models.Log, error]
	Close() error
}

// SQLEventService keeps event documents as JSON in per-collection tables.
type SQLEventService struct {
	db *sql.DB
}

// NewSQLEventService creates a new SQLEventService and migrates its tables.
func NewSQLEventService(db *sql.DB) (*SQLEventService, error) {
	if err := database.MigrateEvents(db, collectionMetrics, collectionLogs); err != nil {
		return nil, err
	}
	return &SQLEventService{db: db}, nil
}

// InsertMetric stores a metric document, assigning its ID and normalizing its timestamp.
func (s *SQLEventService) InsertMetric(ctx context.Context, m *models.Metric) error {
	prepareMetric(m)
	return eventsErr("insert metric", s.insert(ctx, collectionMetrics, m.ID, m.Timestamp, m))
}

// InsertLog stores a log document, assigning its ID and normalizing its timestamp.
func (s *SQLEventService) InsertLog(ctx context.Context, l *models.Log) error {
	prepareLog(l)
	return eventsErr("insert log", s.insert(ctx, collectionLogs, l.ID, l.Timestamp, l))
}

// LatestMetrics retrieves the most recent metrics from the database.
func (s *SQLEventService) LatestMetrics(ctx context.Context, n int) ([]models.Metric, error) {
	out, err := latestDocs[models.Metric](ctx, s.db, collectionMetrics, n)
	return out, eventsErr("latest metrics", err)
}

// LatestLogs retrieves the most recent logs from the database.
func (s *SQLEventService) LatestLogs(ctx context.Context, n int) ([]models.Log, error) {
	out, err := latestDocs[models.Log](ctx, s.db, collectionLogs, n)
	return out, eventsErr("latest logs", err)
}

func (s *SQLEventService) AllMetrics(ctx context.Context) iter.Seq2[models.Metric, error] {
	return allDocs[models.Metric](ctx, s.db, collectionMetrics)
}

func (s *SQLEventService) AllLogs(ctx context.Context) iter.Seq2[models.Log, error] {
	return allDocs[models.Log](ctx, s.db, collectionLogs)
}

func (s *SQLEventService) Close() error {
	return s.db.Close()
}

func (s *SQLEventService) insert(ctx context.Context, collection, id string, ts time.Time, doc any) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		fmt.Sprintf("INSERT INTO %s (id, timestamp, document) VALUES (?, ?, ?)", collection),
		id, ts, string(data))
	return err
}

func latestDocs[T any](ctx context.Context, db *sql.DB, collection string, n int) ([]T, error) {
	out := make([]T, 0, max(n, 0))
	if n <= 0 {
		return out, nil
	}
	rows, err := db.QueryContext(ctx,
		fmt.Sprintf("SELECT document FROM %s ORDER BY timestamp DESC, seq DESC LIMIT ?", collection), n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		var v T
		if err := json.Unmarshal([]byte(doc), &v); err != nil {
			return nil, fmt.Errorf("decode document: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func allDocs[T any](ctx context.Context, db *sql.DB, collection string) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		var zero T
		rows, err := db.QueryContext(ctx,
			fmt.Sprintf("SELECT document FROM %s ORDER BY timestamp ASC, seq ASC", collection))
		if err != nil {
			yield(zero, eventsErr("scan "+collection, err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			var doc string
			if err := rows.Scan(&doc); err != nil {
				yield(zero, eventsErr("scan "+collection, err))
				return
			}
			var v T
			if err := json.Unmarshal([]byte(doc), &v); err != nil {
				yield(zero, eventsErr("scan "+collection, fmt.Errorf("decode document: %w", err)))
				return
			}
			if !yield(v, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(zero, eventsErr("scan "+collection, err))
		}
	}
}

func prepareMetric(m *models.Metric) {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	m.Timestamp = stamp(m.Timestamp)
}

func prepareLog(l *models.Log) {
	if l.ID == "" {
		l.ID = uuid.New().String()
	}
	l.Timestamp = stamp(l.Timestamp)
	l.Normalize()
}

// stamp converts a timestamp to the stored form: UTC, millisecond precision.
func stamp(t time.Time) time.Time {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Truncate(time.Millisecond)
}
