package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"iter"
	"strconv"
	"time"

	"github.com/isdelr/ender-monitor-be/internal/models"
)

// Default sizes of the latest-N queries.
const (
	DefaultLogLimit   = 50
	DefaultStatsLimit = 10
)

// MetricsCSVHeader is the exact column set of the CSV export.
var MetricsCSVHeader = []string{"cpu", "mem", "timestamp"}

// ExportServiceProvider defines the read-only query and export surface.
type ExportServiceProvider interface {
	LatestMetric(ctx context.Context) (models.Metric, error)
	LatestLogs(ctx context.Context, n int) ([]models.Log, error)
	LatestDbStats(ctx context.Context, n int) ([]models.DbStat, error)
	ExportMetrics(ctx context.Context) ([]byte, error)
	ExportLogs(ctx context.Context) ([]byte, error)
	ExportMetricsCSV(ctx context.Context) ([]byte, error)
}

// ExportService answers latest queries and renders exports from both stores.
type ExportService struct {
	events EventServiceProvider
	stats  StatsServiceProvider
	now    func() time.Time
}

// NewExportService creates a new ExportService.
func NewExportService(events EventServiceProvider, stats StatsServiceProvider) *ExportService {
	return &ExportService{events: events, stats: stats, now: time.Now}
}

// LatestMetric returns the newest metric, or a zero reading stamped now when
// nothing has been stored yet.
func (s *ExportService) LatestMetric(ctx context.Context) (models.Metric, error) {
	latest, err := s.events.LatestMetrics(ctx, 1)
	if err != nil {
		return models.Metric{}, err
	}
	if len(latest) == 0 {
		return models.Metric{CPU: 0, Mem: 0, Timestamp: s.now().UTC()}, nil
	}
	return latest[0], nil
}

func (s *ExportService) LatestLogs(ctx context.Context, n int) ([]models.Log, error) {
	return s.events.LatestLogs(ctx, n)
}

func (s *ExportService) LatestDbStats(ctx context.Context, n int) ([]models.DbStat, error) {
	return s.stats.LatestStats(ctx, n)
}

// ExportMetrics renders every metric, oldest first, as an indented JSON array.
func (s *ExportService) ExportMetrics(ctx context.Context) ([]byte, error) {
	metrics, err := collect(s.events.AllMetrics(ctx))
	if err != nil {
		return nil, err
	}
	return encodeJSON(metrics)
}

// ExportLogs renders every log, oldest first, as an indented JSON array.
func (s *ExportService) ExportLogs(ctx context.Context) ([]byte, error) {
	logs, err := collect(s.events.AllLogs(ctx))
	if err != nil {
		return nil, err
	}
	return encodeJSON(logs)
}

// ExportMetricsCSV renders every metric, oldest first, as CSV with a header row.
func (s *ExportService) ExportMetricsCSV(ctx context.Context) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(MetricsCSVHeader); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEncoding, err)
	}

	for m, err := range s.events.AllMetrics(ctx) {
		if err != nil {
			return nil, err
		}
		record := []string{
			strconv.FormatFloat(m.CPU, 'f', -1, 64),
			strconv.FormatFloat(m.Mem, 'f', -1, 64),
			m.Timestamp.UTC().Format(time.RFC3339Nano),
		}
		if err := w.Write(record); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrEncoding, err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEncoding, err)
	}
	return buf.Bytes(), nil
}

func collect[T any](seq iter.Seq2[T, error]) ([]T, error) {
	out := []T{}
	for v, err := range seq {
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func encodeJSON(v any) ([]byte, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEncoding, err)
	}
	return data, nil
}
