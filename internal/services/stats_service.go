package services

import (
	"context"
	"database/sql"
	"iter"

	"github.com/isdelr/ender-monitor-be/internal/models"
)

// StatsServiceProvider defines the interface for the relational db_stats store.
type StatsServiceProvider interface {
	// InsertStat appends a row and returns it with the ID the database assigned.
	InsertStat(ctx context.Context, stat models.DbStat) (models.DbStat, error)
	// LatestStats returns at most n rows, newest first.
	LatestStats(ctx context.Context, n int) ([]models.DbStat, error)
	// AllStats streams every row, oldest first.
	AllStats(ctx context.Context) iter.Seq2[models.DbStat, error]
	Close() error
}

// StatsService provides access to the db_stats table.
type StatsService struct {
	db *sql.DB
}

// NewStatsService creates a new StatsService. The schema must already be migrated.
func NewStatsService(db *sql.DB) *StatsService {
	return &StatsService{db: db}
}

// InsertStat logs a new stats row to the database.
func (s *StatsService) InsertStat(ctx context.Context, stat models.DbStat) (models.DbStat, error) {
	stat.Timestamp = stamp(stat.Timestamp)

	res, err := s.db.ExecContext(ctx,
		"INSERT INTO db_stats (timestamp, connections, query_count, cache_hit_ratio) VALUES (?, ?, ?, ?)",
		stat.Timestamp, stat.Connections, stat.QueryCount, stat.CacheHitRatio)
	if err != nil {
		return models.DbStat{}, statsErr("insert", err)
	}
	if stat.ID, err = res.LastInsertId(); err != nil {
		return models.DbStat{}, statsErr("insert", err)
	}
	return stat, nil
}

// LatestStats retrieves the most recent rows from the database.
func (s *StatsService) LatestStats(ctx context.Context, n int) ([]models.DbStat, error) {
	stats := make([]models.DbStat, 0, max(n, 0))
	if n <= 0 {
		return stats, nil
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, timestamp, connections, query_count, cache_hit_ratio FROM db_stats ORDER BY timestamp DESC, id DESC LIMIT ?", n)
	if err != nil {
		return nil, statsErr("latest", err)
	}
	defer rows.Close()

	for rows.Next() {
		stat, err := scanStat(rows)
		if err != nil {
			return nil, statsErr("latest", err)
		}
		stats = append(stats, stat)
	}
	if err := rows.Err(); err != nil {
		return nil, statsErr("latest", err)
	}
	return stats, nil
}

// AllStats streams the whole table in timestamp order.
func (s *StatsService) AllStats(ctx context.Context) iter.Seq2[models.DbStat, error] {
	return func(yield func(models.DbStat, error) bool) {
		rows, err := s.db.QueryContext(ctx,
			"SELECT id, timestamp, connections, query_count, cache_hit_ratio FROM db_stats ORDER BY timestamp ASC, id ASC")
		if err != nil {
			yield(models.DbStat{}, statsErr("scan", err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			stat, err := scanStat(rows)
			if err != nil {
				yield(models.DbStat{}, statsErr("scan", err))
				return
			}
			if !yield(stat, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(models.DbStat{}, statsErr("scan", err))
		}
	}
}

func (s *StatsService) Close() error {
	return s.db.Close()
}

// scanStat is a helper function to scan a single row into a DbStat struct.
func scanStat(scanner interface{ Scan(...any) error }) (models.DbStat, error) {
	var stat models.DbStat
	err := scanner.Scan(&stat.ID, &stat.Timestamp, &stat.Connections, &stat.QueryCount, &stat.CacheHitRatio)
	if err != nil {
		return models.DbStat{}, err
	}
	stat.Timestamp = stat.Timestamp.UTC()
	return stat, nil
}
