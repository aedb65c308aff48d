package services

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"time"

	"github.com/isdelr/ender-monitor-be/internal/config"
	"github.com/isdelr/ender-monitor-be/internal/models"
	"github.com/redis/go-redis/v9"
)

// redisPageSize bounds how many documents a full scan pulls per round trip.
const redisPageSize = 500

// RedisEventService keeps each collection as a sorted set of JSON documents
// scored by their unix millisecond timestamp.
type RedisEventService struct {
	client    redis.UniversalClient
	keyPrefix string
}

// NewRedisEventService connects to redis and checks the connection.
func NewRedisEventService(cfg config.RedisConfig) (*RedisEventService, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return NewRedisEventServiceFromClient(client, cfg.KeyPrefix), nil
}

// NewRedisEventServiceFromClient wraps an existing client.
func NewRedisEventServiceFromClient(client redis.UniversalClient, keyPrefix string) *RedisEventService {
	if keyPrefix == "" {
		keyPrefix = "monitor:"
	}
	return &RedisEventService{client: client, keyPrefix: keyPrefix}
}

func (s *RedisEventService) InsertMetric(ctx context.Context, m *models.Metric) error {
	prepareMetric(m)
	return eventsErr("insert metric", s.insert(ctx, collectionMetrics, m.Timestamp, m))
}

func (s *RedisEventService) InsertLog(ctx context.Context, l *models.Log) error {
	prepareLog(l)
	return eventsErr("insert log", s.insert(ctx, collectionLogs, l.Timestamp, l))
}

func (s *RedisEventService) LatestMetrics(ctx context.Context, n int) ([]models.Metric, error) {
	out, err := redisLatest[models.Metric](ctx, s.client, s.key(collectionMetrics), n)
	return out, eventsErr("latest metrics", err)
}

func (s *RedisEventService) LatestLogs(ctx context.Context, n int) ([]models.Log, error) {
	out, err := redisLatest[models.Log](ctx, s.client, s.key(collectionLogs), n)
	return out, eventsErr("latest logs", err)
}

func (s *RedisEventService) AllMetrics(ctx context.Context) iter.Seq2[models.Metric, error] {
	return redisAll[models.Metric](ctx, s.client, s.key(collectionMetrics))
}

func (s *RedisEventService) AllLogs(ctx context.Context) iter.Seq2[models.Log, error] {
	return redisAll[models.Log](ctx, s.client, s.key(collectionLogs))
}

func (s *RedisEventService) Close() error {
	return s.client.Close()
}

func (s *RedisEventService) key(collection string) string {
	return s.keyPrefix + collection
}

func (s *RedisEventService) insert(ctx context.Context, collection string, ts time.Time, doc any) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}
	return s.client.ZAdd(ctx, s.key(collection), redis.Z{
		Score:  float64(ts.UnixMilli()),
		Member: string(data),
	}).Err()
}

func redisLatest[T any](ctx context.Context, client redis.UniversalClient, key string, n int) ([]T, error) {
	out := make([]T, 0, max(n, 0))
	if n <= 0 {
		return out, nil
	}
	docs, err := client.ZRevRange(ctx, key, 0, int64(n-1)).Result()
	if err != nil {
		return nil, err
	}
	for _, doc := range docs {
		var v T
		if err := json.Unmarshal([]byte(doc), &v); err != nil {
			return nil, fmt.Errorf("decode document: %w", err)
		}
		out = append(out, v)
	}
	return out, nil
}

func redisAll[T any](ctx context.Context, client redis.UniversalClient, key string) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		var zero T
		for start := int64(0); ; start += redisPageSize {
			docs, err := client.ZRange(ctx, key, start, start+redisPageSize-1).Result()
			if err != nil {
				yield(zero, eventsErr("scan "+key, err))
				return
			}
			for _, doc := range docs {
				var v T
				if err := json.Unmarshal([]byte(doc), &v); err != nil {
					yield(zero, eventsErr("scan "+key, fmt.Errorf("decode document: %w", err)))
					return
				}
				if !yield(v, nil) {
					return
				}
			}
			if len(docs) < redisPageSize {
				return
			}
		}
	}
}
