package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"

	"achievements/pkg/platform/sentinel"
)

var (
	opDurationMs = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "achievements_redis_document_duration_ms",
		Help:    "Latency of Redis document operations in milliseconds",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25, 50},
	}, []string{"op"})
)

// Redis key prefix for stored documents
const documentKeyPrefix = "achievements:doc:"

// RedisStore is a Redis-backed storage.Documents. A document is a single
// string value, so SET gives whole-document atomicity.
type RedisStore struct {
	client *redis.Client
}

// RedisStoreOption configures a RedisStore instance.
type RedisStoreOption func(*RedisStore)

// NewRedisStore constructs a Redis-backed document store. The client
// lifecycle is managed by the caller.
func NewRedisStore(client *redis.Client, opts ...RedisStoreOption) *RedisStore {
	s := &RedisStore{client: client}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *RedisStore) Load(ctx context.Context, key string) ([]byte, error) {
	defer observe("load", time.Now())

	data, err := s.client.Get(ctx, documentKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("document %s: %w", key, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load document %s: %w: %w", key, sentinel.ErrUnavailable, err)
	}
	return data, nil
}

func (s *RedisStore) Save(ctx context.Context, key string, data []byte) error {
	defer observe("save", time.Now())

	// No expiry: documents live until overwritten.
	if err := s.client.Set(ctx, documentKeyPrefix+key, data, 0).Err(); err != nil {
		return fmt.Errorf("save document %s: %w: %w", key, sentinel.ErrUnavailable, err)
	}
	return nil
}

func (s *RedisStore) Health(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func observe(op string, start time.Time) {
	opDurationMs.WithLabelValues(op).Observe(float64(time.Since(start).Microseconds()) / 1000.0)
}
