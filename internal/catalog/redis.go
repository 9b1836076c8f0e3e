package catalog

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"parcel-api/internal/logger"
	"parcel-api/internal/metrics"
)

const DefaultRedisPrefix = "parcel:snapshot:"

// RedisStore：SETNX 保证先写为准；TTL 为 0 时永不过期
type RedisStore struct {
	rc     *redis.Client
	prefix string
	ttl    time.Duration
	l      *slog.Logger
}

func NewRedis(rc *redis.Client, prefix string, ttl time.Duration, l *slog.Logger) *RedisStore {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisStore{rc: rc, prefix: prefix, ttl: ttl, l: logger.Or(l)}
}

func (s *RedisStore) Find(ctx context.Context, code string) (*Snapshot, error) {
	b, err := s.rc.Get(ctx, s.prefix+code).Bytes()
	if errors.Is(err, redis.Nil) {
		metrics.CatalogMissesTotal.WithLabelValues("redis").Inc()
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	metrics.CatalogHitsTotal.WithLabelValues("redis").Inc()
	return decode(b)
}

func (s *RedisStore) Update(ctx context.Context, snap *Snapshot) error {
	b, err := encode(snap)
	if err != nil {
		return err
	}
	ok, err := s.rc.SetNX(ctx, s.prefix+snap.Code, b, s.ttl).Result()
	if err != nil {
		return err
	}
	if ok {
		metrics.CatalogUpdatesTotal.WithLabelValues("redis").Inc()
		s.l.Debug("catalog_redis_update", "code", snap.Code)
	}
	return nil
}

func (s *RedisStore) Close() error { return s.rc.Close() }
