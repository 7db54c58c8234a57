package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dalemusser/licensehub/internal/app/system/metrics"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Redis is a Cache shared between processes. Keys live under a namespace so
// Clear and prefix invalidation never touch foreign keys.
type Redis struct {
	client    *redis.Client
	namespace string
	log       *zap.Logger
}

// NewRedis connects to redisURL and verifies the connection.
func NewRedis(ctx context.Context, redisURL, namespace string, logger *zap.Logger) (*Redis, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return NewRedisWithClient(client, namespace, logger), nil
}

// NewRedisWithClient wraps an existing client.
func NewRedisWithClient(client *redis.Client, namespace string, logger *zap.Logger) *Redis {
	if logger == nil {
		logger = zap.NewNop()
	}
	if namespace == "" {
		namespace = "licensehub"
	}
	return &Redis{client: client, namespace: namespace + ":", log: logger}
}

func (r *Redis) key(k string) string { return r.namespace + k }

func (r *Redis) Get(ctx context.Context, key string, dst any) bool {
	data, err := r.client.Get(ctx, r.key(key)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.log.Warn("cache: redis get failed", zap.String("key", key), zap.Error(err))
		}
		metrics.CacheRequests.WithLabelValues("redis", "miss").Inc()
		return false
	}
	if err := json.Unmarshal(data, dst); err != nil {
		r.log.Warn("cache: decode failed", zap.String("key", key), zap.Error(err))
		metrics.CacheRequests.WithLabelValues("redis", "miss").Inc()
		return false
	}
	metrics.CacheRequests.WithLabelValues("redis", "hit").Inc()
	return true
}

func (r *Redis) Set(ctx context.Context, key string, v any) {
	r.SetTTL(ctx, key, v, DefaultTTL)
}

// SetTTL stores v. A non-positive ttl removes the key instead, matching the
// expiry rule of the memory backend.
func (r *Redis) SetTTL(ctx context.Context, key string, v any, ttl time.Duration) {
	if ttl <= 0 {
		if err := r.client.Del(ctx, r.key(key)).Err(); err != nil {
			r.log.Warn("cache: redis del failed", zap.String("key", key), zap.Error(err))
		}
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		r.log.Warn("cache: encode failed", zap.String("key", key), zap.Error(err))
		return
	}
	if err := r.client.Set(ctx, r.key(key), data, ttl).Err(); err != nil {
		r.log.Warn("cache: redis set failed", zap.String("key", key), zap.Error(err))
	}
}

func (r *Redis) InvalidateByPrefix(ctx context.Context, substr string) int {
	n := r.deleteMatching(ctx, r.namespace+"*"+globEscape(substr)+"*")
	metrics.CacheInvalidations.WithLabelValues("redis").Add(float64(n))
	return n
}

func (r *Redis) Clear(ctx context.Context) {
	r.deleteMatching(ctx, r.namespace+"*")
}

func (r *Redis) deleteMatching(ctx context.Context, pattern string) int {
	n := 0
	iter := r.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		deleted, err := r.client.Del(ctx, iter.Val()).Result()
		if err != nil {
			r.log.Warn("cache: redis del failed", zap.String("key", iter.Val()), zap.Error(err))
			continue
		}
		n += int(deleted)
	}
	if err := iter.Err(); err != nil {
		r.log.Warn("cache: redis scan failed", zap.String("pattern", pattern), zap.Error(err))
	}
	return n
}

// Close releases the client.
func (r *Redis) Close() error { return r.client.Close() }

// Ping reports whether the Redis server is reachable.
func (r *Redis) Ping(ctx context.Context) error { return r.client.Ping(ctx).Err() }

func globEscape(s string) string {
	var b strings.Builder
	for _, c := range s {
		switch c {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(c)
	}
	return b.String()
}
