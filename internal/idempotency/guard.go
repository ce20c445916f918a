// Package idempotency is a fast-path replay filter for webhooks and delivery
// callbacks. The database row written with each transition stays authoritative.
package idempotency

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const keyDedup = "dedup:%s:%s"

const DefaultTTL = 48 * time.Hour

type Guard interface {
	Seen(ctx context.Context, source, id string) bool
	Remember(ctx context.Context, source, id string)
}

type RedisGuard struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewRedisClient(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})
}

func NewRedisGuard(rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *RedisGuard {
	return &RedisGuard{rdb: rdb, ttl: ttl, logger: logger}
}

// Seen reports false when redis is unavailable so the caller falls through to the database check.
func (g *RedisGuard) Seen(ctx context.Context, source, id string) bool {
	n, err := g.rdb.Exists(ctx, fmt.Sprintf(keyDedup, source, id)).Result()
	if err != nil {
		g.logger.Warn("dedup lookup failed", zap.String("source", source), zap.Error(err))
		return false
	}
	return n > 0
}

func (g *RedisGuard) Remember(ctx context.Context, source, id string) {
	if err := g.rdb.SetNX(ctx, fmt.Sprintf(keyDedup, source, id), 1, g.ttl).Err(); err != nil {
		g.logger.Warn("dedup remember failed", zap.String("source", source), zap.Error(err))
	}
}

type NopGuard struct{}

func (NopGuard) Seen(context.Context, string, string) bool { return false }
func (NopGuard) Remember(context.Context, string, string)  {}
