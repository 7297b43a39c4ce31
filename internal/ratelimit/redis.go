package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLimiter keeps counters in Redis so limits hold across replicas.
// Per-IP limits are fixed windows; email cooldowns are SET NX keys.
type RedisLimiter struct {
	client   redis.Cmdable
	limit    int64
	window   time.Duration
	cooldown time.Duration
}

func NewRedisLimiter(client redis.Cmdable, limit int, window, cooldown time.Duration) *RedisLimiter {
	return &RedisLimiter{
		client:   client,
		limit:    int64(limit),
		window:   window,
		cooldown: cooldown,
	}
}

func ipKey(purpose, ip string) string {
	return fmt.Sprintf("ratelimit:ip:%s:%s", purpose, ip)
}

func cooldownKey(email string) string {
	return fmt.Sprintf("ratelimit:cooldown:%s", strings.ToLower(email))
}

func (l *RedisLimiter) Allow(ctx context.Context, ip, purpose string) (bool, error) {
	key := ipKey(purpose, ip)

	// INCR and EXPIRE NX run in one MULTI so a counter never outlives its window.
	// NX keeps the window anchored at the first hit.
	var count *redis.IntCmd
	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		count = pipe.Incr(ctx, key)
		pipe.ExpireNX(ctx, key, l.window)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to update rate limit counter: %w", err)
	}

	return count.Val() <= l.limit, nil
}

func (l *RedisLimiter) AcquireCooldown(ctx context.Context, email string) (bool, error) {
	ok, err := l.client.SetNX(ctx, cooldownKey(email), "1", l.cooldown).Result()
	if err != nil {
		return false, fmt.Errorf("failed to set email cooldown: %w", err)
	}
	return ok, nil
}
