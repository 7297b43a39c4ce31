package ratelimit

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// MemoryLimiter is a single-process limiter: a token bucket per IP and
// purpose, refilled at limit per window.
type MemoryLimiter struct {
	mu        sync.Mutex
	buckets   map[string]*rate.Limiter
	cooldowns map[string]time.Time
	limit     rate.Limit
	burst     int
	cooldown  time.Duration
	now       func() time.Time
}

func NewMemoryLimiter(limit int, window, cooldown time.Duration) *MemoryLimiter {
	if limit < 1 {
		limit = 1
	}
	return &MemoryLimiter{
		buckets:   make(map[string]*rate.Limiter),
		cooldowns: make(map[string]time.Time),
		limit:     rate.Limit(float64(limit) / window.Seconds()),
		burst:     limit,
		cooldown:  cooldown,
		now:       time.Now,
	}
}

func (l *MemoryLimiter) Allow(_ context.Context, ip, purpose string) (bool, error) {
	key := purpose + ":" + ip

	l.mu.Lock()
	lim, ok := l.buckets[key]
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.buckets[key] = lim
	}
	l.mu.Unlock()

	return lim.AllowN(l.now(), 1), nil
}

func (l *MemoryLimiter) AcquireCooldown(_ context.Context, email string) (bool, error) {
	key := strings.ToLower(email)
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if until, ok := l.cooldowns[key]; ok && now.Before(until) {
		return false, nil
	}
	l.cooldowns[key] = now.Add(l.cooldown)
	return true, nil
}

// Prune forgets expired cooldowns and idle buckets.
func (l *MemoryLimiter) Prune() {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	for k, until := range l.cooldowns {
		if !now.Before(until) {
			delete(l.cooldowns, k)
		}
	}
	for k, lim := range l.buckets {
		if lim.TokensAt(now) >= float64(l.burst) {
			delete(l.buckets, k)
		}
	}
}
