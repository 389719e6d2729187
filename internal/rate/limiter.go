package rate

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultPrefix namespaces limiter keys in Redis.
const DefaultPrefix = "crl"

// Limiter admits at most a fixed number of hits per key and window.
// retryAfter is set when allowed is false.
type Limiter interface {
	Allow(ctx context.Context, key string) (allowed bool, retryAfter time.Duration, err error)
}

// Policy is one limit.
type Policy struct {
	Bucket string
	Limit  int
	Window time.Duration
}

/*
====================================
REDIS
====================================
*/

// RedisLimiter counts hits with Redis INCR so every instance shares a budget.
type RedisLimiter struct {
	redis  redis.UniversalClient
	policy Policy
	prefix string
}

// NewRedisLimiter returns a limiter for policy. An empty prefix uses DefaultPrefix.
func NewRedisLimiter(client redis.UniversalClient, policy Policy, prefix string) *RedisLimiter {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &RedisLimiter{redis: client, policy: policy, prefix: prefix}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	k := l.prefix + ":" + l.policy.Bucket + ":" + key
	count, err := l.incrementWithTTL(ctx, k, l.policy.Window)
	if err != nil {
		return false, 0, err
	}
	if count <= int64(l.policy.Limit) {
		return true, 0, nil
	}

	ttl, err := l.redis.PTTL(ctx, k).Result()
	if err != nil {
		return false, 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if ttl < 0 {
		ttl = l.policy.Window
	}
	return false, ttl, nil
}

func (l *RedisLimiter) incrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// Fixed-window semantics: set TTL only for the first hit in the window.
	if count == 1 {
		if err := l.redis.Expire(ctx, key, ttl).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	return count, nil
}

/*
====================================
MEMORY
====================================
*/

// MemoryLimiter is a process-local Limiter for single instances and tests.
type MemoryLimiter struct {
	mu          sync.Mutex
	policy      Policy
	now         func() time.Time
	entries     map[string]*entry
	lastCleanup time.Time
}

type entry struct {
	count int
	reset time.Time
}

// NewMemoryLimiter returns a limiter for policy. A nil now uses time.Now.
func NewMemoryLimiter(policy Policy, now func() time.Time) *MemoryLimiter {
	if now == nil {
		now = time.Now
	}
	return &MemoryLimiter{
		policy:      policy,
		now:         now,
		entries:     map[string]*entry{},
		lastCleanup: now(),
	}
}

func (l *MemoryLimiter) Allow(_ context.Context, key string) (bool, time.Duration, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastCleanup) >= l.policy.Window {
		for k, v := range l.entries {
			if !now.Before(v.reset) {
				delete(l.entries, k)
			}
		}
		l.lastCleanup = now
	}

	e, ok := l.entries[key]
	if !ok || !now.Before(e.reset) {
		l.entries[key] = &entry{count: 1, reset: now.Add(l.policy.Window)}
		if l.policy.Limit < 1 {
			return false, l.policy.Window, nil
		}
		return true, 0, nil
	}

	if e.count >= l.policy.Limit {
		return false, e.reset.Sub(now), nil
	}
	e.count++
	return true, 0, nil
}

// Len returns the number of tracked keys.
func (l *MemoryLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
