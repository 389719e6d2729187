package rate

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

var loginPolicy = Policy{Bucket: "login", Limit: 2, Window: time.Minute}

func TestMemoryLimiterAllowAndReset(t *testing.T) {
	c := &clock{now: time.Unix(1_700_000_000, 0)}
	lim := NewMemoryLimiter(loginPolicy, c.Now)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ok, retry, err := lim.Allow(ctx, "ip")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Zero(t, retry)
	}

	c.Advance(20 * time.Second)
	ok, retry, err := lim.Allow(ctx, "ip")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 40*time.Second, retry)

	// Other keys have their own budget.
	ok, _, _ = lim.Allow(ctx, "other")
	assert.True(t, ok)

	c.Advance(40 * time.Second)
	ok, _, _ = lim.Allow(ctx, "ip")
	assert.True(t, ok)
}

func TestMemoryLimiterCleanup(t *testing.T) {
	c := &clock{now: time.Unix(1_700_000_000, 0)}
	lim := NewMemoryLimiter(loginPolicy, c.Now)

	_, _, _ = lim.Allow(context.Background(), "1.1.1.1")
	require.Equal(t, 1, lim.Len())

	c.Advance(2 * time.Minute)
	_, _, _ = lim.Allow(context.Background(), "2.2.2.2")
	assert.Equal(t, 1, lim.Len(), "expired entries are pruned")
}

func TestMemoryLimiterZeroLimitDeniesEverything(t *testing.T) {
	lim := NewMemoryLimiter(Policy{Bucket: "x", Limit: 0, Window: time.Minute}, nil)
	ok, retry, err := lim.Allow(context.Background(), "ip")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, time.Minute, retry)
}

func TestRedisLimiterSharesBudget(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	ctx := context.Background()

	a := NewRedisLimiter(rdb, loginPolicy, "")
	b := NewRedisLimiter(rdb, loginPolicy, "")

	ok, _, err := a.Allow(ctx, "203.0.113.7")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, _, err = b.Allow(ctx, "203.0.113.7")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, retry, err := a.Allow(ctx, "203.0.113.7")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Greater(t, retry, time.Duration(0))
	assert.LessOrEqual(t, retry, time.Minute)

	assert.Equal(t, time.Minute, mr.TTL("crl:login:203.0.113.7"))

	mr.FastForward(time.Minute + time.Second)
	ok, _, err = a.Allow(ctx, "203.0.113.7")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisLimiterUnavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	mr.Close()

	_, _, err := NewRedisLimiter(rdb, loginPolicy, "t").Allow(context.Background(), "ip")
	assert.ErrorIs(t, err, ErrRedisUnavailable)
}
