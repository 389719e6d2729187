package limiters

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestLockout(max int) (*Lockout, *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)}
	return NewLockout(LockoutConfig{
		MaxFailures: max,
		Duration:    15 * time.Minute,
		Window:      15 * time.Minute,
	}, clock.Now), clock
}

func TestLockoutLocksAtThresholdAndExpires(t *testing.T) {
	l, clock := newTestLockout(5)

	for i := 1; i < 5; i++ {
		assert.False(t, l.RegisterFailure("doc@test"), "failure %d", i)
		assert.False(t, l.IsLocked("doc@test"))
		clock.Advance(time.Second)
	}
	assert.True(t, l.RegisterFailure("doc@test"))
	assert.True(t, l.IsLocked("doc@test"))

	clock.Advance(15*time.Minute - time.Second)
	assert.True(t, l.IsLocked("doc@test"))

	clock.Advance(time.Second)
	assert.False(t, l.IsLocked("doc@test"))
	assert.Equal(t, 0, l.Len())
}

func TestLockoutWindowElapsesWithoutLock(t *testing.T) {
	l, clock := newTestLockout(3)
	l.RegisterFailure("a")
	l.RegisterFailure("a")
	clock.Advance(15*time.Minute + time.Second)

	assert.Equal(t, 0, l.Len())
	assert.False(t, l.RegisterFailure("a"))
	assert.False(t, l.RegisterFailure("a"))
	assert.True(t, l.RegisterFailure("a"))
}

func TestLockoutSuccessClearsEntry(t *testing.T) {
	l, _ := newTestLockout(3)
	l.RegisterFailure("a")
	l.RegisterFailure("a")
	l.RegisterSuccess("a")
	assert.Equal(t, 0, l.Len())
	assert.False(t, l.RegisterFailure("a"))
}

func TestLockoutSingleFailureThresholdLocksImmediately(t *testing.T) {
	l, _ := newTestLockout(1)
	assert.True(t, l.RegisterFailure("a"))
	assert.True(t, l.IsLocked("a"))
}

func TestLockoutActiveLockNotExtended(t *testing.T) {
	l, clock := newTestLockout(2)
	l.RegisterFailure("a")
	l.RegisterFailure("a")
	clock.Advance(10 * time.Minute)
	assert.True(t, l.RegisterFailure("a"))
	clock.Advance(5 * time.Minute)
	assert.False(t, l.IsLocked("a"))
}

func TestLockoutKeysAreIndependentAndEmptyIgnored(t *testing.T) {
	l, _ := newTestLockout(2)
	l.RegisterFailure("a")
	l.RegisterFailure("a")
	assert.True(t, l.IsLocked("a"))
	assert.False(t, l.IsLocked("b"))

	assert.False(t, l.RegisterFailure(""))
	assert.False(t, l.IsLocked(""))
	assert.Equal(t, 1, l.Len())
}

func TestLockoutConcurrentFailuresAreNotLost(t *testing.T) {
	l, _ := newTestLockout(1000)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				l.RegisterFailure("shared")
			}
		}()
	}
	wg.Wait()
	require.True(t, l.IsLocked("shared"), "1000 concurrent failures must reach the threshold")
}

func TestLockoutEvictsOtherStaleKeys(t *testing.T) {
	l, clock := newTestLockout(5)
	for i := 0; i < 10; i++ {
		l.RegisterFailure(fmt.Sprintf("user-%d", i))
	}
	clock.Advance(16 * time.Minute)
	l.IsLocked("someone-else")
	assert.Equal(t, 0, l.Len())
}
