package limiters

import (
	"sync"
	"time"
)

// LockoutConfig holds configuration for the sliding-window login lockout.
type LockoutConfig struct {
	MaxFailures int
	Duration    time.Duration
	Window      time.Duration
}

type lockoutEntry struct {
	count        int
	firstFailure time.Time
	lockedUntil  time.Time // zero when not locked
}

// Lockout counts failed logins per identity key inside a rolling window and
// locks the key once MaxFailures is reached. State is process-local.
type Lockout struct {
	mu      sync.Mutex
	config  LockoutConfig
	now     func() time.Time
	entries map[string]*lockoutEntry
}

// NewLockout creates a lockout tracker. A nil now uses time.Now.
func NewLockout(cfg LockoutConfig, now func() time.Time) *Lockout {
	if now == nil {
		now = time.Now
	}
	return &Lockout{
		config:  cfg,
		now:     now,
		entries: make(map[string]*lockoutEntry),
	}
}

// IsLocked evicts stale entries, then reports whether key has an active lock.
func (l *Lockout) IsLocked(key string) bool {
	if key == "" {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.evictLocked(now)
	e, ok := l.entries[key]
	if !ok || e.lockedUntil.IsZero() {
		return false
	}
	return now.Before(e.lockedUntil)
}

// RegisterFailure records a failed attempt. It reports whether key is locked
// after this failure.
func (l *Lockout) RegisterFailure(key string) bool {
	if key == "" {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.evictLocked(now)
	e, ok := l.entries[key]
	if ok && !e.lockedUntil.IsZero() {
		// an active lock is never shortened or extended by further failures
		return true
	}
	if !ok || now.Sub(e.firstFailure) > l.config.Window {
		e = &lockoutEntry{count: 1, firstFailure: now}
		if l.config.MaxFailures <= 1 {
			e.lockedUntil = now.Add(l.config.Duration)
		}
		l.entries[key] = e
		return !e.lockedUntil.IsZero()
	}

	e.count++
	if e.count >= l.config.MaxFailures {
		e.lockedUntil = now.Add(l.config.Duration)
	}
	return !e.lockedUntil.IsZero()
}

// RegisterSuccess clears key unconditionally.
func (l *Lockout) RegisterSuccess(key string) {
	if key == "" {
		return
	}
	l.mu.Lock()
	delete(l.entries, key)
	l.mu.Unlock()
}

// Len returns the number of tracked keys after eviction.
func (l *Lockout) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.evictLocked(l.now())
	return len(l.entries)
}

func (l *Lockout) evictLocked(now time.Time) {
	for key, e := range l.entries {
		if !e.lockedUntil.IsZero() {
			if !now.Before(e.lockedUntil) {
				delete(l.entries, key)
			}
			continue
		}
		if now.Sub(e.firstFailure) > l.config.Window {
			delete(l.entries, key)
		}
	}
}
