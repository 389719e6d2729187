package refresh

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process Store guarded by a single mutex.
type MemoryStore struct {
	mu     sync.Mutex
	byHash map[string]*Record
	byID   map[string]string
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byHash: make(map[string]*Record),
		byID:   make(map[string]string),
	}
}

func (s *MemoryStore) Create(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.put(rec)
	return nil
}

func (s *MemoryStore) FindByHash(_ context.Context, hash string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.byHash[hash]
	if !ok {
		return nil, ErrNotFound
	}
	out := *rec
	return &out, nil
}

func (s *MemoryStore) Rotate(_ context.Context, presentedHash string, next Record, now time.Time) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.byHash[presentedHash]
	if !ok || !rec.Active(now) {
		return nil, ErrInvalidRefreshToken
	}
	at := now
	rec.RevokedAt = &at
	next.UserID = rec.UserID
	s.put(next)
	out := *rec
	return &out, nil
}

func (s *MemoryStore) Revoke(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	hash, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	rec := s.byHash[hash]
	if rec.RevokedAt == nil {
		rec.RevokedAt = &at
	}
	return nil
}

func (s *MemoryStore) RevokeByHash(_ context.Context, hash string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.byHash[hash]
	if !ok || rec.RevokedAt != nil {
		return false, nil
	}
	rec.RevokedAt = &at
	return true, nil
}

func (s *MemoryStore) RevokeAllForUser(_ context.Context, userID string, at time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, rec := range s.byHash {
		if rec.UserID == userID && rec.RevokedAt == nil {
			rec.RevokedAt = &at
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) put(rec Record) {
	cp := rec
	s.byHash[rec.TokenHash] = &cp
	s.byID[rec.ID] = rec.TokenHash
}
