package clinicauth

import (
	"context"
	"strings"
	"sync"
)

// MemoryCredentialStore is an in-process CredentialStore for tests and
// examples. Emails are matched case-insensitively.
type MemoryCredentialStore struct {
	mu      sync.RWMutex
	byID    map[string]*Principal
	byEmail map[string]string
}

// NewMemoryCredentialStore seeds a store with principals.
func NewMemoryCredentialStore(principals ...Principal) *MemoryCredentialStore {
	s := &MemoryCredentialStore{
		byID:    make(map[string]*Principal),
		byEmail: make(map[string]string),
	}
	for _, p := range principals {
		s.Put(p)
	}
	return s
}

// Put inserts or replaces p.
func (s *MemoryCredentialStore) Put(p Principal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := p
	s.byID[p.ID] = &cp
	s.byEmail[normalizeEmail(p.Email)] = p.ID
}

func (s *MemoryCredentialStore) FindByEmail(_ context.Context, email string) (*Principal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byEmail[normalizeEmail(email)]
	if !ok {
		return nil, nil
	}
	cp := *s.byID[id]
	return &cp, nil
}

func (s *MemoryCredentialStore) FindByID(_ context.Context, id string) (*Principal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.byID[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (s *MemoryCredentialStore) SetMFAEnabled(_ context.Context, id string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.byID[id]; ok {
		p.MFAEnabled = enabled
	}
	return nil
}

func (s *MemoryCredentialStore) SetMFASecret(_ context.Context, id string, secret string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.byID[id]; ok {
		p.MFASecret = secret
	}
	return nil
}

func (s *MemoryCredentialStore) UpdatePasswordHash(_ context.Context, id, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.byID[id]; ok {
		p.PasswordHash = hash
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Delete removes the principal with id, if any.
func (s *MemoryCredentialStore) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byID[id]
	if !ok {
		return
	}
	delete(s.byEmail, normalizeEmail(p.Email))
	delete(s.byID, id)
}
