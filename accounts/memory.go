package accounts

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process Store for development mode and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	byID    map[string]*Account
	byEmail map[string]string
	byName  map[string]string
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:    make(map[string]*Account),
		byEmail: make(map[string]string),
		byName:  make(map[string]string),
	}
}

// Create stores a copy of a. Email and username must be unused.
func (s *MemoryStore) Create(_ context.Context, a *Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byEmail[a.Email]; ok {
		return ErrDuplicateEmail
	}
	if _, ok := s.byName[a.Username]; ok {
		return ErrDuplicateUsername
	}
	if _, ok := s.byID[a.ID]; ok {
		return ErrDuplicate
	}

	cp := *a
	s.byID[a.ID] = &cp
	s.byEmail[a.Email] = a.ID
	s.byName[a.Username] = a.ID
	return nil
}

// GetByID returns a copy of the account with id.
func (s *MemoryStore) GetByID(_ context.Context, id string) (*Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.copyOf(id)
}

// GetByEmail returns a copy of the account registered with email.
func (s *MemoryStore) GetByEmail(_ context.Context, email string) (*Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byEmail[email]
	if !ok {
		return nil, ErrNotFound
	}
	return s.copyOf(id)
}

// UpdatePasswordHash replaces the stored hash of id.
func (s *MemoryStore) UpdatePasswordHash(_ context.Context, id, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	a.PasswordHash = hash
	a.UpdatedAt = time.Now().UTC()
	return nil
}

// TouchLastLogin sets the last login time of id.
func (s *MemoryStore) TouchLastLogin(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	t := at.UTC()
	a.LastLogin = &t
	return nil
}

// SetActive flips the active flag. Admin tooling and tests use it.
func (s *MemoryStore) SetActive(id string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	a.IsActive = active
	return nil
}

// Ping always succeeds.
func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) copyOf(id string) (*Account, error) {
	a, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	if a.LastLogin != nil {
		t := *a.LastLogin
		cp.LastLogin = &t
	}
	return &cp, nil
}
