package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// MemoryStore is a process-local Store. Expired entries are dropped on read
// and by Prune.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]Entry
	now   func() time.Time
}

// NewMemoryStore creates an empty in-process cache.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		items: make(map[string]Entry),
		now:   time.Now,
	}
}

// Get returns a copy of the live entry value.
func (s *MemoryStore) Get(_ context.Context, tenantID, key string) (json.RawMessage, error) {
	k := Key(tenantID, key)

	s.mu.RLock()
	entry, ok := s.items[k]
	s.mu.RUnlock()

	if !ok {
		return nil, ErrMiss
	}
	if entry.Expired(s.now()) {
		s.mu.Lock()
		if cur, ok := s.items[k]; ok && cur.Expired(s.now()) {
			delete(s.items, k)
		}
		s.mu.Unlock()
		return nil, ErrMiss
	}

	return append(json.RawMessage(nil), entry.Value...), nil
}

// Set stores a copy of value.
func (s *MemoryStore) Set(_ context.Context, tenantID, key string, value json.RawMessage, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items[Key(tenantID, key)] = Entry{
		TenantID:  tenantID,
		Key:       key,
		Value:     append(json.RawMessage(nil), value...),
		ExpiresAt: s.now().Add(ttl),
	}
	return nil
}

// Prune removes expired entries and returns how many were dropped.
func (s *MemoryStore) Prune() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for k, entry := range s.items {
		if entry.Expired(now) {
			delete(s.items, k)
			removed++
		}
	}
	return removed
}

// Len returns the number of stored entries, expired or not.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}
