package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps counters in process memory. Counters are not shared
// between instances; use it for development and single-instance setups.
type MemoryStore struct {
	mu      sync.Mutex
	buckets map[string]*Record
	now     func() time.Time
}

// NewMemoryStore creates an empty in-process limiter.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		buckets: make(map[string]*Record),
		now:     time.Now,
	}
}

// CheckRateLimit increments the current window and compares it to limit.
func (s *MemoryStore) CheckRateLimit(_ context.Context, tenantID, endpoint string, limit int, window time.Duration) (bool, error) {
	if err := Validate(tenantID, endpoint, limit, window); err != nil {
		return false, err
	}

	start := WindowStart(s.now(), window)
	key := Key(tenantID, endpoint, start)

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.buckets[key]
	if !ok {
		rec = &Record{TenantID: tenantID, Endpoint: endpoint, WindowStart: start}
		s.buckets[key] = rec
	}
	rec.Count++

	return rec.Count <= int64(limit), nil
}

// PruneExpired drops buckets that have ended for every window up to
// maxWindow.
func (s *MemoryStore) PruneExpired(maxWindow time.Duration) int {
	return s.Prune(PruneCutoff(s.now(), maxWindow))
}

// Prune drops buckets whose window started before cutoff and returns how
// many were removed.
func (s *MemoryStore) Prune(cutoff time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, rec := range s.buckets {
		if rec.WindowStart.Before(cutoff) {
			delete(s.buckets, key)
			removed++
		}
	}
	return removed
}
