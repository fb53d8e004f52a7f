// pending.go -- In-process pending-authorization store.
//
// Holds the single-use CSRF state values that correlate an OAuth authorize
// redirect with its callback. The contract is a keyed TTL store with an atomic
// take: Put records a key with an expiry, Take reports membership and deletes
// on hit. Callers never learn WHY a key is absent (never issued, already
// consumed, or expired) -- all three read identically as "not found".
//
// This implementation is correct for a single-process deployment only. For
// multi-process deployments use RedisPendingStore, which implements the same
// contract against a shared keyed store.
package store

import (
	"context"
	"sync"
	"time"
)

// PendingStore is the pending-authorization contract shared by the in-memory
// and Redis implementations.
type PendingStore interface {
	// Put records the key with the given TTL.
	Put(ctx context.Context, key string, ttl time.Duration) error

	// Take atomically checks membership and deletes on hit. Returns true
	// exactly once per Put of a live key; false for unknown, consumed, or
	// expired keys, with no distinction between those cases.
	Take(ctx context.Context, key string) (bool, error)
}

// MemoryPendingStore keeps pending authorizations in a mutex-guarded map.
// The clock is injected so expiry-boundary behaviour is testable.
type MemoryPendingStore struct {
	mu      sync.Mutex
	entries map[string]time.Time // key -> absolute expiry
	now     func() time.Time
}

// NewMemoryPendingStore returns an empty in-process store using the real clock.
func NewMemoryPendingStore() *MemoryPendingStore {
	return &MemoryPendingStore{
		entries: make(map[string]time.Time),
		now:     time.Now,
	}
}

// NewMemoryPendingStoreWithClock returns a store with an injected clock.
// Used by tests to cross expiry boundaries deterministically.
func NewMemoryPendingStoreWithClock(now func() time.Time) *MemoryPendingStore {
	return &MemoryPendingStore{
		entries: make(map[string]time.Time),
		now:     now,
	}
}

// purgeLocked deletes every entry whose expiry has passed.
// Caller must hold mu.
func (s *MemoryPendingStore) purgeLocked() {
	now := s.now()
	for key, expiresAt := range s.entries {
		if !expiresAt.After(now) {
			delete(s.entries, key)
		}
	}
}

// Put records the key with the given TTL, opportunistically purging expired
// entries first so the map cannot grow without bound between sweeps.
func (s *MemoryPendingStore) Put(_ context.Context, key string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purgeLocked()
	s.entries[key] = s.now().Add(ttl)
	return nil
}

// Take purges expired entries, then checks membership and deletes on hit.
// Check-and-delete happens under one lock hold, so concurrent callers racing
// on the same key see exactly one true.
func (s *MemoryPendingStore) Take(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purgeLocked()
	if _, ok := s.entries[key]; !ok {
		return false, nil
	}
	delete(s.entries, key)
	return true, nil
}

// Sweep removes expired entries and returns how many were dropped.
// main runs this periodically; Put and Take already purge on touch, so
// correctness never depends on the sweep running.
func (s *MemoryPendingStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	before := len(s.entries)
	s.purgeLocked()
	return before - len(s.entries)
}
