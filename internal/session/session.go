// Package session persists per-tab session storage across fingerprint reports,
// so a session id generated on one page view is found again on the next.
package session

import (
	"context"
	"log"
	"sync"
	"time"
)

// DefaultTTL matches a typical browser tab idling out of a visit.
const DefaultTTL = 30 * time.Minute

// DefaultMaxEntries caps a MemoryStore. Scopes are chosen by clients, so the
// map must not grow with whatever they send.
const DefaultMaxEntries = 100_000

// Store keeps string values per session scope. Implementations never fail
// loudly: a lost write only means a fresh session id on the next report.
type Store interface {
	Get(ctx context.Context, scope, key string) (string, bool)
	Set(ctx context.Context, scope, key, value string)
	Ping(ctx context.Context) error
	Close() error
}

type entry struct {
	value   string
	expires time.Time
}

// MemoryStore is an in-process Store with sliding expiry. Expired entries
// are swept at most once per quarter TTL, and new keys are refused once
// MaxEntries live keys are held.
type MemoryStore struct {
	mu         sync.Mutex
	ttl        time.Duration
	now        func() time.Time
	m          map[string]entry
	lastSweep  time.Time
	maxEntries int
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{ttl: ttl, now: time.Now, m: make(map[string]entry), maxEntries: DefaultMaxEntries}
}

// WithMaxEntries sets the entry cap; n <= 0 keeps the default.
func (s *MemoryStore) WithMaxEntries(n int) *MemoryStore {
	if n > 0 {
		s.maxEntries = n
	}
	return s
}

func (s *MemoryStore) Get(_ context.Context, scope, key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := storeKey(scope, key)
	e, ok := s.m[k]
	if !ok {
		return "", false
	}
	now := s.now()
	if !now.Before(e.expires) {
		delete(s.m, k)
		return "", false
	}
	e.expires = now.Add(s.ttl)
	s.m[k] = e
	return e.value, true
}

func (s *MemoryStore) Set(_ context.Context, scope, key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	k := storeKey(scope, key)
	_, exists := s.m[k]
	if !exists {
		if now.Sub(s.lastSweep) >= s.ttl/4 {
			s.sweep(now)
		}
		if len(s.m) >= s.maxEntries {
			log.Printf("session: memory store full (%d entries), dropping scope %q", len(s.m), scope)
			return
		}
	}
	s.m[k] = entry{value: value, expires: now.Add(s.ttl)}
}

// sweep removes expired entries. Callers hold s.mu.
func (s *MemoryStore) sweep(now time.Time) {
	for k, e := range s.m {
		if !now.Before(e.expires) {
			delete(s.m, k)
		}
	}
	s.lastSweep = now
}

func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.m)
}

func (s *MemoryStore) Ping(context.Context) error { return nil }
func (s *MemoryStore) Close() error               { return nil }

func storeKey(scope, key string) string { return scope + ":" + key }
