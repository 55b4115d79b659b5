// Package cache stores assistant replies so repeated questions skip the remote model.
package cache

import (
	"context"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/vnmchuo/hub-assistant/internal/provider"
)

const (
	DefaultTTL      = 5 * time.Minute
	DefaultCapacity = 100
)

type entry struct {
	resp     *provider.Response
	storedAt time.Time
}

// MemoryStore is a bounded LRU of replies. Entries older than the TTL are
// treated as absent and dropped on lookup.
type MemoryStore struct {
	entries *lru.Cache[string, entry]
	ttl     time.Duration
	now     func() time.Time
}

type MemoryOption func(*MemoryStore)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) { s.now = now }
}

func NewMemoryStore(capacity int, ttl time.Duration, opts ...MemoryOption) (*MemoryStore, error) {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	entries, err := lru.New[string, entry](capacity)
	if err != nil {
		return nil, fmt.Errorf("failed to create lru: %w", err)
	}
	s := &MemoryStore{entries: entries, ttl: ttl, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *MemoryStore) Get(_ context.Context, key string) (*provider.Response, bool) {
	e, ok := s.entries.Get(key)
	if !ok {
		return nil, false
	}
	if s.now().Sub(e.storedAt) > s.ttl {
		s.entries.Remove(key)
		return nil, false
	}
	return e.resp.Clone(), true
}

func (s *MemoryStore) Set(_ context.Context, key string, resp *provider.Response) {
	s.entries.Add(key, entry{resp: resp.Clone(), storedAt: s.now()})
}

func (s *MemoryStore) Len() int {
	return s.entries.Len()
}
