// Package cache implements the three-tier cache of the retrieval engine:
// a global result cache for generated answers (keyed by semantic similarity
// of the query, deliberately not user-scoped), a context cache for formatted
// passage sets (keyed by query and user security attributes), and a config
// cache for setting categories.
//
// All writes are advisory: a failed or dropped write never fails the request
// that produced the payload.
package cache

import (
	"sync/atomic"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Store is a TTL key/value store. Implementations must be safe for
// concurrent use; the stores are long-lived handles shared across requests.
type Store interface {
	Get(key string) (interface{}, bool)
	Set(key string, payload interface{}, ttl time.Duration) error
	Delete(key string)
}

// MemoryStore is an in-process Store backed by go-cache.
type MemoryStore struct {
	c      *gocache.Cache
	hits   atomic.Uint64
	misses atomic.Uint64
}

// NewMemoryStore creates a store with the given default TTL. Expired entries
// are swept every TTL period.
func NewMemoryStore(defaultTTL time.Duration) *MemoryStore {
	return &MemoryStore{
		c: gocache.New(defaultTTL, defaultTTL),
	}
}

func (s *MemoryStore) Get(key string) (interface{}, bool) {
	v, ok := s.c.Get(key)
	if ok {
		s.hits.Add(1)
	} else {
		s.misses.Add(1)
	}
	return v, ok
}

func (s *MemoryStore) Set(key string, payload interface{}, ttl time.Duration) error {
	s.c.Set(key, payload, ttl)
	return nil
}

func (s *MemoryStore) Delete(key string) {
	s.c.Delete(key)
}

// Stats reports hit/miss counters since process start.
func (s *MemoryStore) Stats() (hits, misses uint64) {
	return s.hits.Load(), s.misses.Load()
}
