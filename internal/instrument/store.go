package instrument

import (
	"context"
	"sync"
	"time"

	"github.com/mfields/tradeshell/pkg/redis"
)

// Store is the durable key-value cache for qualified contracts. Entries
// carry a TTL; expired entries are treated as misses and never served.
// Per-key atomicity is the only consistency requirement.
type Store interface {
	Get(ctx context.Context, key string) (Contract, bool, error)
	Set(ctx context.Context, key string, c Contract, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// MemoryStore is an in-process Store with lazy expiry. It backs tests and
// runs as the fallback when Redis is disabled.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	contract  Contract
	expiresAt time.Time
}

// NewMemoryStore creates an empty in-memory contract store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

// Get returns the cached contract unless the entry has expired.
func (s *MemoryStore) Get(_ context.Context, key string) (Contract, bool, error) {
	s.mu.RLock()
	entry, ok := s.entries[key]
	s.mu.RUnlock()

	if !ok || s.now().After(entry.expiresAt) {
		return Contract{}, false, nil
	}
	return entry.contract, true, nil
}

// Set stores the contract under key for ttl.
func (s *MemoryStore) Set(_ context.Context, key string, c Contract, ttl time.Duration) error {
	s.mu.Lock()
	s.entries[key] = memoryEntry{contract: c, expiresAt: s.now().Add(ttl)}
	s.mu.Unlock()
	return nil
}

// Delete removes key.
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
	return nil
}

// RedisStore persists contracts through the shared Redis cache so
// qualification survives process restarts.
type RedisStore struct {
	cache *redis.Cache
}

// NewRedisStore wraps a redis cache as a contract Store.
func NewRedisStore(cache *redis.Cache) *RedisStore {
	return &RedisStore{cache: cache}
}

// Get returns the cached contract. Redis handles expiry; a missing key is
// a plain miss.
func (s *RedisStore) Get(ctx context.Context, key string) (Contract, bool, error) {
	var c Contract
	found, err := s.cache.Get(ctx, key, &c)
	if err != nil || !found {
		return Contract{}, false, err
	}
	return c, true, nil
}

// Set stores the contract under key for ttl.
func (s *RedisStore) Set(ctx context.Context, key string, c Contract, ttl time.Duration) error {
	return s.cache.Set(ctx, key, c, ttl)
}

// Delete removes key.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	return s.cache.Delete(ctx, key)
}
