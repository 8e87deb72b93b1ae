package cache

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// CountStore keeps short-lived usage counts keyed by string
type CountStore interface {
	// Get returns ok=false on a miss
	Get(ctx context.Context, key string) (value int64, ok bool, err error)
	Set(ctx context.Context, key string, value int64, ttl time.Duration) error
	DeletePrefix(ctx context.Context, prefix string) error
}

// RedisCountStore shares counts between engine instances
type RedisCountStore struct {
	client *redis.Client
}

// NewRedisCountStore creates a store on an existing client. The caller owns the client.
func NewRedisCountStore(client *redis.Client) *RedisCountStore {
	return &RedisCountStore{client: client}
}

// Get reads a cached count
func (s *RedisCountStore) Get(ctx context.Context, key string) (int64, bool, error) {
	v, err := s.client.Get(ctx, key).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return v, true, nil
}

// Set writes a count with expiry
func (s *RedisCountStore) Set(ctx context.Context, key string, value int64, ttl time.Duration) error {
	return s.client.Set(ctx, key, strconv.FormatInt(value, 10), ttl).Err()
}

// DeletePrefix removes every key starting with prefix
func (s *RedisCountStore) DeletePrefix(ctx context.Context, prefix string) error {
	iter := s.client.Scan(ctx, 0, prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := s.client.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}

// InMemoryCountStore is the single-instance fallback when Redis is disabled
type InMemoryCountStore struct {
	mu      sync.Mutex
	entries map[string]countEntry
	now     func() time.Time
}

type countEntry struct {
	value     int64
	expiresAt time.Time
}

// NewInMemoryCountStore creates an empty store
func NewInMemoryCountStore() *InMemoryCountStore {
	return &InMemoryCountStore{
		entries: make(map[string]countEntry),
		now:     time.Now,
	}
}

// Get reads a cached count, dropping it if expired
func (s *InMemoryCountStore) Get(_ context.Context, key string) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return 0, false, nil
	}
	if !s.now().Before(e.expiresAt) {
		delete(s.entries, key)
		return 0, false, nil
	}
	return e.value, true, nil
}

// Set writes a count with expiry
func (s *InMemoryCountStore) Set(_ context.Context, key string, value int64, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = countEntry{value: value, expiresAt: s.now().Add(ttl)}
	return nil
}

// DeletePrefix removes every key starting with prefix
func (s *InMemoryCountStore) DeletePrefix(_ context.Context, prefix string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k := range s.entries {
		if strings.HasPrefix(k, prefix) {
			delete(s.entries, k)
		}
	}
	return nil
}

// Len returns the number of entries, expired ones included
func (s *InMemoryCountStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

var (
	_ CountStore = (*RedisCountStore)(nil)
	_ CountStore = (*InMemoryCountStore)(nil)
)
