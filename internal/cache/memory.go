package cache

import (
	"bytes"
	"context"
	"sync"
	"time"

	apperrors "cinema-checkout/pkg/app_errors"
)

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryStoreImpl is a process-local Store. Expired entries are dropped lazily on access.
type MemoryStoreImpl struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemoryStore() Store {
	return &MemoryStoreImpl{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (s *MemoryStoreImpl) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.getLocked(key)
	if !ok {
		return nil, apperrors.ErrCacheMiss
	}
	return append([]byte(nil), v...), nil
}

func (s *MemoryStoreImpl) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setLocked(key, value, ttl)
	return nil
}

func (s *MemoryStoreImpl) Delete(ctx context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		delete(s.entries, k)
	}
	return nil
}

func (s *MemoryStoreImpl) CompareAndSwap(ctx context.Context, key string, expected, value []byte, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.getLocked(key)
	if expected == nil {
		if ok {
			return false, nil
		}
	} else if !ok || !bytes.Equal(current, expected) {
		return false, nil
	}

	if value == nil {
		delete(s.entries, key)
	} else {
		s.setLocked(key, value, ttl)
	}
	return true, nil
}

func (s *MemoryStoreImpl) getLocked(key string) ([]byte, bool) {
	e, ok := s.entries[key]
	if !ok {
		return nil, false
	}
	if !e.expiresAt.IsZero() && !s.now().Before(e.expiresAt) {
		delete(s.entries, key)
		return nil, false
	}
	return e.value, true
}

func (s *MemoryStoreImpl) setLocked(key string, value []byte, ttl time.Duration) {
	e := memoryEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expiresAt = s.now().Add(ttl)
	}
	s.entries[key] = e
}
