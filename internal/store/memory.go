package store

import (
	"context"
	"fmt"
	"path"
	"strconv"
	"sync"
	"time"
)

// MemoryStore is an in-process Store used by tests and store-less
// deployments. A single mutex stands in for Redis's per-key atomicity;
// the operation granularity matches the Redis implementation exactly.
type MemoryStore struct {
	mu      sync.Mutex
	values  map[string]memoryEntry
	hashes  map[string]map[string]string
	windows map[string][]int64
	expiry  map[string]time.Time
	now     func() time.Time
}

type memoryEntry struct {
	data []byte
}

// NewMemory creates an empty in-memory store.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		values:  make(map[string]memoryEntry),
		hashes:  make(map[string]map[string]string),
		windows: make(map[string][]int64),
		expiry:  make(map[string]time.Time),
		now:     time.Now,
	}
}

// SetClock overrides the time source. Tests use this to step windows and
// TTLs forward deterministically.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *MemoryStore) expired(key string) bool {
	deadline, ok := s.expiry[key]
	return ok && s.now().After(deadline)
}

func (s *MemoryStore) purge(key string) {
	delete(s.values, key)
	delete(s.hashes, key)
	delete(s.windows, key)
	delete(s.expiry, key)
}

// Get retrieves a value. Returns (nil, nil) on a miss or expired entry.
func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.expired(key) {
		s.purge(key)
	}
	entry, ok := s.values[key]
	if !ok {
		return nil, nil
	}
	out := make([]byte, len(entry.data))
	copy(out, entry.data)
	return out, nil
}

// Set stores a value with TTL.
func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	data := make([]byte, len(value))
	copy(data, value)
	s.values[key] = memoryEntry{data: data}
	if ttl > 0 {
		s.expiry[key] = s.now().Add(ttl)
	} else {
		delete(s.expiry, key)
	}
	return nil
}

// Delete removes keys.
func (s *MemoryStore) Delete(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		s.purge(key)
	}
	return nil
}

// GetFloat reads a numeric key. Returns 0 on a miss.
func (s *MemoryStore) GetFloat(ctx context.Context, key string) (float64, error) {
	raw, err := s.Get(ctx, key)
	if err != nil || raw == nil {
		return 0, err
	}
	f, err := strconv.ParseFloat(string(raw), 64)
	if err != nil {
		return 0, fmt.Errorf("non-numeric value at %s: %w", key, err)
	}
	return f, nil
}

// IncrByFloat atomically increments a numeric key.
func (s *MemoryStore) IncrByFloat(_ context.Context, key string, delta float64) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.expired(key) {
		s.purge(key)
	}
	current := 0.0
	if entry, ok := s.values[key]; ok {
		parsed, err := strconv.ParseFloat(string(entry.data), 64)
		if err != nil {
			return 0, fmt.Errorf("non-numeric value at %s: %w", key, err)
		}
		current = parsed
	}
	current += delta
	s.values[key] = memoryEntry{data: []byte(strconv.FormatFloat(current, 'f', -1, 64))}
	return current, nil
}

// HIncrBy atomically increments an integer hash field.
func (s *MemoryStore) HIncrBy(_ context.Context, key, field string, delta int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.expired(key) {
		s.purge(key)
	}
	h, ok := s.hashes[key]
	if !ok {
		h = make(map[string]string)
		s.hashes[key] = h
	}
	current, _ := strconv.ParseInt(h[field], 10, 64)
	h[field] = strconv.FormatInt(current+delta, 10)
	return nil
}

// HIncrByFloat atomically increments a float hash field.
func (s *MemoryStore) HIncrByFloat(_ context.Context, key, field string, delta float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.expired(key) {
		s.purge(key)
	}
	h, ok := s.hashes[key]
	if !ok {
		h = make(map[string]string)
		s.hashes[key] = h
	}
	current, _ := strconv.ParseFloat(h[field], 64)
	h[field] = strconv.FormatFloat(current+delta, 'f', -1, 64)
	return nil
}

// HGetAll reads a whole hash.
func (s *MemoryStore) HGetAll(_ context.Context, key string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.expired(key) {
		s.purge(key)
	}
	out := make(map[string]string, len(s.hashes[key]))
	for k, v := range s.hashes[key] {
		out[k] = v
	}
	return out, nil
}

// Expire sets or refreshes a key's TTL.
func (s *MemoryStore) Expire(_ context.Context, key string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expiry[key] = s.now().Add(ttl)
	return nil
}

// Keys lists keys matching a glob pattern.
func (s *MemoryStore) Keys(_ context.Context, pattern string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var keys []string
	match := func(key string) {
		if s.expired(key) {
			return
		}
		if ok, _ := path.Match(pattern, key); ok {
			keys = append(keys, key)
		}
	}
	for key := range s.values {
		match(key)
	}
	for key := range s.hashes {
		match(key)
	}
	for key := range s.windows {
		match(key)
	}
	return keys, nil
}

// WindowAdmit performs the sliding-window check-and-admit under the lock.
func (s *MemoryStore) WindowAdmit(_ context.Context, key string, window time.Duration, limit int, _ string) (bool, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().Unix()
	cutoff := now - int64(window.Seconds())

	live := s.windows[key][:0]
	for _, ts := range s.windows[key] {
		if ts > cutoff {
			live = append(live, ts)
		}
	}

	if len(live) >= limit {
		s.windows[key] = live
		return false, 0, nil
	}

	s.windows[key] = append(live, now)
	s.expiry[key] = s.now().Add(window)
	return true, limit - len(live) - 1, nil
}

// WindowCount counts live entries without admitting.
func (s *MemoryStore) WindowCount(_ context.Context, key string, window time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Unix() - int64(window.Seconds())
	count := 0
	for _, ts := range s.windows[key] {
		if ts > cutoff {
			count++
		}
	}
	return count, nil
}

// Ping always succeeds for the in-memory store.
func (s *MemoryStore) Ping(context.Context) error { return nil }

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }
