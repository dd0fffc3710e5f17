package store

import (
	"context"
	"path"
	"strconv"
	"sync"
	"time"
)

// Memory is an in-process Store with the same TTL semantics as the Redis
// adapter. It exists for tests: the clock is injectable, so expiry can be
// exercised without wall-clock sleeps.
type Memory struct {
	mu    sync.RWMutex
	items map[string]memoryItem
	now   func() time.Time
}

type memoryItem struct {
	value     string
	expiresAt time.Time // zero means no expiry
}

func NewMemory() *Memory {
	return &Memory{
		items: make(map[string]memoryItem),
		now:   time.Now,
	}
}

// SetClock replaces the time source. Not safe to call concurrently with
// store operations.
func (m *Memory) SetClock(now func() time.Time) {
	m.now = now
}

func (m *Memory) Put(ctx context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	item := memoryItem{value: value}
	if ttl > 0 {
		item.expiresAt = m.now().Add(ttl)
	}
	m.items[key] = item
	return nil
}

func (m *Memory) Get(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, ok := m.items[key]
	if !ok || m.expired(item) {
		delete(m.items, key)
		return "", ErrNotFound
	}
	return item.value, nil
}

func (m *Memory) Delete(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, key := range keys {
		delete(m.items, key)
	}
	return nil
}

func (m *Memory) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var count int64
	if item, ok := m.items[key]; ok && !m.expired(item) {
		parsed, err := strconv.ParseInt(item.value, 10, 64)
		if err == nil {
			count = parsed
		}
	}
	count++

	item := memoryItem{value: strconv.FormatInt(count, 10)}
	if ttl > 0 {
		item.expiresAt = m.now().Add(ttl)
	}
	m.items[key] = item
	return count, nil
}

func (m *Memory) Scan(ctx context.Context, pattern string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var keys []string
	for key, item := range m.items {
		if m.expired(item) {
			delete(m.items, key)
			continue
		}
		if ok, err := path.Match(pattern, key); err == nil && ok {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

func (m *Memory) expired(item memoryItem) bool {
	return !item.expiresAt.IsZero() && m.now().After(item.expiresAt)
}
