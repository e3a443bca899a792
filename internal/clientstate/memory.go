package clientstate

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	value     string
	expiresAt time.Time
	updatedAt time.Time
}

type Memory struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

var (
	_ Store   = (*Memory)(nil)
	_ Sweeper = (*Memory)(nil)
)

func NewMemory() *Memory {
	return &Memory{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (m *Memory) WithClock(now func() time.Time) *Memory {
	m.now = now
	return m
}

func (m *Memory) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[key]
	if !ok {
		return "", ErrNotFound
	}
	if !entry.expiresAt.IsZero() && !m.now().Before(entry.expiresAt) {
		delete(m.entries, key)
		return "", ErrNotFound
	}

	return entry.value, nil
}

func (m *Memory) Set(_ context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	entry := memoryEntry{value: value, updatedAt: now}
	if ttl > 0 {
		entry.expiresAt = now.Add(ttl)
	}
	m.entries[key] = entry

	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.entries, key)
	return nil
}

func (m *Memory) Sweep(_ context.Context, staleBefore time.Time, batchSize int) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	var deleted int64
	for key, entry := range m.entries {
		if batchSize > 0 && deleted >= int64(batchSize) {
			break
		}
		expired := !entry.expiresAt.IsZero() && !now.Before(entry.expiresAt)
		if expired || entry.updatedAt.Before(staleBefore) {
			delete(m.entries, key)
			deleted++
		}
	}

	return deleted, nil
}
