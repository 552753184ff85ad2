package cache

import (
	"context"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

const defaultMemoryCapacity = 512

// MemoryTier is the process-local tier: a bounded LRU of entries. Expiry is
// checked on read by the TieredCache and enforced by DeleteExpired.
type MemoryTier struct {
	entries *lru.Cache[string, Entry]
}

// NewMemoryTier creates a local tier holding at most capacity entries.
func NewMemoryTier(capacity int) (*MemoryTier, error) {
	if capacity <= 0 {
		capacity = defaultMemoryCapacity
	}
	entries, err := lru.New[string, Entry](capacity)
	if err != nil {
		return nil, fmt.Errorf("create memory tier: %w", err)
	}
	return &MemoryTier{entries: entries}, nil
}

func (m *MemoryTier) Name() string { return "memory" }

func (m *MemoryTier) Get(_ context.Context, key string) (Entry, bool, error) {
	e, ok := m.entries.Get(key)
	return e, ok, nil
}

func (m *MemoryTier) Put(_ context.Context, entry Entry) error {
	if err := checkEntry(entry); err != nil {
		return err
	}
	m.entries.Add(entry.Key, entry)
	return nil
}

func (m *MemoryTier) Delete(_ context.Context, key string) error {
	m.entries.Remove(key)
	return nil
}

func (m *MemoryTier) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	var removed int64
	for _, key := range m.entries.Keys() {
		e, ok := m.entries.Peek(key)
		if ok && !e.ValidAt(now) {
			m.entries.Remove(key)
			removed++
		}
	}
	return removed, nil
}

// Len is the number of entries currently held, expired or not.
func (m *MemoryTier) Len() int { return m.entries.Len() }

func (m *MemoryTier) Close() error {
	m.entries.Purge()
	return nil
}
