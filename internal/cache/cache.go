package cache

import (
	"context"
	"errors"
	"time"
)

// DefaultLocalTTL is the local tier lifetime when a caller passes no TTL.
const DefaultLocalTTL = time.Hour

// ErrInvalidEntry is returned by tiers asked to store an entry that would be
// expired on arrival.
var ErrInvalidEntry = errors.New("cache entry must expire after it is created")

// Entry is one cached extraction result.
type Entry struct {
	Key       string    `json:"key"`
	URL       string    `json:"url,omitempty"`
	Payload   string    `json:"payload"`
	Scope     string    `json:"scope,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// NewEntry stamps payload with a lifetime starting at now.
func NewEntry(key, payload string, now time.Time, ttl time.Duration) Entry {
	return Entry{Key: key, Payload: payload, CreatedAt: now, ExpiresAt: now.Add(ttl)}
}

// ValidAt reports whether the entry may be served at now.
func (e Entry) ValidAt(now time.Time) bool {
	return now.Before(e.ExpiresAt)
}

// Tier is one storage layer of the content cache.
//
// Get returns (entry, true, nil) on hit and (Entry{}, false, nil) on miss; an
// I/O failure is (Entry{}, false, err). Tiers may return expired rows, the
// TieredCache never serves them.
type Tier interface {
	Name() string
	Get(ctx context.Context, key string) (Entry, bool, error)
	Put(ctx context.Context, entry Entry) error
	Delete(ctx context.Context, key string) error
	// DeleteExpired removes every entry whose ExpiresAt is not after now.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
	Close() error
}

func checkEntry(e Entry) error {
	if e.Key == "" || !e.ExpiresAt.After(e.CreatedAt) {
		return ErrInvalidEntry
	}
	return nil
}
