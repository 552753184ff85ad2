package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryTierRejectsInvalidEntry(t *testing.T) {
	m := newMemory(t)
	now := time.Now()

	err := m.Put(context.Background(), Entry{Key: "k", Payload: "v", CreatedAt: now, ExpiresAt: now})
	assert.ErrorIs(t, err, ErrInvalidEntry)
}

func TestMemoryTierLastWriterWins(t *testing.T) {
	m := newMemory(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, m.Put(ctx, NewEntry("k", "first", now, time.Hour)))
	require.NoError(t, m.Put(ctx, NewEntry("k", "second", now, time.Hour)))

	e, ok, err := m.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "second", e.Payload)
}

func TestMemoryTierEvictsLeastRecentlyUsed(t *testing.T) {
	m, err := NewMemoryTier(2)
	require.NoError(t, err)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, m.Put(ctx, NewEntry("a", "1", now, time.Hour)))
	require.NoError(t, m.Put(ctx, NewEntry("b", "2", now, time.Hour)))
	_, _, _ = m.Get(ctx, "a")
	require.NoError(t, m.Put(ctx, NewEntry("c", "3", now, time.Hour)))

	_, ok, _ := m.Get(ctx, "b")
	assert.False(t, ok)
	_, ok, _ = m.Get(ctx, "a")
	assert.True(t, ok)
}

func TestMemoryTierDeleteExpired(t *testing.T) {
	m := newMemory(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, m.Put(ctx, NewEntry("old", "1", now.Add(-2*time.Hour), time.Hour)))
	require.NoError(t, m.Put(ctx, NewEntry("new", "2", now, time.Hour)))

	n, err := m.DeleteExpired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, 1, m.Len())
}
