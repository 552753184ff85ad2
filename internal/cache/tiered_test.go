package cache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newMemory(t *testing.T) *MemoryTier {
	t.Helper()
	m, err := NewMemoryTier(64)
	require.NoError(t, err)
	return m
}

func TestDurableTTLHours(t *testing.T) {
	tests := []struct {
		days int
		want int
	}{
		{-5, 1},
		{0, 1},
		{1, 24},
		{30, 720},
		{365, 8760},
		{366, 8760},
		{1000, 8760},
		{1 << 40, 8760},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.days), func(t *testing.T) {
			assert.Equal(t, tt.want, DurableTTLHours(tt.days))
		})
	}
	assert.Equal(t, 8760*time.Hour, DurableTTL(1000))
}

func TestPutThenGetRoundTrip(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	c := NewTiered(discardLogger(), newMemory(t), nil, Options{Now: clock.Now})
	ctx := context.Background()

	c.Put(ctx, "k", "page text", time.Minute)
	got, ok := c.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, "page text", got)

	clock.Advance(59 * time.Second)
	_, ok = c.Get(ctx, "k")
	assert.True(t, ok, "entry should still be valid before its ttl")
}

func TestExpiredEntryIsNeverServed(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	local := newMemory(t)
	c := NewTiered(discardLogger(), local, nil, Options{Now: clock.Now})
	ctx := context.Background()

	c.Put(ctx, "k", "stale", time.Minute)
	clock.Advance(time.Minute) // now == expiresAt

	_, ok := c.Get(ctx, "k")
	assert.False(t, ok)
	assert.Equal(t, 0, local.Len(), "expired entry should be evicted on read")
}

func TestRepeatedPutIsIdempotent(t *testing.T) {
	c := NewTiered(discardLogger(), newMemory(t), nil, Options{})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		c.Put(ctx, "k", "v", time.Hour)
	}
	got, ok := c.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, "v", got)
}

func TestZeroTTLUsesLocalDefault(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	local := newMemory(t)
	c := NewTiered(discardLogger(), local, nil, Options{Now: clock.Now})

	c.Put(context.Background(), "k", "v", 0)

	e, ok, err := local.Get(context.Background(), "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, DefaultLocalTTL, e.ExpiresAt.Sub(e.CreatedAt))
}

func TestDurableFailureFallsBackToLocal(t *testing.T) {
	durable := new(MockTier)
	durable.On("Name").Return("postgres")
	durable.On("Get", mock.Anything, "k").Return(Entry{}, false, errors.New("dial tcp: connection refused"))

	local := newMemory(t)
	now := time.Now()
	require.NoError(t, local.Put(context.Background(), NewEntry("k", "from local", now, time.Hour)))

	c := NewTiered(discardLogger(), local, durable, Options{})
	got, ok := c.Get(context.Background(), "k")

	require.True(t, ok)
	assert.Equal(t, "from local", got)
	durable.AssertExpectations(t)

	stats := c.Stats()
	require.Len(t, stats, 2)
	assert.Equal(t, int64(1), stats[0].Errors)
	assert.Equal(t, int64(1), stats[1].Hits)
}

func TestDurableHitIsAuthoritativeAndNotCopied(t *testing.T) {
	durable := newMemory(t)
	local := newMemory(t)
	now := time.Now()
	require.NoError(t, durable.Put(context.Background(), NewEntry("k", "durable", now, time.Hour)))
	require.NoError(t, local.Put(context.Background(), NewEntry("k", "local", now, time.Hour)))
	require.NoError(t, durable.Put(context.Background(), NewEntry("only-durable", "d", now, time.Hour)))

	c := NewTiered(discardLogger(), local, durable, Options{})

	got, ok := c.Get(context.Background(), "k")
	require.True(t, ok)
	assert.Equal(t, "durable", got)

	_, ok = c.Get(context.Background(), "only-durable")
	require.True(t, ok)
	_, ok, _ = local.Get(context.Background(), "only-durable")
	assert.False(t, ok, "durable hits must not populate the local tier")
}

func TestExpiredDurableRowIsDeletedAndFallsThrough(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	expired := NewEntry("k", "old", clock.now.Add(-2*time.Hour), time.Hour)

	durable := new(MockTier)
	durable.On("Name").Return("postgres").Maybe()
	durable.On("Get", mock.Anything, "k").Return(expired, true, nil).Once()
	durable.On("Delete", mock.Anything, "k").Return(nil).Once()

	local := newMemory(t)
	require.NoError(t, local.Put(context.Background(), NewEntry("k", "fresh", clock.now, time.Hour)))

	c := NewTiered(discardLogger(), local, durable, Options{Now: clock.Now})
	got, ok := c.Get(context.Background(), "k")

	require.True(t, ok)
	assert.Equal(t, "fresh", got)
	durable.AssertExpectations(t)
}

func TestBothTiersFailingIsAMiss(t *testing.T) {
	broken := func(name string) *MockTier {
		m := new(MockTier)
		m.On("Name").Return(name)
		m.On("Get", mock.Anything, "k").Return(Entry{}, false, errors.New("unavailable"))
		return m
	}
	c := NewTiered(discardLogger(), broken("sqlite"), broken("postgres"), Options{})

	got, ok := c.Get(context.Background(), "k")
	assert.False(t, ok)
	assert.Empty(t, got)
}

func TestPutWritesDurableWithItsOwnTTL(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	durable := new(MockTier)
	durable.On("Name").Return("postgres").Maybe()
	durable.On("Put", mock.Anything, mock.MatchedBy(func(e Entry) bool {
		return e.Key == "k" && e.Payload == "v" && e.URL == "https://example.com" &&
			e.Scope == "user-1" && e.ExpiresAt.Sub(e.CreatedAt) == 48*time.Hour
	})).Return(nil).Once()

	local := newMemory(t)
	c := NewTiered(discardLogger(), local, durable, Options{
		Now:        clock.Now,
		DurableTTL: DurableTTL(2),
		Scope:      "user-1",
	})

	c.Put(context.Background(), "k", "v", time.Minute, WithSourceURL("https://example.com"))
	c.Wait()

	durable.AssertExpectations(t)
	e, ok, _ := local.Get(context.Background(), "k")
	require.True(t, ok)
	assert.Equal(t, time.Minute, e.ExpiresAt.Sub(e.CreatedAt))
}

func TestDurableWriteFailureIsSwallowed(t *testing.T) {
	durable := new(MockTier)
	durable.On("Name").Return("postgres")
	durable.On("Put", mock.Anything, mock.Anything).Return(errors.New("permission denied"))
	durable.On("Get", mock.Anything, "k").Return(Entry{}, false, nil)

	c := NewTiered(discardLogger(), newMemory(t), durable, Options{})
	c.Put(context.Background(), "k", "v", time.Hour)
	c.Wait()

	got, ok := c.Get(context.Background(), "k")
	require.True(t, ok)
	assert.Equal(t, "v", got)
}

func TestDurableWriteSurvivesCancelledRequest(t *testing.T) {
	durable := newMemory(t)
	c := NewTiered(discardLogger(), nil, durable, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c.Put(ctx, "k", "v", time.Hour)
	c.Wait()

	_, ok, _ := durable.Get(context.Background(), "k")
	assert.True(t, ok)
}

func TestConcurrentPutsOnDistinctKeys(t *testing.T) {
	c := NewTiered(discardLogger(), newMemory(t), newMemory(t), Options{})
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("k%d", i)
			c.Put(ctx, key, key+"-value", time.Hour)
			got, ok := c.Get(ctx, key)
			assert.True(t, ok)
			assert.Equal(t, key+"-value", got)
		}(i)
	}
	wg.Wait()
	c.Wait()
}

type renamed struct {
	Tier
	name string
}

func (r renamed) Name() string { return r.name }

func TestSweepAndDelete(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	local := newMemory(t)
	durable := renamed{Tier: newMemory(t), name: "durable"}
	c := NewTiered(discardLogger(), local, durable, Options{Now: clock.Now, DurableTTL: time.Hour})
	ctx := context.Background()

	c.Put(ctx, "short", "a", time.Minute)
	c.Put(ctx, "long", "b", 2*time.Hour)
	c.Wait()

	clock.Advance(90 * time.Minute)
	removed, err := c.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed["memory"])
	assert.Equal(t, int64(2), removed["durable"])

	require.NoError(t, c.Delete(ctx, "long"))
	_, ok := c.Get(ctx, "long")
	assert.False(t, ok)
}

// gatedTier holds every Put until release is closed.
type gatedTier struct {
	Tier
	release chan struct{}
}

func (g gatedTier) Put(ctx context.Context, e Entry) error {
	select {
	case <-g.release:
	case <-ctx.Done():
		return ctx.Err()
	}
	return g.Tier.Put(ctx, e)
}

func TestPutIsVisibleWhileDurableWriteIsPending(t *testing.T) {
	tests := []struct {
		name      string
		withLocal bool
	}{
		{"with local tier", true},
		{"durable only", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			inner := newMemory(t)
			require.NoError(t, inner.Put(ctx, NewEntry("k", "v1", time.Now(), time.Hour)))
			durable := gatedTier{Tier: inner, release: make(chan struct{})}

			var local Tier
			if tt.withLocal {
				local = newMemory(t)
			}
			c := NewTiered(discardLogger(), local, durable, Options{})
			c.Put(ctx, "k", "v2", time.Hour)

			got, ok := c.Get(ctx, "k")
			require.True(t, ok)
			assert.Equal(t, "v2", got, "a put is readable before its durable write lands")

			close(durable.release)
			c.Wait()

			got, ok = c.Get(ctx, "k")
			require.True(t, ok)
			assert.Equal(t, "v2", got)
			e, _, _ := inner.Get(ctx, "k")
			assert.Equal(t, "v2", e.Payload)
		})
	}
}

func TestDeleteDropsPendingWrite(t *testing.T) {
	ctx := context.Background()
	durable := gatedTier{Tier: newMemory(t), release: make(chan struct{})}
	c := NewTiered(discardLogger(), newMemory(t), durable, Options{})

	c.Put(ctx, "k", "v", time.Hour)
	require.NoError(t, c.Delete(ctx, "k"))

	_, ok := c.Get(ctx, "k")
	assert.False(t, ok)
	close(durable.release)
	c.Wait()
}

func TestHangingDurableReadTimesOutToLocal(t *testing.T) {
	durable := new(MockTier)
	durable.On("Name").Return("postgres")
	durable.On("Get", mock.Anything, "k").
		Run(func(args mock.Arguments) { <-args.Get(0).(context.Context).Done() }).
		Return(Entry{}, false, context.DeadlineExceeded)

	local := newMemory(t)
	require.NoError(t, local.Put(context.Background(), NewEntry("k", "from local", time.Now(), time.Hour)))

	c := NewTiered(discardLogger(), local, durable, Options{TierTimeout: 20 * time.Millisecond})

	start := time.Now()
	got, ok := c.Get(context.Background(), "k")
	require.True(t, ok)
	assert.Equal(t, "from local", got)
	assert.Less(t, time.Since(start), 2*time.Second)

	stats := c.Stats()
	require.Len(t, stats, 2)
	assert.Equal(t, int64(1), stats[0].Errors)
	assert.Equal(t, int64(1), stats[1].Hits)
}

func TestHangingDurableWriteDoesNotBlockPut(t *testing.T) {
	durable := new(MockTier)
	durable.On("Name").Return("postgres")
	durable.On("Put", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { <-args.Get(0).(context.Context).Done() }).
		Return(context.DeadlineExceeded).Once()
	durable.On("Get", mock.Anything, "k").Return(Entry{}, false, nil)

	c := NewTiered(discardLogger(), newMemory(t), durable, Options{TierTimeout: 200 * time.Millisecond})

	c.Put(context.Background(), "k", "v", time.Hour)
	_, pending := c.pendingEntry("k")
	assert.True(t, pending, "put returns while the durable write is still running")

	c.Wait()
	got, ok := c.Get(context.Background(), "k")
	require.True(t, ok)
	assert.Equal(t, "v", got)
	durable.AssertExpectations(t)
}
