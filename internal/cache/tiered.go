package cache

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

const (
	defaultTierTimeout = 10 * time.Second

	// Durable retention is configured in days and clamped to [1h, 1y].
	minDurableHours = 1
	maxDurableHours = 8760
)

// DurableTTLHours converts a retention in days to hours, clamped to 1..8760.
func DurableTTLHours(days int) int {
	hours := days * 24
	if days > maxDurableHours/24+1 {
		// avoid overflow on absurd inputs before clamping
		hours = maxDurableHours
	}
	if hours < minDurableHours {
		return minDurableHours
	}
	if hours > maxDurableHours {
		return maxDurableHours
	}
	return hours
}

// DurableTTL is DurableTTLHours as a duration.
func DurableTTL(days int) time.Duration {
	return time.Duration(DurableTTLHours(days)) * time.Hour
}

// Options tunes a TieredCache.
type Options struct {
	// LocalTTL applies to Put calls that pass no TTL.
	LocalTTL time.Duration
	// DurableTTL is the lifetime of entries written to the durable tier.
	// Zero reuses the TTL passed to Put.
	DurableTTL time.Duration
	// TierTimeout bounds every call into a single tier.
	TierTimeout time.Duration
	// Scope is recorded on every entry written by this cache.
	Scope string
	// Now is the clock; tests replace it.
	Now func() time.Time
}

// TierStats counts outcomes of reads against one tier.
type TierStats struct {
	Tier   string `json:"tier"`
	Hits   int64  `json:"hits"`
	Misses int64  `json:"misses"`
	Errors int64  `json:"errors"`
}

type counters struct {
	hits   atomic.Int64
	misses atomic.Int64
	errors atomic.Int64
}

// TieredCache reads the durable tier first and falls back to the local tier.
// A key whose durable write is still running is served from that write.
// Failures inside a tier never reach the caller: a broken tier reads as a miss.
type TieredCache struct {
	log     *slog.Logger
	durable Tier
	local   Tier
	opts    Options

	durableStats counters
	localStats   counters

	pending sync.WaitGroup

	// writing holds the newest entry per key whose durable write has not
	// finished yet. Reads serve it so a Put is visible immediately.
	mu      sync.Mutex
	writing map[string]*inflight
}

type inflight struct {
	entry Entry
	n     int
}

// NewTiered builds a cache over local and an optional durable tier. Either
// tier may be nil, meaning unconfigured.
func NewTiered(log *slog.Logger, local, durable Tier, opts Options) *TieredCache {
	if opts.LocalTTL <= 0 {
		opts.LocalTTL = DefaultLocalTTL
	}
	if opts.TierTimeout <= 0 {
		opts.TierTimeout = defaultTierTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if log == nil {
		log = slog.Default()
	}
	return &TieredCache{
		log:     log.With("component", "content_cache"),
		durable: durable,
		local:   local,
		opts:    opts,
		writing: make(map[string]*inflight),
	}
}

// Get returns the cached payload for key. A miss and a tier failure look the same.
func (c *TieredCache) Get(ctx context.Context, key string) (string, bool) {
	if e, ok := c.pendingEntry(key); ok && e.ValidAt(c.opts.Now()) {
		return e.Payload, true
	}
	if c.durable != nil {
		// Durable is authoritative: a hit is not copied into the local tier.
		if v, ok := c.read(ctx, c.durable, &c.durableStats, key); ok {
			return v, true
		}
	}
	if c.local != nil {
		if v, ok := c.read(ctx, c.local, &c.localStats, key); ok {
			return v, true
		}
	}
	return "", false
}

func (c *TieredCache) read(ctx context.Context, tier Tier, stats *counters, key string) (string, bool) {
	tctx, cancel := context.WithTimeout(ctx, c.opts.TierTimeout)
	defer cancel()

	entry, ok, err := tier.Get(tctx, key)
	if err != nil {
		stats.errors.Add(1)
		c.log.Warn("cache tier read failed", "tier", tier.Name(), "key", key, "err", err)
		return "", false
	}
	if !ok {
		stats.misses.Add(1)
		return "", false
	}
	if !entry.ValidAt(c.opts.Now()) {
		stats.misses.Add(1)
		if err := tier.Delete(tctx, key); err != nil {
			c.log.Warn("cache tier evict failed", "tier", tier.Name(), "key", key, "err", err)
		}
		return "", false
	}
	stats.hits.Add(1)
	return entry.Payload, true
}

// PutOption decorates the entry written by Put.
type PutOption func(*Entry)

// WithSourceURL records the page url next to the payload.
func WithSourceURL(u string) PutOption {
	return func(e *Entry) { e.URL = u }
}

// Put writes value to every configured tier. The local write completes before
// Put returns; the durable write runs in the background and only logs failures.
func (c *TieredCache) Put(ctx context.Context, key, value string, ttl time.Duration, opts ...PutOption) {
	if ttl <= 0 {
		ttl = c.opts.LocalTTL
	}
	entry := NewEntry(key, value, c.opts.Now(), ttl)
	entry.Scope = c.opts.Scope
	for _, opt := range opts {
		opt(&entry)
	}

	if c.local != nil {
		tctx, cancel := context.WithTimeout(ctx, c.opts.TierTimeout)
		if err := c.local.Put(tctx, entry); err != nil {
			c.log.Warn("cache tier write failed", "tier", c.local.Name(), "key", key, "err", err)
		}
		cancel()
	}

	if c.durable == nil {
		return
	}
	durableEntry := entry
	if c.opts.DurableTTL > 0 {
		durableEntry.ExpiresAt = entry.CreatedAt.Add(c.opts.DurableTTL)
	}
	// The write outlives a cancelled request; it is bounded by the tier timeout only.
	bg := context.WithoutCancel(ctx)
	c.begin(entry)
	c.pending.Add(1)
	go func() {
		defer c.pending.Done()
		defer c.end(key)
		tctx, cancel := context.WithTimeout(bg, c.opts.TierTimeout)
		defer cancel()
		if err := c.durable.Put(tctx, durableEntry); err != nil {
			c.log.Warn("cache tier write failed", "tier", c.durable.Name(), "key", key, "err", err)
		}
	}()
}

func (c *TieredCache) begin(e Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	w, ok := c.writing[e.Key]
	if !ok {
		w = &inflight{}
		c.writing[e.Key] = w
	}
	w.entry = e
	w.n++
}

func (c *TieredCache) end(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	w, ok := c.writing[key]
	if !ok {
		return
	}
	if w.n--; w.n <= 0 {
		delete(c.writing, key)
	}
}

func (c *TieredCache) pendingEntry(key string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if w, ok := c.writing[key]; ok {
		return w.entry, true
	}
	return Entry{}, false
}

// Delete invalidates key in every configured tier.
func (c *TieredCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	if w, ok := c.writing[key]; ok {
		// the pending write still lands; it is no longer served from memory
		w.entry = Entry{}
	}
	c.mu.Unlock()

	var errs []error
	for _, tier := range c.tiers() {
		tctx, cancel := context.WithTimeout(ctx, c.opts.TierTimeout)
		if err := tier.Delete(tctx, key); err != nil {
			errs = append(errs, err)
		}
		cancel()
	}
	return errors.Join(errs...)
}

// Sweep deletes expired entries from every tier and returns the count per tier.
func (c *TieredCache) Sweep(ctx context.Context) (map[string]int64, error) {
	now := c.opts.Now()
	removed := make(map[string]int64, 2)
	var errs []error
	for _, tier := range c.tiers() {
		tctx, cancel := context.WithTimeout(ctx, c.opts.TierTimeout)
		n, err := tier.DeleteExpired(tctx, now)
		cancel()
		if err != nil {
			errs = append(errs, err)
			c.log.Warn("cache sweep failed", "tier", tier.Name(), "err", err)
			continue
		}
		removed[tier.Name()] = n
	}
	return removed, errors.Join(errs...)
}

// Stats reports read outcomes per configured tier.
func (c *TieredCache) Stats() []TierStats {
	var out []TierStats
	if c.durable != nil {
		out = append(out, snapshot(c.durable.Name(), &c.durableStats))
	}
	if c.local != nil {
		out = append(out, snapshot(c.local.Name(), &c.localStats))
	}
	return out
}

func snapshot(name string, s *counters) TierStats {
	return TierStats{Tier: name, Hits: s.hits.Load(), Misses: s.misses.Load(), Errors: s.errors.Load()}
}

// Wait blocks until background durable writes have finished.
func (c *TieredCache) Wait() {
	c.pending.Wait()
}

// Close drains pending writes and closes every tier.
func (c *TieredCache) Close() error {
	c.Wait()
	var errs []error
	for _, tier := range c.tiers() {
		if err := tier.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (c *TieredCache) tiers() []Tier {
	out := make([]Tier, 0, 2)
	if c.durable != nil {
		out = append(out, c.durable)
	}
	if c.local != nil {
		out = append(out, c.local)
	}
	return out
}
