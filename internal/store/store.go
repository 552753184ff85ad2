// Package store holds the durable, remote tiers of the content cache. Every
// backend here satisfies cache.Tier.
package store

import (
	"page-assist/internal/cache"
)

// DefaultTable is the logical table holding cached page content.
const DefaultTable = "content_cache"

var (
	_ cache.Tier = (*PostgresStore)(nil)
	_ cache.Tier = (*RedisStore)(nil)
)
