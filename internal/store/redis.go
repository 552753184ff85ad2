package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"page-assist/internal/cache"
)

// Key prefix for cached page content
const contentKeyPrefix = "content:"

// RedisStore is the durable tier on Redis. Each entry is stored as JSON under
// its key with EXPIREAT set to the entry's expiry, so Redis evicts on its own.
type RedisStore struct {
	client *redis.Client
}

// NewRedis creates a new Redis tier client
func NewRedis(ctx context.Context, addr, password string) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return &RedisStore{client: client}, nil
}

func (s *RedisStore) Name() string { return "redis" }

func (s *RedisStore) Get(ctx context.Context, key string) (cache.Entry, bool, error) {
	data, err := s.client.Get(ctx, contentKeyPrefix+key).Bytes()
	if err == redis.Nil {
		return cache.Entry{}, false, nil // Cache miss
	}
	if err != nil {
		return cache.Entry{}, false, err
	}

	var e cache.Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return cache.Entry{}, false, fmt.Errorf("decode cached entry %s: %w", key, err)
	}
	return e, true, nil
}

func (s *RedisStore) Put(ctx context.Context, e cache.Entry) error {
	if !e.ExpiresAt.After(e.CreatedAt) {
		return cache.ErrInvalidEntry
	}
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return s.client.SetArgs(ctx, contentKeyPrefix+e.Key, data, redis.SetArgs{ExpireAt: e.ExpiresAt}).Err()
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, contentKeyPrefix+key).Err()
}

// DeleteExpired removes entries whose recorded expiry has passed but which
// Redis still holds, e.g. written by an instance with a skewed clock.
func (s *RedisStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	iter := s.client.Scan(ctx, 0, contentKeyPrefix+"*", 0).Iterator()

	pipe := s.client.Pipeline()
	var count int64

	for iter.Next(ctx) {
		key := iter.Val()
		data, err := s.client.Get(ctx, key).Bytes()
		if err != nil {
			continue // gone between SCAN and GET
		}
		var e cache.Entry
		if err := json.Unmarshal(data, &e); err != nil || !e.ValidAt(now) {
			pipe.Del(ctx, key)
			count++
		}
	}

	if err := iter.Err(); err != nil {
		return 0, err
	}

	if count > 0 {
		if _, err := pipe.Exec(ctx); err != nil {
			return 0, err
		}
	}
	return count, nil
}

// Close closes the Redis connection
func (s *RedisStore) Close() error {
	return s.client.Close()
}
