// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps entries in Redis under "<prefix>:<tier>:<key>". Each value
// is an Entry envelope so expiry follows the same rule as SQLiteStore; the
// Redis TTL only reclaims memory afterwards.
type RedisStore struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

// OpenRedis connects to addr and verifies the connection.
func OpenRedis(addr, prefix string) (*RedisStore, error) {
	if addr == "" {
		return nil, fmt.Errorf("redis cache backend requires cache.redis_addr")
	}
	if prefix == "" {
		prefix = "cafe-collector"
	}
	client := redis.NewClient(&redis.Options{Addr: addr})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis at %s: %w", addr, err)
	}
	return NewRedisStore(client, prefix), nil
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix, now: time.Now}
}

// SetClock replaces the time source used for expiry decisions.
func (s *RedisStore) SetClock(now func() time.Time) {
	s.now = now
}

func (s *RedisStore) redisKey(tier Tier, key string) string {
	return s.prefix + ":" + string(tier) + ":" + key
}

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, tier Tier, key string) (json.RawMessage, bool, error) {
	data, err := s.client.Get(ctx, s.redisKey(tier, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading cache entry %s/%s: %w", tier, key, err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, false, nil
	}
	if entry.Expired(s.now()) || !json.Valid(entry.Value) {
		return nil, false, nil
	}
	return entry.Value, true, nil
}

// Put implements Store.
func (s *RedisStore) Put(ctx context.Context, tier Tier, key string, value json.RawMessage, ttl time.Duration) error {
	entry := Entry{Tier: tier, Key: key, Value: value, StoredAt: s.now(), TTL: ttl}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshaling cache entry: %w", err)
	}
	var expiration time.Duration
	if ttl > 0 {
		expiration = ttl + time.Hour
	}
	if err := s.client.Set(ctx, s.redisKey(tier, key), data, expiration).Err(); err != nil {
		return fmt.Errorf("writing cache entry %s/%s: %w", tier, key, err)
	}
	return nil
}

// EvictExpired implements Store.
func (s *RedisStore) EvictExpired(ctx context.Context) (int, error) {
	removed := 0
	err := s.scan(ctx, s.prefix+":*", func(k string) error {
		data, err := s.client.Get(ctx, k).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}
		var entry Entry
		if json.Unmarshal(data, &entry) == nil && !entry.Expired(s.now()) {
			return nil
		}
		n, err := s.client.Del(ctx, k).Result()
		removed += int(n)
		return err
	})
	if err != nil {
		return removed, fmt.Errorf("evicting expired entries: %w", err)
	}
	return removed, nil
}

// Clear implements Store.
func (s *RedisStore) Clear(ctx context.Context, tier Tier) (int, error) {
	removed := 0
	err := s.scan(ctx, s.redisKey(tier, "*"), func(k string) error {
		n, err := s.client.Del(ctx, k).Result()
		removed += int(n)
		return err
	})
	if err != nil {
		return removed, fmt.Errorf("clearing tier %s: %w", tier, err)
	}
	return removed, nil
}

func (s *RedisStore) scan(ctx context.Context, match string, fn func(string) error) error {
	iter := s.client.Scan(ctx, 0, match, 100).Iterator()
	for iter.Next(ctx) {
		if err := fn(iter.Val()); err != nil {
			return err
		}
	}
	return iter.Err()
}

// Close releases the client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
