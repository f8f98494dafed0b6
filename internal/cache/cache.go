// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package cache persists API replies, processed entities and geocoding
// results with per-entry expiration. Entries are partitioned into tiers,
// each with its own TTL. A missing, expired or corrupted entry reads as
// absent; corruption is never fatal.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/pdiddy/cafe-collector/pkg/types"
)

// Tier names a partition of the store.
type Tier string

const (
	TierAPIResponses Tier = "api_responses"
	TierProcessed    Tier = "processed_data"
	TierGeocoding    Tier = "geocoding"
)

// Tiers lists every tier in a stable order.
var Tiers = []Tier{TierAPIResponses, TierProcessed, TierGeocoding}

// Valid reports whether t is a known tier.
func (t Tier) Valid() bool {
	for _, known := range Tiers {
		if t == known {
			return true
		}
	}
	return false
}

// TTL returns the configured lifetime for the tier.
func TTL(cfg types.CacheConfig, t Tier) time.Duration {
	switch t {
	case TierAPIResponses:
		return cfg.APIResponseTTL
	case TierProcessed:
		return cfg.ProcessedTTL
	case TierGeocoding:
		return cfg.GeocodingTTL
	default:
		return 0
	}
}

// Entry is one stored value with its expiration metadata.
type Entry struct {
	Tier     Tier            `json:"tier"`
	Key      string          `json:"key"`
	Value    json.RawMessage `json:"value"`
	StoredAt time.Time       `json:"stored_at"`
	TTL      time.Duration   `json:"ttl"`
}

// Expired reports whether the entry is past StoredAt+TTL at now.
// A non-positive TTL never expires.
func (e Entry) Expired(now time.Time) bool {
	if e.TTL <= 0 {
		return false
	}
	return now.After(e.StoredAt.Add(e.TTL))
}

// Store is a tiered key-value store with expiration.
type Store interface {
	// Get returns the value stored under tier/key. ok is false when the
	// entry is missing, expired or not valid JSON. Expired entries are
	// left in place.
	Get(ctx context.Context, tier Tier, key string) (value json.RawMessage, ok bool, err error)

	// Put stores value under tier/key and returns once the write is durable.
	Put(ctx context.Context, tier Tier, key string, value json.RawMessage, ttl time.Duration) error

	// EvictExpired deletes every expired entry and returns how many were removed.
	EvictExpired(ctx context.Context) (int, error)

	// Clear deletes every entry of a tier and returns how many were removed.
	Clear(ctx context.Context, tier Tier) (int, error)

	// Close releases the underlying connection.
	Close() error
}

// Open returns the store selected by cfg.Backend.
func Open(cfg types.CacheConfig) (Store, error) {
	switch cfg.Backend {
	case types.CacheSQLite, "":
		return OpenSQLite(cfg.Dir)
	case types.CacheRedis:
		return OpenRedis(cfg.RedisAddr, cfg.RedisPrefix)
	default:
		return nil, fmt.Errorf("%w: unknown cache backend %q", types.ErrFatalConfig, cfg.Backend)
	}
}

// Key derives a fixed-length key from its parts. Parts are length-prefixed
// so ("ab", "c") and ("a", "bc") differ.
func Key(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		fmt.Fprintf(h, "%d:%s|", len(p), p)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// GetJSON reads tier/key and unmarshals it into a T. A value that does not
// unmarshal into T is reported as a miss. Store errors are logged and
// reported as a miss so a broken cache only costs a remote call.
func GetJSON[T any](ctx context.Context, s Store, tier Tier, key string) (T, bool) {
	var v T
	raw, ok, err := s.Get(ctx, tier, key)
	if err != nil {
		slog.Warn("cache read failed", "tier", tier, "key", key, "error", err)
		return v, false
	}
	if !ok {
		return v, false
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		slog.Debug("cache entry does not match expected shape", "tier", tier, "key", key, "error", err)
		var zero T
		return zero, false
	}
	return v, true
}

// PutJSON marshals v and stores it under tier/key.
func PutJSON(ctx context.Context, s Store, tier Tier, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling cache value: %w", err)
	}
	return s.Put(ctx, tier, key, data, ttl)
}
