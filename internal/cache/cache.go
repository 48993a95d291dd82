// Package cache provides Redis-backed read caching for hot reservation
// views and the tag-based invalidation performed after every successful
// mutation. All operations degrade to no-ops when Redis is not configured.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache wraps an optional Redis client.
type Cache struct {
	rdb *redis.Client
	ttl time.Duration
}

// New constructs a cache over the given client. A nil client disables
// caching entirely.
func New(rdb *redis.Client, ttl time.Duration) *Cache {
	return &Cache{rdb: rdb, ttl: ttl}
}

// ReservationKey is the cache tag for one reservation's aggregate view.
func ReservationKey(id int64) string { return fmt.Sprintf("reservation:%d", id) }

// CostKey is the cache tag for one reservation's computed cost.
func CostKey(id int64) string { return fmt.Sprintf("reservation:%d:cost", id) }

// CategoryKey is the cache tag for a pricing category.
func CategoryKey(id int64) string { return fmt.Sprintf("category:%d", id) }

// BuildingKey is the cache tag for a building's notification recipients.
func BuildingKey(id int64) string { return fmt.Sprintf("building:%d:recipients", id) }

// FacilityKey is the cache tag for a facility.
func FacilityKey(id int64) string { return fmt.Sprintf("facility:%d", id) }

// Read loads a cached JSON value into out. Returns false on miss, decode
// error, or when caching is disabled.
func (c *Cache) Read(ctx context.Context, key string, out any) bool {
	if c == nil || c.rdb == nil || c.ttl <= 0 {
		return false
	}
	val, err := c.rdb.Get(ctx, key).Result()
	if err != nil {
		return false
	}
	if err := json.Unmarshal([]byte(val), out); err != nil {
		return false
	}
	return true
}

// Write stores a JSON value under key with the configured TTL. Errors are
// ignored; the cache is advisory.
func (c *Cache) Write(ctx context.Context, key string, val any) {
	if c == nil || c.rdb == nil || c.ttl <= 0 {
		return
	}
	data, err := json.Marshal(val)
	if err != nil {
		return
	}
	_ = c.rdb.Set(ctx, key, data, c.ttl).Err()
}

// Invalidate drops the given keys. Called immediately after each successful
// mutation so no stale status or cost figure outlives a commit.
func (c *Cache) Invalidate(ctx context.Context, keys ...string) {
	if c == nil || c.rdb == nil || len(keys) == 0 {
		return
	}
	_ = c.rdb.Del(ctx, keys...).Err()
}

// Ping checks the Redis connection for readiness probes.
func (c *Cache) Ping(ctx context.Context) error {
	if c == nil || c.rdb == nil {
		return nil
	}
	return c.rdb.Ping(ctx).Err()
}
