package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultTTL applies when NewCache is given a non-positive ttl
const DefaultTTL = 10 * time.Minute

// Cache stores JSON-encoded results under prefix:cache:
// ⭐ SSOT: 캐시 헬퍼는 여기서만
type Cache struct {
	client *Client
	prefix string
	ttl    time.Duration
}

// NewCache creates a cache over client; a disabled client makes it a no-op
func NewCache(client *Client, prefix string, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{client: client, prefix: prefix, ttl: ttl}
}

func (c *Cache) key(k string) string {
	return c.prefix + ":cache:" + k
}

// Get decodes the entry into dest; false means a miss
func (c *Cache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	if !c.client.Enabled() {
		return false, nil
	}

	raw, err := c.client.Redis().Get(ctx, c.key(key)).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("cache get %s: %w", key, err)
	}

	if err := json.Unmarshal(raw, dest); err != nil {
		return false, fmt.Errorf("cache decode %s: %w", key, err)
	}
	return true, nil
}

// Set stores value; ttl <= 0 uses the cache TTL
func (c *Cache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if !c.client.Enabled() {
		return nil
	}
	if ttl <= 0 {
		ttl = c.ttl
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache encode %s: %w", key, err)
	}
	if err := c.client.Redis().Set(ctx, c.key(key), raw, ttl).Err(); err != nil {
		return fmt.Errorf("cache set %s: %w", key, err)
	}
	return nil
}

// Delete drops one entry
func (c *Cache) Delete(ctx context.Context, key string) error {
	if !c.client.Enabled() {
		return nil
	}
	return c.client.Redis().Del(ctx, c.key(key)).Err()
}

// Keys embed the snapshot fingerprint: a changed series never reads a stale
// entry and writes need no invalidation.

// RollupKey identifies one rollup query over one snapshot
func RollupKey(fingerprint, freq, from, to string) string {
	return fmt.Sprintf("rollup:%s:%s:%s:%s", fingerprint, freq, from, to)
}

// KPIKey identifies the KPI snapshot for one series snapshot
func KPIKey(fingerprint string, fiscalStartMonth int) string {
	return fmt.Sprintf("kpi:%s:fy%02d", fingerprint, fiscalStartMonth)
}
