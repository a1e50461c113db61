package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jiliangzhu/MarketPulse-X/internal/domain"
)

// DedupeCache implements domain.DedupeCache using Redis SETNX with a TTL.
// A key that is acquired stays held until the TTL expires, suppressing
// duplicate alerts within the cooldown window.
type DedupeCache struct {
	rdb *redis.Client
}

// NewDedupeCache creates a DedupeCache backed by the given Client.
func NewDedupeCache(c *Client) *DedupeCache {
	return &DedupeCache{rdb: c.Underlying()}
}

func dedupeKey(key string) string {
	return "dedupe:" + key
}

// Acquire attempts to claim key for ttl. It returns true when the key was
// free, false when a prior claim is still live.
func (d *DedupeCache) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := d.rdb.SetNX(ctx, dedupeKey(key), "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis: acquire dedupe %s: %w", key, err)
	}
	return ok, nil
}

var _ domain.DedupeCache = (*DedupeCache)(nil)
