package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jiliangzhu/MarketPulse-X/internal/domain"
)

// TickCache implements domain.TickCache using Redis hashes.
// Each option's last price is stored as a hash at key "tick:{optionID}" with
// fields "price" and "ts" (Unix nanosecond timestamp).
type TickCache struct {
	rdb *redis.Client
}

// NewTickCache creates a TickCache backed by the given Client.
func NewTickCache(c *Client) *TickCache {
	return &TickCache{rdb: c.Underlying()}
}

func tickKey(optionID string) string {
	return "tick:" + optionID
}

// SetPrice stores the latest price and timestamp for an option.
func (tc *TickCache) SetPrice(ctx context.Context, optionID string, price float64, ts time.Time) error {
	key := tickKey(optionID)
	fields := map[string]interface{}{
		"price": strconv.FormatFloat(price, 'f', -1, 64),
		"ts":    strconv.FormatInt(ts.UnixNano(), 10),
	}
	if err := tc.rdb.HSet(ctx, key, fields).Err(); err != nil {
		return fmt.Errorf("redis: set tick price %s: %w", optionID, err)
	}
	return nil
}

// GetPrices retrieves the last prices for multiple options using a pipeline.
// Options whose keys do not exist are silently omitted from the result map.
func (tc *TickCache) GetPrices(ctx context.Context, optionIDs []string) (map[string]float64, error) {
	if len(optionIDs) == 0 {
		return map[string]float64{}, nil
	}

	pipe := tc.rdb.Pipeline()
	cmds := make(map[string]*redis.MapStringStringCmd, len(optionIDs))
	for _, id := range optionIDs {
		cmds[id] = pipe.HGetAll(ctx, tickKey(id))
	}

	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis: get tick prices pipeline: %w", err)
	}

	result := make(map[string]float64, len(optionIDs))
	for id, cmd := range cmds {
		vals, err := cmd.Result()
		if err != nil {
			continue
		}
		priceStr, ok := vals["price"]
		if !ok {
			continue
		}
		price, err := strconv.ParseFloat(priceStr, 64)
		if err != nil {
			continue
		}
		result[id] = price
	}

	return result, nil
}

// Compile-time interface check.
var _ domain.TickCache = (*TickCache)(nil)
