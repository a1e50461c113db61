package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/jiliangzhu/MarketPulse-X/internal/domain"
)

// releaseScript deletes the lock key only when it still holds the caller's
// token, so a worker whose lock expired cannot release a successor's lock.
const releaseScript = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`

// LockManager implements domain.LockManager with SETNX plus TTL. The
// retention worker and the risk counters use it to serialize across
// processes.
type LockManager struct {
	rdb     *redis.Client
	release *redis.Script
}

var _ domain.LockManager = (*LockManager)(nil)

// NewLockManager creates a LockManager on the shared client.
func NewLockManager(c *Client) *LockManager {
	return &LockManager{
		rdb:     c.Underlying(),
		release: redis.NewScript(releaseScript),
	}
}

func lockKey(key string) string {
	return "lock:" + key
}

// Acquire claims the named lock for ttl and returns its unlock function,
// which may be called more than once. A lock already held elsewhere returns
// domain.ErrLockHeld.
func (lm *LockManager) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	token := uuid.NewString()
	lk := lockKey(key)

	ok, err := lm.rdb.SetNX(ctx, lk, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, domain.ErrLockHeld
	}

	released := false
	unlock := func() {
		if released {
			return
		}
		released = true
		// Detached context so shutdown paths can still release.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = lm.release.Run(releaseCtx, lm.rdb, []string{lk}, token).Err()
	}
	return unlock, nil
}
