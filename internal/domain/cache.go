package domain

import (
	"context"
	"time"
)

// DedupeCache suppresses repeated notifications.
type DedupeCache interface {
	// Acquire claims key for ttl. It returns false when the key was
	// already claimed within its ttl.
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// TickCache stores the last observed price per option so pollers can skip
// unchanged ticks.
type TickCache interface {
	SetPrice(ctx context.Context, optionID string, price float64, ts time.Time) error
	// GetPrices returns last prices for the given options. Options never
	// seen are omitted from the result.
	GetPrices(ctx context.Context, optionIDs []string) (map[string]float64, error)
}
