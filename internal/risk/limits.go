// Package risk enforces execution policy caps and price guardrails on order
// intents before they can be confirmed.
package risk

import (
	"context"
	"log/slog"
	"time"

	"github.com/jiliangzhu/MarketPulse-X/internal/domain"
)

// riskLockKey serializes concurrent limit checks across processes.
const riskLockKey = 42

// Reasons returned by limit checks.
const (
	ReasonPerOrderNotional = "per-order notional exceeded"
	ReasonMaxConcurrent    = "max concurrent intents reached"
	ReasonDailyNotional    = "daily notional cap reached"
)

// LimitChecker validates an intent against the active policy's caps.
type LimitChecker struct {
	intents domain.IntentStore
	logger  *slog.Logger
}

// NewLimitChecker creates a LimitChecker.
func NewLimitChecker(intents domain.IntentStore, logger *slog.Logger) *LimitChecker {
	return &LimitChecker{
		intents: intents,
		logger:  logger.With(slog.String("component", "risk_limits")),
	}
}

// Check returns every cap the intent violates. All caps are evaluated, not
// just the first failure. Concurrency and daily counts run under a shared
// advisory lock; store errors degrade to a logged skip rather than blocking
// the intent.
func (c *LimitChecker) Check(ctx context.Context, intent domain.OrderIntent, policy domain.ExecPolicy) []string {
	var reasons []string

	if intent.Notional() > policy.MaxNotionalPerOrder {
		reasons = append(reasons, ReasonPerOrderNotional)
	}

	err := c.intents.WithAdvisoryLock(ctx, riskLockKey, func(ctx context.Context) error {
		open, err := c.intents.OpenCount(ctx)
		if err != nil {
			c.logger.Warn("open intent count failed", slog.String("error", err.Error()))
		} else if open >= policy.MaxConcurrentOrders {
			reasons = append(reasons, ReasonMaxConcurrent)
		}

		daily, err := c.intents.DailyNotional(ctx, time.Now().UTC())
		if err != nil {
			c.logger.Warn("daily notional lookup failed", slog.String("error", err.Error()))
		} else if daily+intent.Notional() > policy.MaxDailyNotional {
			reasons = append(reasons, ReasonDailyNotional)
		}
		return nil
	})
	if err != nil {
		c.logger.Warn("limit check lock failed", slog.String("error", err.Error()))
	}

	return reasons
}
