package exec

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jiliangzhu/MarketPulse-X/internal/domain"
	"github.com/jiliangzhu/MarketPulse-X/internal/metrics"
	"github.com/jiliangzhu/MarketPulse-X/internal/risk"
)

// Executor revalidates intents at confirmation time and finalizes their
// status. In mock mode a confirmed intent fills immediately.
type Executor struct {
	mock bool

	intents    domain.IntentStore
	limits     *risk.LimitChecker
	guardrail  *risk.Guardrail
	policyFn   func(ctx context.Context) (domain.ExecPolicy, error)
	audit      domain.AuditStore
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// NewExecutor creates an Executor. policyFn resolves the active execution
// policy; mock switches confirmed intents straight to filled.
func NewExecutor(mock bool, intents domain.IntentStore, limits *risk.LimitChecker, guardrail *risk.Guardrail, policyFn func(ctx context.Context) (domain.ExecPolicy, error), audit domain.AuditStore, m *metrics.Metrics, logger *slog.Logger) *Executor {
	return &Executor{
		mock:      mock,
		intents:   intents,
		limits:    limits,
		guardrail: guardrail,
		policyFn:  policyFn,
		audit:     audit,
		metrics:   m,
		logger:    logger.With(slog.String("component", "executor")),
	}
}

// Validate runs every risk check against the intent and returns the
// aggregated failure reasons. The intent is approved only when no check
// fails.
func (e *Executor) Validate(ctx context.Context, intent domain.OrderIntent) (bool, []string, error) {
	policy, err := e.policyFn(ctx)
	if err != nil {
		return false, nil, err
	}

	reasons := e.limits.Check(ctx, intent, policy)

	if intent.OptionID == "" {
		reasons = append(reasons, "missing option for guardrail")
		return false, reasons, nil
	}
	reason, err := e.guardrail.Check(ctx, intent, policy)
	if err != nil {
		return false, reasons, err
	}
	if reason != "" {
		reasons = append(reasons, reason)
	}

	return len(reasons) == 0, reasons, nil
}

// Confirm revalidates the intent and moves it to its terminal status: sent
// (filled in mock mode) when approved, rejected otherwise. The check results
// are recorded in the intent detail. Confirm never reverts a status.
func (e *Executor) Confirm(ctx context.Context, id int64) (domain.OrderIntent, error) {
	intent, err := e.intents.GetByID(ctx, id)
	if err != nil {
		return domain.OrderIntent{}, err
	}

	approved, reasons, err := e.Validate(ctx, intent)
	if err != nil {
		return domain.OrderIntent{}, err
	}

	status := domain.IntentRejected
	if approved {
		status = domain.IntentSent
		if e.mock {
			status = domain.IntentFilled
		}
	}

	detail := intent.Detail
	if detail == nil {
		detail = map[string]any{}
	}
	detail["checks"] = map[string]any{
		"approved": approved,
		"reasons":  reasons,
	}
	if err := e.intents.UpdateStatus(ctx, id, status, detail); err != nil {
		return domain.OrderIntent{}, err
	}
	intent.Status = status
	intent.Detail = detail

	e.metrics.OrderIntentsTotal.WithLabelValues(string(status)).Inc()
	if err := e.audit.Log(ctx, "executor", "intent_confirmed", fmt.Sprintf("%d", id), map[string]any{
		"status":  string(status),
		"reasons": reasons,
	}); err != nil {
		e.logger.Warn("audit log failed", slog.String("error", err.Error()))
	}
	e.logger.Info("intent confirmed",
		slog.Int64("intent_id", id),
		slog.String("status", string(status)),
		slog.Bool("approved", approved))
	return intent, nil
}
