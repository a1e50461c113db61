// Package exec turns risk-checked signals into order intents and walks them
// through the confirmation lifecycle. Nothing here talks to an exchange; the
// final hop is manual or a mock fill.
package exec

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jiliangzhu/MarketPulse-X/internal/domain"
	"github.com/jiliangzhu/MarketPulse-X/internal/metrics"
)

// defaultPolicyName is bootstrapped when no execution policy exists yet.
const defaultPolicyName = "default-phase2"

// Config holds intent creation defaults and the bootstrap policy caps.
type Config struct {
	Mode                string
	MaxNotionalPerOrder float64
	MaxConcurrentOrders int
	MaxDailyNotional    float64
	SlippageBps         int
	TTLSecs             int
	MaxSignalAge        time.Duration
}

// Overrides are caller-supplied fields that take precedence over the
// signal's trade plan.
type Overrides struct {
	Side       *domain.Side
	Qty        *float64
	LimitPrice *float64
	TTLSecs    *int
}

// OEMS creates order intents from signals.
type OEMS struct {
	cfg      Config
	signals  domain.SignalStore
	ticks    domain.TickStore
	intents  domain.IntentStore
	policies domain.PolicyStore
	audit    domain.AuditStore
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewOEMS creates an OEMS.
func NewOEMS(cfg Config, signals domain.SignalStore, ticks domain.TickStore, intents domain.IntentStore, policies domain.PolicyStore, audit domain.AuditStore, m *metrics.Metrics, logger *slog.Logger) *OEMS {
	if cfg.MaxSignalAge <= 0 {
		cfg.MaxSignalAge = 60 * time.Second
	}
	if cfg.TTLSecs <= 0 {
		cfg.TTLSecs = 60
	}
	return &OEMS{
		cfg:      cfg,
		signals:  signals,
		ticks:    ticks,
		intents:  intents,
		policies: policies,
		audit:    audit,
		metrics:  m,
		logger:   logger.With(slog.String("component", "oems")),
	}
}

// ActivePolicy returns the enabled execution policy, bootstrapping the
// default from config when none exists.
func (o *OEMS) ActivePolicy(ctx context.Context) (domain.ExecPolicy, error) {
	policy, err := o.policies.GetEnabled(ctx)
	if err == nil {
		return policy, nil
	}
	if err != domain.ErrNotFound {
		return domain.ExecPolicy{}, err
	}

	policy = domain.ExecPolicy{
		Name:                defaultPolicyName,
		Mode:                o.cfg.Mode,
		MaxNotionalPerOrder: o.cfg.MaxNotionalPerOrder,
		MaxConcurrentOrders: o.cfg.MaxConcurrentOrders,
		MaxDailyNotional:    o.cfg.MaxDailyNotional,
		SlippageBps:         o.cfg.SlippageBps,
		Enabled:             true,
	}
	id, err := o.policies.Upsert(ctx, policy)
	if err != nil {
		return domain.ExecPolicy{}, fmt.Errorf("exec: bootstrap policy: %w", err)
	}
	policy.ID = id
	o.logger.Info("bootstrapped default execution policy", slog.Int64("policy_id", id))
	return policy, nil
}

// CreateFromSignal builds a suggested intent for a signal. The signal must be
// fresh and actionable (P1 or P2), and the market must have live depth. The
// limit price is clamped into the policy's slippage band around the current
// reference price.
func (o *OEMS) CreateFromSignal(ctx context.Context, signalID int64, overrides Overrides) (domain.OrderIntent, error) {
	sig, err := o.signals.GetByID(ctx, signalID)
	if err != nil {
		return domain.OrderIntent{}, err
	}
	if time.Since(sig.CreatedAt) > o.cfg.MaxSignalAge {
		return domain.OrderIntent{}, domain.ErrSignalExpired
	}
	if sig.Level != domain.LevelP1 && sig.Level != domain.LevelP2 {
		return domain.OrderIntent{}, domain.ErrSignalLevel
	}

	latest, err := o.ticks.Latest(ctx, sig.MarketID)
	if err != nil {
		return domain.OrderIntent{}, err
	}
	if len(latest) == 0 {
		return domain.OrderIntent{}, domain.ErrNoDepth
	}
	optionID, ref := topOfBook(latest)

	policy, err := o.ActivePolicy(ctx)
	if err != nil {
		return domain.OrderIntent{}, err
	}

	// Start from the signal's suggested primary leg, then apply overrides.
	side := domain.SideSell
	if sig.Level == domain.LevelP1 {
		side = domain.SideBuy
	}
	qty := 1.0
	limit := ref
	var primaryLeg *domain.TradeLeg
	if plan, ok := sig.SuggestedTrade(); ok && len(plan.Legs) > 0 {
		for i := range plan.Legs {
			if plan.Legs[i].MarketID == sig.MarketID {
				primaryLeg = &plan.Legs[i]
				break
			}
		}
		if primaryLeg == nil {
			primaryLeg = &plan.Legs[0]
		}
		side = primaryLeg.Side
		if primaryLeg.Qty > 0 {
			qty = primaryLeg.Qty
		}
		if primaryLeg.LimitPrice > 0 {
			limit = primaryLeg.LimitPrice
		}
		if primaryLeg.OptionID != "" {
			optionID = primaryLeg.OptionID
			if tick, ok := latest[optionID]; ok {
				ref = tick.Price
			}
		}
	}

	ruleType, _ := sig.Payload["rule_type"].(string)
	if ruleType == string(domain.RuleEndgameSweep) {
		qty = 1
		limit = min(0.99, ref)
		side = domain.SideBuy
	}

	if overrides.Side != nil {
		side = *overrides.Side
	}
	if overrides.Qty != nil {
		qty = *overrides.Qty
	}
	if overrides.LimitPrice != nil {
		limit = *overrides.LimitPrice
	}
	ttl := o.cfg.TTLSecs
	if overrides.TTLSecs != nil {
		ttl = *overrides.TTLSecs
	}

	// Clamp the limit into the slippage band so a stale plan cannot cross
	// the book at any price.
	allowed := ref * float64(policy.SlippageBps) / 10000
	if side == domain.SideBuy && limit > ref+allowed {
		limit = ref + allowed
	}
	if side == domain.SideSell && limit < ref-allowed {
		limit = ref - allowed
	}

	detail := map[string]any{
		"signal_level":      sig.Level,
		"edge_score":        sig.EdgeScore,
		"payload":           sig.Payload,
		"primary_option_id": optionID,
	}
	if name, ok := sig.Payload["rule_name"].(string); ok {
		detail["rule"] = name
	}
	if ruleType != "" {
		detail["rule_type"] = ruleType
	}
	if transport, ok := sig.Payload["transport"].(string); ok {
		detail["transport"] = transport
	}
	if bps, ok := sig.Payload["estimated_edge_bps"].(float64); ok {
		detail["estimated_edge_bps"] = bps
	}
	if plan, ok := sig.SuggestedTrade(); ok {
		detail["trade_plan_hint"] = plan.Action
	}

	sigID := sig.ID
	policyID := policy.ID
	intent, err := o.intents.Create(ctx, domain.OrderIntent{
		SignalID:   &sigID,
		MarketID:   sig.MarketID,
		OptionID:   optionID,
		Side:       side,
		Qty:        qty,
		LimitPrice: limit,
		TTLSecs:    ttl,
		Status:     domain.IntentSuggested,
		PolicyID:   &policyID,
		Detail:     detail,
	})
	if err != nil {
		return domain.OrderIntent{}, err
	}

	o.metrics.OrderIntentsTotal.WithLabelValues(string(domain.IntentSuggested)).Inc()
	if err := o.audit.Log(ctx, "oems", "intent_created", fmt.Sprintf("%d", intent.ID), map[string]any{
		"signal_id": sigID,
		"market_id": sig.MarketID,
	}); err != nil {
		o.logger.Warn("audit log failed", slog.String("error", err.Error()))
	}
	return intent, nil
}

// topOfBook returns the option with the highest latest price.
func topOfBook(latest map[string]domain.Tick) (string, float64) {
	var (
		bestID    string
		bestPrice float64
		found     bool
	)
	for id, tick := range latest {
		if !found || tick.Price > bestPrice {
			bestID, bestPrice, found = id, tick.Price, true
		}
	}
	return bestID, bestPrice
}
