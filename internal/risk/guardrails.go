package risk

import (
	"context"

	"github.com/jiliangzhu/MarketPulse-X/internal/domain"
)

// Reasons returned by the price guardrail.
const (
	ReasonNoDepth         = "no market depth"
	ReasonNoOptionDepth   = "option depth missing"
	ReasonInvalidRefPrice = "invalid reference price"
	ReasonSlippage        = "slippage too high"
)

// Guardrail rejects limit prices too far from the market's current price.
type Guardrail struct {
	ticks domain.TickStore
}

// NewGuardrail creates a Guardrail over the tick store.
func NewGuardrail(ticks domain.TickStore) *Guardrail {
	return &Guardrail{ticks: ticks}
}

// Check validates the intent's limit against the live reference price within
// the policy's slippage allowance. An empty reason means the intent passes.
func (g *Guardrail) Check(ctx context.Context, intent domain.OrderIntent, policy domain.ExecPolicy) (string, error) {
	latest, err := g.ticks.Latest(ctx, intent.MarketID)
	if err != nil {
		return "", err
	}
	if len(latest) == 0 {
		return ReasonNoDepth, nil
	}
	tick, ok := latest[intent.OptionID]
	if !ok {
		return ReasonNoOptionDepth, nil
	}

	ref := tick.Price
	if ref <= 0 && tick.BestBid > 0 && tick.BestAsk > 0 {
		ref = tick.Mid()
	}
	if ref <= 0 {
		return ReasonInvalidRefPrice, nil
	}

	allowed := ref * float64(policy.SlippageBps) / 10000
	if intent.Side == domain.SideBuy && intent.LimitPrice > ref+allowed {
		return ReasonSlippage, nil
	}
	if intent.Side == domain.SideSell && intent.LimitPrice < ref-allowed {
		return ReasonSlippage, nil
	}
	return "", nil
}
