package rules

import (
	"fmt"
	"math"
	"time"

	"github.com/jiliangzhu/MarketPulse-X/internal/domain"
)

// EvaluateCrossMarket compares same-outcome prices across the markets of one
// synonym group and fires at most once, on the widest qualifying gap. The hit
// is attributed to the lagging market.
func EvaluateCrossMarket(rule domain.Rule, group []*MarketSnapshot, now time.Time) *Hit {
	minSize := int(rule.Param("group_min_size", 2))
	if minSize < 2 {
		minSize = 2
	}
	if len(group) < minSize {
		return nil
	}
	minGap := rule.Param("min_gap", defaultCrossMinGap)
	minLiq := rule.Param("min_liquidity", defaultLiquidityFloor)

	type best struct {
		gap            float64
		label          string
		leader, lagger *MarketSnapshot
		leaderTick     domain.Tick
		laggerTick     domain.Tick
	}
	var found *best

	labelled := make([]map[string]domain.Tick, len(group))
	for i, snap := range group {
		labelled[i] = snap.labelledTicks()
	}

	for i := 0; i < len(group); i++ {
		for j := i + 1; j < len(group); j++ {
			for label, tickA := range labelled[i] {
				tickB, ok := labelled[j][label]
				if !ok {
					continue
				}
				if math.Min(tickA.Liquidity, tickB.Liquidity) < minLiq {
					continue
				}
				gap := math.Abs(tickA.Price - tickB.Price)
				if gap < minGap {
					continue
				}
				if found != nil && gap <= found.gap {
					continue
				}
				b := &best{gap: gap, label: label}
				if tickA.Price > tickB.Price {
					b.leader, b.leaderTick = group[i], tickA
					b.lagger, b.laggerTick = group[j], tickB
				} else {
					b.leader, b.leaderTick = group[j], tickB
					b.lagger, b.laggerTick = group[i], tickA
				}
				found = b
			}
		}
	}
	if found == nil {
		return nil
	}

	minutes, _ := found.lagger.Market.MinutesToEnd(now)
	pairLiq := math.Min(found.leaderTick.Liquidity, found.laggerTick.Liquidity)
	metrics := map[string]float64{
		"gap":         found.gap * 100,
		"liquidity":   pairLiq / 10,
		"time_to_end": minutes / 10,
	}

	slip := rule.Param("slippage_bps", defaultSlippageBps)
	laggerLabel := found.lagger.optionLabel(found.laggerTick.OptionID)
	leaderLabel := found.leader.optionLabel(found.leaderTick.OptionID)
	plan := domain.TradePlan{
		Action:    "cross_market_pair",
		Rationale: fmt.Sprintf("same outcome priced %.2f apart across duplicate markets", found.gap),
		Legs: []domain.TradeLeg{
			buildTradeLeg(found.lagger.Market.ID, found.laggerTick.OptionID, laggerLabel, domain.SideBuy, found.laggerTick.Price, slip),
			buildTradeLeg(found.leader.Market.ID, found.leaderTick.OptionID, leaderLabel, domain.SideSell, found.leaderTick.Price, slip),
		},
		EstimatedEdgeBps: found.gap * 10000,
	}
	comparables := []map[string]any{
		{"market_id": found.leader.Market.ID, "title": found.leader.Market.Title, "price": found.leaderTick.Price, "role": "leader"},
		{"market_id": found.lagger.Market.ID, "title": found.lagger.Market.Title, "price": found.laggerTick.Price, "role": "laggard"},
	}

	return &Hit{
		Rule:      rule,
		MarketID:  found.lagger.Market.ID,
		OptionID:  found.laggerTick.OptionID,
		Score:     score(rule, 65, metrics),
		EdgeScore: found.gap,
		Message:   fmt.Sprintf("%q priced %.2f vs %.2f on a duplicate market", found.label, found.laggerTick.Price, found.leaderTick.Price),
		Payload: map[string]any{
			"gap":                found.gap,
			"leader":             found.leader.Market.ID,
			"laggard":            found.lagger.Market.ID,
			"target_label":       found.label,
			"estimated_edge_bps": found.gap * 10000,
			"comparables":        comparables,
			"suggested_trade":    plan,
			"book_snapshot":      found.lagger.bookSnapshot(),
		},
	}
}
