package rules

import (
	"fmt"
	"math"
	"time"

	"github.com/jiliangzhu/MarketPulse-X/internal/domain"
	"github.com/jiliangzhu/MarketPulse-X/internal/feed"
)

// Default detector thresholds, overridable per rule via params.
const (
	defaultSpikeWindowSecs  = 10.0
	defaultSpikePct         = 0.03
	defaultLiquidityFloor   = 0.0
	defaultDutchSumMax      = 0.995
	defaultEndgameMinPrice  = 0.95
	defaultEndgameMinutes   = 30.0
	defaultEndgameVolSurgeZ = 1.0
	defaultLeadLagMinReturn = 0.003
	defaultLeadLagMaxDrift  = 0.002
	defaultTemporalMinGap   = 0.02
	defaultImbalanceMin     = 0.8
	defaultImbalanceSpread  = 0.02
	defaultCrossMinGap      = 0.05
	defaultBreakoutLookback = 300.0
	defaultBreakoutMinPts   = 5.0
	defaultBreakoutDev      = 0.05
	defaultHarvestDropPct   = -0.05
	defaultHarvestMaxSpread = 0.1
	defaultHarvestMinLiq    = 1000.0
	defaultHarvestMinProb   = 0.6
	defaultZombieMaxPrice   = 0.03
	defaultZombieMinLiq     = 500.0
	defaultZombieMaxDays    = 7.0
	defaultZombieMaxProb    = 0.01

	defaultSlippageBps = 80.0
)

// CryptoFeed supplies external reference prices to lead-lag detection.
type CryptoFeed interface {
	Snapshot(symbol string) (feed.PriceSnapshot, bool)
}

// EvalContext carries per-cycle inputs that are not part of the snapshot.
type EvalContext struct {
	Now      time.Time
	Feed     CryptoFeed
	Features map[string]float64
	MLProb   *float64
}

// Hit is one rule firing on one market, before fusion.
type Hit struct {
	Rule      domain.Rule
	MarketID  string
	OptionID  string
	Score     float64
	EdgeScore float64
	Message   string
	Payload   map[string]any
}

// Evaluate dispatches a rule to its detector. A nil Hit with nil error means
// the rule did not fire.
func Evaluate(rule domain.Rule, snap *MarketSnapshot, ectx EvalContext) (*Hit, error) {
	switch rule.Type {
	case domain.RuleSpikeDetect:
		return detectSpike(rule, snap), nil
	case domain.RuleTrendBreakout:
		return detectTrendBreakout(rule, snap), nil
	case domain.RuleEndgameSweep:
		return detectEndgame(rule, snap, ectx.Now), nil
	case domain.RuleDutchBook:
		return detectDutchBook(rule, snap), nil
	case domain.RuleCryptoLeadLag:
		return detectLeadLag(rule, snap, ectx.Feed), nil
	case domain.RuleTemporalArbitrage:
		return detectTemporalArb(rule, snap), nil
	case domain.RuleOrderBookImbalance:
		return detectImbalance(rule, snap, ectx.Features), nil
	case domain.RuleVolatilityHarvest:
		return detectVolatilityHarvest(rule, snap, ectx), nil
	case domain.RuleZombieHunter:
		return detectZombieHunter(rule, snap, ectx), nil
	case domain.RuleCrossMarketMisprice:
		// Evaluated once per synonym group, not per market.
		return nil, nil
	default:
		return nil, fmt.Errorf("rules: unknown rule type %q", rule.Type)
	}
}

func clamp100(s float64) float64 {
	if s < 0 {
		return 0
	}
	if s > 100 {
		return 100
	}
	return math.Round(s*100) / 100
}

func singleLegPlan(action, rationale string, leg domain.TradeLeg, edgeBps float64) domain.TradePlan {
	return domain.TradePlan{
		Action:           action,
		Rationale:        rationale,
		Legs:             []domain.TradeLeg{leg},
		EstimatedEdgeBps: edgeBps,
	}
}

// detectSpike fires on a fast price move within a short window. The first
// option that qualifies wins.
func detectSpike(rule domain.Rule, snap *MarketSnapshot) *Hit {
	window := time.Duration(rule.Param("window_secs", defaultSpikeWindowSecs) * float64(time.Second))
	threshold := rule.Param("pct", defaultSpikePct)
	minLiq := rule.Param("min_liquidity", defaultLiquidityFloor)

	for optionID, latest := range snap.Latest {
		recent := snap.recentForOption(optionID)
		cutoff := latest.TS.Add(-window)
		// recent is newest first; walk back to the window edge.
		var inWindow []domain.Tick
		for _, t := range recent {
			if t.TS.Before(cutoff) {
				break
			}
			inWindow = append(inWindow, t)
		}
		if len(inWindow) < 2 {
			continue
		}
		start := inWindow[len(inWindow)-1].Price
		end := inWindow[0].Price
		pct := (end - start) / math.Max(start, 0.01)
		if math.Abs(pct) < threshold || latest.Liquidity < minLiq {
			continue
		}

		metrics := map[string]float64{
			"velocity":  math.Abs(pct) * 100,
			"liquidity": latest.Liquidity / 10,
			"spread":    1.0,
		}
		side := domain.SideSell
		action := "mean_revert"
		if pct > 0 {
			side = domain.SideBuy
			action = "momentum_follow"
		}
		label := snap.optionLabel(optionID)
		slip := rule.Param("slippage_bps", defaultSlippageBps)
		leg := buildTradeLeg(snap.Market.ID, optionID, label, side, end, slip)
		plan := singleLegPlan(action,
			fmt.Sprintf("price moved %.1f%% in %.0fs", pct*100, window.Seconds()),
			leg, math.Abs(pct)*10000)

		return &Hit{
			Rule:      rule,
			MarketID:  snap.Market.ID,
			OptionID:  optionID,
			Score:     score(rule, 50, metrics),
			EdgeScore: math.Abs(pct),
			Message:   fmt.Sprintf("%s moved %+.1f%% in %.0fs", label, pct*100, window.Seconds()),
			Payload: map[string]any{
				"pct_change":      pct,
				"window_secs":     window.Seconds(),
				"suggested_trade": plan,
				"book_snapshot":   snap.bookSnapshot(),
			},
		}
	}
	return nil
}

// detectTrendBreakout fires when the latest price deviates from the lookback
// window's mean by more than the relative threshold.
func detectTrendBreakout(rule domain.Rule, snap *MarketSnapshot) *Hit {
	lookback := time.Duration(rule.Param("lookback_secs", defaultBreakoutLookback) * float64(time.Second))
	minPoints := int(rule.Param("min_points", defaultBreakoutMinPts))
	threshold := rule.Param("deviation", defaultBreakoutDev)
	minLiq := rule.Param("min_liquidity", defaultLiquidityFloor)

	for optionID, latest := range snap.Latest {
		if latest.Liquidity < minLiq {
			continue
		}
		recent := snap.recentForOption(optionID)
		cutoff := latest.TS.Add(-lookback)
		// recent is newest first; window runs back to the lookback edge.
		var inWindow []domain.Tick
		for _, t := range recent {
			if t.TS.Before(cutoff) {
				break
			}
			inWindow = append(inWindow, t)
		}
		if len(inWindow) < minPoints {
			continue
		}
		// Baseline is the mean of the window before the latest tick.
		prior := make([]float64, 0, len(inWindow)-1)
		for _, t := range inWindow[1:] {
			prior = append(prior, t.Price)
		}
		base := mean(prior)
		if base <= 0 {
			continue
		}
		dev := (latest.Price - base) / base
		if math.Abs(dev) < threshold {
			continue
		}

		side := domain.SideSell
		if dev > 0 {
			side = domain.SideBuy
		}
		metrics := map[string]float64{
			"breakout":  math.Abs(dev) * 100,
			"liquidity": latest.Liquidity / 10,
		}
		label := snap.optionLabel(optionID)
		slip := rule.Param("slippage_bps", defaultSlippageBps)
		leg := buildTradeLeg(snap.Market.ID, optionID, label, side, latest.Price, slip)
		plan := singleLegPlan("trend_follow",
			fmt.Sprintf("price sits %+.1f%% off the %.0fs mean %.3f", dev*100, lookback.Seconds(), base),
			leg, math.Abs(dev)*10000)

		return &Hit{
			Rule:      rule,
			MarketID:  snap.Market.ID,
			OptionID:  optionID,
			Score:     score(rule, 55, metrics),
			EdgeScore: math.Abs(dev),
			Message:   fmt.Sprintf("%s broke %+.1f%% from its %.0fs mean", label, dev*100, lookback.Seconds()),
			Payload: map[string]any{
				"deviation":       dev,
				"window_mean":     base,
				"lookback_secs":   lookback.Seconds(),
				"suggested_trade": plan,
				"book_snapshot":   snap.bookSnapshot(),
			},
		}
	}
	return nil
}

// detectEndgame fires when a near-resolution market trades close to certainty
// on a volume surge.
func detectEndgame(rule domain.Rule, snap *MarketSnapshot, now time.Time) *Hit {
	minPrice := rule.Param("min_price", defaultEndgameMinPrice)
	maxMinutes := rule.Param("minutes_to_end", defaultEndgameMinutes)
	minZ := rule.Param("vol_surge_z", defaultEndgameVolSurgeZ)
	minLiq := rule.Param("min_liquidity", defaultLiquidityFloor)

	minutes, ok := snap.Market.MinutesToEnd(now)
	if !ok || minutes > maxMinutes {
		return nil
	}

	for optionID, latest := range snap.Latest {
		if latest.Price < minPrice || latest.Liquidity < minLiq {
			continue
		}
		recent := snap.recentForOption(optionID)
		if len(recent) < 3 {
			continue
		}
		volumes := make([]float64, 0, 20)
		for _, t := range recent {
			volumes = append(volumes, t.Volume)
			if len(volumes) == 20 {
				break
			}
		}
		z := (volumes[0] - mean(volumes)) / math.Max(stdev(volumes), 1)
		if z < minZ {
			continue
		}

		metrics := map[string]float64{
			"time_to_end": maxMinutes - minutes,
			"liquidity":   latest.Liquidity / 10,
			"vol_surge":   z * 10,
		}
		label := snap.optionLabel(optionID)
		slip := rule.Param("slippage_bps", defaultSlippageBps)
		leg := buildTradeLeg(snap.Market.ID, optionID, label, domain.SideBuy, latest.Price, slip)
		plan := singleLegPlan("endgame_sweep",
			fmt.Sprintf("%.1f minutes to resolution on a volume surge", minutes),
			leg, math.Max(0, latest.Price-minPrice)*10000)

		return &Hit{
			Rule:      rule,
			MarketID:  snap.Market.ID,
			OptionID:  optionID,
			Score:     score(rule, 60, metrics),
			EdgeScore: math.Max(0, latest.Price-minPrice),
			Message:   fmt.Sprintf("%s trades at %.2f with %.1fm left", label, latest.Price, minutes),
			Payload: map[string]any{
				"minutes_to_end":  minutes,
				"volume_z":        z,
				"suggested_trade": plan,
				"book_snapshot":   snap.bookSnapshot(),
			},
		}
	}
	return nil
}

// detectDutchBook fires when the sum of a market's outcome prices drops
// below parity enough to cover fees.
func detectDutchBook(rule domain.Rule, snap *MarketSnapshot) *Hit {
	sumMax := rule.Param("sum_threshold", defaultDutchSumMax)
	minLiq := rule.Param("min_liquidity", defaultLiquidityFloor)

	if len(snap.Latest) == 0 {
		return nil
	}
	var (
		total     float64
		lowestLiq = math.Inf(1)
		spreadSum float64
	)
	for _, tick := range snap.Latest {
		total += tick.Price
		lowestLiq = math.Min(lowestLiq, tick.Liquidity)
		spreadSum += math.Max(0, tick.BestAsk-tick.BestBid)
	}
	if total >= sumMax || lowestLiq < minLiq {
		return nil
	}

	edge := math.Max(0, 1-total)
	avgSpread := spreadSum / float64(len(snap.Latest))
	metrics := map[string]float64{
		"liquidity": lowestLiq / 10,
		"spread":    1 / math.Max(avgSpread, 0.01),
		"edge":      edge * 100,
	}

	slip := rule.Param("slippage_bps", defaultSlippageBps)
	legs := make([]domain.TradeLeg, 0, len(snap.Latest))
	for optionID, tick := range snap.Latest {
		legs = append(legs, buildTradeLeg(snap.Market.ID, optionID, snap.optionLabel(optionID), domain.SideBuy, tick.Price, slip))
	}
	plan := domain.TradePlan{
		Action:           "dutch_book_basket",
		Rationale:        fmt.Sprintf("buy all outcomes below parity for %.2f%% gross edge", edge*100),
		Legs:             legs,
		EstimatedEdgeBps: edge * 10000,
	}

	return &Hit{
		Rule:      rule,
		MarketID:  snap.Market.ID,
		Score:     score(rule, 75, metrics),
		EdgeScore: edge,
		Message:   fmt.Sprintf("Dutch edge %.1f%% (sum=%.3f)", edge*100, total),
		Payload: map[string]any{
			"total_price":        total,
			"edge":               edge,
			"estimated_edge_bps": edge * 10000,
			"legs":               legs,
			"suggested_trade":    plan,
			"book_snapshot":      snap.bookSnapshot(),
		},
	}
}

// detectLeadLag fires when the referenced crypto asset has just moved and the
// market price has not followed yet.
func detectLeadLag(rule domain.Rule, snap *MarketSnapshot, cryptoFeed CryptoFeed) *Hit {
	if cryptoFeed == nil {
		return nil
	}
	symbol, ok := cryptoStreamSymbol(snap.Market.Title)
	if !ok {
		return nil
	}
	quote, ok := cryptoFeed.Snapshot(symbol)
	if !ok {
		return nil
	}
	minReturn := rule.Param("min_return", defaultLeadLagMinReturn)
	if math.Abs(quote.Return1s) < minReturn {
		return nil
	}

	optionID, latest, ok := snap.primaryOption()
	if !ok {
		return nil
	}
	// Skip when the market already drifted with the crypto move.
	maxDrift := rule.Param("max_drift", defaultLeadLagMaxDrift)
	if recent := snap.recentForOption(optionID); len(recent) > 0 {
		oldest := recent[len(recent)-1].Price
		if math.Abs(latest.Price-oldest) > maxDrift {
			return nil
		}
	}

	side := domain.SideSell
	if quote.Return1s > 0 {
		side = domain.SideBuy
	}
	metrics := map[string]float64{
		"momentum":  math.Abs(quote.Return1s) * 1000,
		"liquidity": latest.Liquidity / 10,
	}
	label := snap.optionLabel(optionID)
	slip := rule.Param("slippage_bps", defaultSlippageBps)
	leg := buildTradeLeg(snap.Market.ID, optionID, label, side, latest.Price, slip)
	plan := singleLegPlan("lead_lag_follow",
		fmt.Sprintf("%s moved %+.2f%% in 1s, market flat", symbol, quote.Return1s*100),
		leg, math.Abs(quote.Return1s)*10000)

	latencyGap := quote.TS.Sub(latest.TS).Abs().Seconds()
	return &Hit{
		Rule:      rule,
		MarketID:  snap.Market.ID,
		OptionID:  optionID,
		Score:     score(rule, 55, metrics),
		EdgeScore: math.Abs(quote.Return1s),
		Message:   fmt.Sprintf("%s moved %+.2f%% in 1s, %s lagging", symbol, quote.Return1s*100, label),
		Payload: map[string]any{
			"symbol":          symbol,
			"binance_price":   quote.Price,
			"poly_price":      latest.Price,
			"latency_gap":     latencyGap,
			"suggested_trade": plan,
			"book_snapshot":   snap.bookSnapshot(),
		},
	}
}

// detectTemporalArb fires when two same-question markets with different end
// times price the near leg above the far leg.
func detectTemporalArb(rule domain.Rule, snap *MarketSnapshot) *Hit {
	if len(snap.Peers) == 0 || snap.Market.EndsAt == nil {
		return nil
	}
	minGap := rule.Param("min_gap", defaultTemporalMinGap)
	thisTitle := normalizeTitle(snap.Market.Title)
	thisPrice := snap.primaryPrice()

	for _, peer := range snap.Peers {
		if peer.EndsAt == nil || normalizeTitle(peer.Title) != thisTitle {
			continue
		}

		nearPrice, farPrice := thisPrice, peer.Price
		nearID, farID := snap.Market.ID, peer.MarketID
		if peer.EndsAt.Before(*snap.Market.EndsAt) {
			nearPrice, farPrice = peer.Price, thisPrice
			nearID, farID = peer.MarketID, snap.Market.ID
		}
		gap := nearPrice - farPrice
		if gap <= minGap {
			continue
		}

		optionID, _, _ := snap.primaryOption()
		label := snap.optionLabel(optionID)
		slip := rule.Param("slippage_bps", defaultSlippageBps)
		nearSide, farSide := domain.SideSell, domain.SideBuy
		legs := []domain.TradeLeg{
			buildTradeLeg(nearID, optionID, label, nearSide, nearPrice, slip),
			buildTradeLeg(farID, optionID, label, farSide, farPrice, slip),
		}
		if nearID != snap.Market.ID {
			// Only this market's option id is known; the peer leg carries
			// the market reference alone.
			legs[0].OptionID, legs[0].Label = "", ""
		} else {
			legs[1].OptionID, legs[1].Label = "", ""
		}
		plan := domain.TradePlan{
			Action:           "temporal_spread",
			Rationale:        fmt.Sprintf("sell the near expiry, buy the far, gap %.3f", gap),
			Legs:             legs,
			EstimatedEdgeBps: gap * 10000,
		}

		return &Hit{
			Rule:      rule,
			MarketID:  snap.Market.ID,
			OptionID:  optionID,
			Score:     clamp100(60 + gap*500),
			EdgeScore: gap,
			Message:   fmt.Sprintf("near expiry prices %.3f above far duplicate", gap),
			Payload: map[string]any{
				"gap":             gap,
				"near_market":     nearID,
				"far_market":      farID,
				"suggested_trade": plan,
				"book_snapshot":   snap.bookSnapshot(),
			},
		}
	}
	return nil
}

// detectImbalance fires on a one-sided book with a tight spread, using the
// feature row rather than raw ticks.
func detectImbalance(rule domain.Rule, snap *MarketSnapshot, features map[string]float64) *Hit {
	if features == nil {
		return nil
	}
	minImb := rule.Param("min_imbalance", defaultImbalanceMin)
	maxSpread := rule.Param("max_spread", defaultImbalanceSpread)

	imb := features["size_imbalance"]
	spread := features["spread"]
	if math.Abs(imb) <= minImb || spread > maxSpread {
		return nil
	}

	optionID, latest, ok := snap.primaryOption()
	if !ok {
		return nil
	}
	side := domain.SideSell
	if imb > 0 {
		side = domain.SideBuy
	}
	label := snap.optionLabel(optionID)
	slip := rule.Param("slippage_bps", defaultSlippageBps)
	leg := buildTradeLeg(snap.Market.ID, optionID, label, side, latest.Price, slip)
	edgeBps := (maxSpread - spread) * 10000
	plan := singleLegPlan("orderbook_follow",
		fmt.Sprintf("book is %+.2f one-sided with %.3f spread", imb, spread),
		leg, edgeBps)

	return &Hit{
		Rule:      rule,
		MarketID:  snap.Market.ID,
		OptionID:  optionID,
		Score:     clamp100(55 + math.Abs(imb)*10),
		EdgeScore: math.Abs(imb),
		Message:   fmt.Sprintf("order book imbalance %+.2f on %s", imb, label),
		Payload: map[string]any{
			"size_imbalance":     imb,
			"spread":             spread,
			"estimated_edge_bps": edgeBps,
			"suggested_trade":    plan,
			"book_snapshot":      snap.bookSnapshot(),
		},
	}
}

// detectVolatilityHarvest fires after a sharp drop the model considers
// overdone.
func detectVolatilityHarvest(rule domain.Rule, snap *MarketSnapshot, ectx EvalContext) *Hit {
	if ectx.MLProb == nil || ectx.Features == nil {
		return nil
	}
	mid := ectx.Features["mid_price"]
	dropPct := ectx.Features["price_velocity_10s"] / math.Max(mid, 1e-6)
	if dropPct >= rule.Param("drop_pct", defaultHarvestDropPct) {
		return nil
	}
	if ectx.Features["spread"] > rule.Param("max_spread", defaultHarvestMaxSpread) {
		return nil
	}
	optionID, latest, ok := snap.primaryOption()
	if !ok || latest.Liquidity < rule.Param("min_liquidity", defaultHarvestMinLiq) {
		return nil
	}
	prob := *ectx.MLProb
	if prob < rule.Param("min_prob", defaultHarvestMinProb) {
		return nil
	}

	gap := prob - mid
	label := snap.optionLabel(optionID)
	slip := rule.Param("slippage_bps", defaultSlippageBps)
	leg := buildTradeLeg(snap.Market.ID, optionID, label, domain.SideBuy, mid, slip)
	confidence := prob
	plan := domain.TradePlan{
		Action:           "volatility_harvest",
		Rationale:        fmt.Sprintf("model fair value %.2f sits above post-drop mid %.2f", prob, mid),
		Legs:             []domain.TradeLeg{leg},
		EstimatedEdgeBps: gap * 10000,
		Confidence:       &confidence,
	}

	return &Hit{
		Rule:      rule,
		MarketID:  snap.Market.ID,
		OptionID:  optionID,
		Score:     clamp100(60 + prob*20),
		EdgeScore: math.Abs(gap),
		Message:   fmt.Sprintf("%.1f%% drop with model fair value %.2f above mid", dropPct*100, prob),
		Payload: map[string]any{
			"drop_pct":        dropPct,
			"fair_value_gap":  gap,
			"model_prob":      prob,
			"suggested_trade": plan,
			"book_snapshot":   snap.bookSnapshot(),
		},
	}
}

// detectZombieHunter fires on near-zero markets the model prices even lower.
func detectZombieHunter(rule domain.Rule, snap *MarketSnapshot, ectx EvalContext) *Hit {
	if ectx.MLProb == nil || ectx.Features == nil {
		return nil
	}
	optionID, latest, ok := snap.primaryOption()
	if !ok {
		return nil
	}
	if latest.Price > rule.Param("max_price", defaultZombieMaxPrice) {
		return nil
	}
	if latest.Liquidity < rule.Param("min_liquidity", defaultZombieMinLiq) {
		return nil
	}
	days := ectx.Features["days_to_expiry"]
	if days > rule.Param("max_days", defaultZombieMaxDays) {
		return nil
	}
	prob := *ectx.MLProb
	if prob >= rule.Param("max_prob", defaultZombieMaxProb) {
		return nil
	}

	edge := latest.Price - prob
	label := snap.optionLabel(optionID)
	slip := rule.Param("slippage_bps", defaultSlippageBps)
	leg := buildTradeLeg(snap.Market.ID, optionID, label, domain.SideSell, latest.Price, slip)
	confidence := 1 - prob
	plan := domain.TradePlan{
		Action:           "zombie_hunter",
		Rationale:        fmt.Sprintf("market pays %.3f for an outcome the model prices at %.4f", latest.Price, prob),
		Legs:             []domain.TradeLeg{leg},
		EstimatedEdgeBps: edge * 10000,
		Confidence:       &confidence,
	}

	return &Hit{
		Rule:      rule,
		MarketID:  snap.Market.ID,
		OptionID:  optionID,
		Score:     clamp100(50 + (1-prob)*25),
		EdgeScore: edge,
		Message:   fmt.Sprintf("%s priced %.3f vs model %.4f near expiry", label, latest.Price, prob),
		Payload: map[string]any{
			"days_to_expiry":  days,
			"implied_prob":    latest.Price,
			"model_prob":      prob,
			"suggested_trade": plan,
			"book_snapshot":   snap.bookSnapshot(),
		},
	}
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func stdev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	m := mean(xs)
	var ss float64
	for _, x := range xs {
		ss += (x - m) * (x - m)
	}
	return math.Sqrt(ss / float64(len(xs)-1))
}
