package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jiliangzhu/MarketPulse-X/internal/domain"
)

func crossSnapshot(marketID, title, label string, price, liquidity float64) *MarketSnapshot {
	optionID := marketID + "-opt"
	return &MarketSnapshot{
		Market: domain.Market{ID: marketID, Title: title},
		Latest: map[string]domain.Tick{
			optionID: {TS: testNow, MarketID: marketID, OptionID: optionID, Price: price, Liquidity: liquidity},
		},
		Options: map[string]domain.Option{
			optionID: {ID: optionID, MarketID: marketID, Label: label},
		},
	}
}

func TestEvaluateCrossMarketFires(t *testing.T) {
	rule := testRule(domain.RuleCrossMarketMisprice, map[string]float64{
		"min_gap": 0.05, "min_liquidity": 100, "group_min_size": 2,
	})
	leader := crossSnapshot("mkt-a", "Election winner", "No", 0.45, 500)
	laggard := crossSnapshot("mkt-b", "Election winner duplicate", "No", 0.30, 400)

	hit := EvaluateCrossMarket(rule, []*MarketSnapshot{leader, laggard}, testNow)
	require.NotNil(t, hit)
	assert.Equal(t, "mkt-b", hit.MarketID)
	assert.Equal(t, "mkt-b-opt", hit.OptionID)
	assert.InDelta(t, 0.15, hit.EdgeScore, 1e-9)
	assert.Equal(t, `"no" priced 0.30 vs 0.45 on a duplicate market`, hit.Message)
	assert.Equal(t, "mkt-a", hit.Payload["leader"])
	assert.Equal(t, "mkt-b", hit.Payload["laggard"])

	trade, ok := domain.Signal{Payload: hit.Payload}.SuggestedTrade()
	require.True(t, ok)
	assert.Equal(t, "cross_market_pair", trade.Action)
	require.Len(t, trade.Legs, 2)
	assert.Equal(t, domain.SideBuy, trade.Legs[0].Side)
	assert.Equal(t, "mkt-b", trade.Legs[0].MarketID)
	assert.Equal(t, domain.SideSell, trade.Legs[1].Side)
	assert.Equal(t, "mkt-a", trade.Legs[1].MarketID)
}

func TestEvaluateCrossMarketScoreWeights(t *testing.T) {
	rule := testRule(domain.RuleCrossMarketMisprice, map[string]float64{"min_gap": 0.05})
	rule.Config.Outputs.Score = domain.RuleScore{Base: 65, Weights: map[string]float64{"gap": 2.0, "liquidity": 0.02}}
	leader := crossSnapshot("mkt-a", "Election winner", "No", 0.45, 500)
	laggard := crossSnapshot("mkt-b", "Election winner duplicate", "No", 0.30, 400)

	hit := EvaluateCrossMarket(rule, []*MarketSnapshot{leader, laggard}, testNow)
	require.NotNil(t, hit)
	// 65 + 2.0*15 + 0.02*40: gap in percent, pair liquidity over ten.
	assert.InDelta(t, 95.8, hit.Score, 1e-9)
}

func TestEvaluateCrossMarketPicksWidestGap(t *testing.T) {
	rule := testRule(domain.RuleCrossMarketMisprice, nil)
	a := crossSnapshot("mkt-a", "A", "No", 0.50, 500)
	b := crossSnapshot("mkt-b", "B", "No", 0.42, 500)
	c := crossSnapshot("mkt-c", "C", "No", 0.30, 500)

	hit := EvaluateCrossMarket(rule, []*MarketSnapshot{a, b, c}, testNow)
	require.NotNil(t, hit)
	assert.InDelta(t, 0.20, hit.EdgeScore, 1e-9)
	assert.Equal(t, "mkt-c", hit.MarketID)
}

func TestEvaluateCrossMarketGroupTooSmall(t *testing.T) {
	rule := testRule(domain.RuleCrossMarketMisprice, nil)
	only := crossSnapshot("mkt-a", "A", "No", 0.50, 500)

	assert.Nil(t, EvaluateCrossMarket(rule, []*MarketSnapshot{only}, testNow))
}

func TestEvaluateCrossMarketGapBelowMinimum(t *testing.T) {
	rule := testRule(domain.RuleCrossMarketMisprice, map[string]float64{"min_gap": 0.05})
	a := crossSnapshot("mkt-a", "A", "No", 0.45, 500)
	b := crossSnapshot("mkt-b", "B", "No", 0.43, 500)

	assert.Nil(t, EvaluateCrossMarket(rule, []*MarketSnapshot{a, b}, testNow))
}

func TestEvaluateCrossMarketIlliquidPairSkipped(t *testing.T) {
	rule := testRule(domain.RuleCrossMarketMisprice, map[string]float64{"min_liquidity": 100})
	a := crossSnapshot("mkt-a", "A", "No", 0.45, 500)
	b := crossSnapshot("mkt-b", "B", "No", 0.30, 50)

	assert.Nil(t, EvaluateCrossMarket(rule, []*MarketSnapshot{a, b}, testNow))
}

func TestEvaluateCrossMarketLabelsMustMatch(t *testing.T) {
	rule := testRule(domain.RuleCrossMarketMisprice, nil)
	a := crossSnapshot("mkt-a", "A", "Yes", 0.45, 500)
	b := crossSnapshot("mkt-b", "B", "No", 0.30, 500)

	assert.Nil(t, EvaluateCrossMarket(rule, []*MarketSnapshot{a, b}, testNow))
}
