package rules

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jiliangzhu/MarketPulse-X/internal/domain"
	"github.com/jiliangzhu/MarketPulse-X/internal/feed"
)

var testNow = time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)

func testRule(ruleType domain.RuleType, params map[string]float64) domain.Rule {
	return domain.Rule{
		ID:      1,
		Name:    "test-" + string(ruleType),
		Type:    ruleType,
		Enabled: true,
		Config: domain.RuleConfig{
			Type:    string(ruleType),
			Name:    "test-" + string(ruleType),
			Params:  params,
			Outputs: domain.RuleOutputs{Level: domain.LevelP2},
		},
	}
}

func tick(optionID string, ts time.Time, price, volume, liquidity float64) domain.Tick {
	return domain.Tick{
		TS:        ts,
		MarketID:  "mkt-1",
		OptionID:  optionID,
		Price:     price,
		Volume:    volume,
		Liquidity: liquidity,
	}
}

func snapshotOf(market domain.Market, latest map[string]domain.Tick, recent []domain.Tick) *MarketSnapshot {
	options := make(map[string]domain.Option, len(latest))
	for id := range latest {
		options[id] = domain.Option{ID: id, MarketID: market.ID, Label: id}
	}
	return &MarketSnapshot{Market: market, Latest: latest, Recent: recent, Options: options}
}

func TestDetectSpikeFires(t *testing.T) {
	rule := testRule(domain.RuleSpikeDetect, map[string]float64{"window_secs": 10, "pct": 0.03})
	latest := tick("yes", testNow, 0.55, 100, 500)
	snap := snapshotOf(domain.Market{ID: "mkt-1", Title: "Test market"},
		map[string]domain.Tick{"yes": latest},
		[]domain.Tick{latest, tick("yes", testNow.Add(-5*time.Second), 0.50, 90, 500)},
	)

	hit := detectSpike(rule, snap)
	require.NotNil(t, hit)
	assert.Equal(t, "mkt-1", hit.MarketID)
	assert.Equal(t, "yes", hit.OptionID)
	assert.InDelta(t, 0.10, hit.EdgeScore, 1e-9)
	assert.InDelta(t, 50, hit.Score, 1e-9)
	assert.Equal(t, "yes moved +10.0% in 10s", hit.Message)

	trade, ok := domain.Signal{Payload: hit.Payload}.SuggestedTrade()
	require.True(t, ok)
	assert.Equal(t, "momentum_follow", trade.Action)
	require.Len(t, trade.Legs, 1)
	assert.Equal(t, domain.SideBuy, trade.Legs[0].Side)
}

func TestDetectSpikeBelowThreshold(t *testing.T) {
	rule := testRule(domain.RuleSpikeDetect, map[string]float64{"pct": 0.03})
	latest := tick("yes", testNow, 0.505, 100, 500)
	snap := snapshotOf(domain.Market{ID: "mkt-1"},
		map[string]domain.Tick{"yes": latest},
		[]domain.Tick{latest, tick("yes", testNow.Add(-5*time.Second), 0.50, 90, 500)},
	)

	assert.Nil(t, detectSpike(rule, snap))
}

func TestDetectSpikeNoLiquidityFloorByDefault(t *testing.T) {
	rule := testRule(domain.RuleSpikeDetect, map[string]float64{"window_secs": 10, "pct": 0.03})
	latest := tick("yes", testNow, 0.55, 100, 5)
	snap := snapshotOf(domain.Market{ID: "mkt-1"},
		map[string]domain.Tick{"yes": latest},
		[]domain.Tick{latest, tick("yes", testNow.Add(-5*time.Second), 0.50, 90, 5)},
	)

	require.NotNil(t, detectSpike(rule, snap))

	rule.Config.Params["min_liquidity"] = 50
	assert.Nil(t, detectSpike(rule, snap))
}

func TestDetectSpikeNeedsTwoTicksInWindow(t *testing.T) {
	rule := testRule(domain.RuleSpikeDetect, map[string]float64{"window_secs": 10, "pct": 0.03})
	latest := tick("yes", testNow, 0.55, 100, 500)
	snap := snapshotOf(domain.Market{ID: "mkt-1"},
		map[string]domain.Tick{"yes": latest},
		// The older tick sits outside the window.
		[]domain.Tick{latest, tick("yes", testNow.Add(-30*time.Second), 0.50, 90, 500)},
	)

	assert.Nil(t, detectSpike(rule, snap))
}

func TestDetectTrendBreakoutFires(t *testing.T) {
	rule := testRule(domain.RuleTrendBreakout, map[string]float64{"deviation": 0.05})
	latest := tick("yes", testNow, 0.58, 100, 500)
	snap := snapshotOf(domain.Market{ID: "mkt-1"},
		map[string]domain.Tick{"yes": latest},
		// Window mean is 0.5125; the 0.60 high inside the window must not
		// mask the deviation, and the 0.90 tick sits past the lookback.
		[]domain.Tick{
			latest,
			tick("yes", testNow.Add(-30*time.Second), 0.50, 90, 500),
			tick("yes", testNow.Add(-60*time.Second), 0.60, 80, 500),
			tick("yes", testNow.Add(-90*time.Second), 0.48, 70, 500),
			tick("yes", testNow.Add(-120*time.Second), 0.47, 70, 500),
			tick("yes", testNow.Add(-400*time.Second), 0.90, 70, 500),
		},
	)

	hit := detectTrendBreakout(rule, snap)
	require.NotNil(t, hit)
	assert.InDelta(t, (0.58-0.5125)/0.5125, hit.EdgeScore, 1e-9)
	assert.InDelta(t, 55, hit.Score, 1e-9)
	assert.Equal(t, "yes broke +13.2% from its 300s mean", hit.Message)
	assert.InDelta(t, 0.5125, hit.Payload["window_mean"].(float64), 1e-9)

	trade, ok := domain.Signal{Payload: hit.Payload}.SuggestedTrade()
	require.True(t, ok)
	assert.Equal(t, "trend_follow", trade.Action)
	assert.Equal(t, domain.SideBuy, trade.Legs[0].Side)
}

func TestDetectTrendBreakoutNeedsFivePoints(t *testing.T) {
	rule := testRule(domain.RuleTrendBreakout, nil)
	latest := tick("yes", testNow, 0.60, 100, 500)
	snap := snapshotOf(domain.Market{ID: "mkt-1"},
		map[string]domain.Tick{"yes": latest},
		[]domain.Tick{
			latest,
			tick("yes", testNow.Add(-30*time.Second), 0.50, 90, 500),
			tick("yes", testNow.Add(-60*time.Second), 0.51, 80, 500),
			tick("yes", testNow.Add(-90*time.Second), 0.50, 70, 500),
		},
	)

	assert.Nil(t, detectTrendBreakout(rule, snap))
}

func TestDetectTrendBreakoutWithinThreshold(t *testing.T) {
	rule := testRule(domain.RuleTrendBreakout, map[string]float64{"deviation": 0.05})
	latest := tick("yes", testNow, 0.51, 100, 500)
	snap := snapshotOf(domain.Market{ID: "mkt-1"},
		map[string]domain.Tick{"yes": latest},
		[]domain.Tick{
			latest,
			tick("yes", testNow.Add(-30*time.Second), 0.50, 90, 500),
			tick("yes", testNow.Add(-60*time.Second), 0.50, 80, 500),
			tick("yes", testNow.Add(-90*time.Second), 0.50, 70, 500),
			tick("yes", testNow.Add(-120*time.Second), 0.50, 70, 500),
		},
	)

	assert.Nil(t, detectTrendBreakout(rule, snap))
}

func TestDetectEndgameFires(t *testing.T) {
	rule := testRule(domain.RuleEndgameSweep, nil)
	endsAt := testNow.Add(10 * time.Minute)
	latest := tick("yes", testNow, 0.96, 100, 500)
	snap := snapshotOf(domain.Market{ID: "mkt-1", Title: "Near resolution", EndsAt: &endsAt},
		map[string]domain.Tick{"yes": latest},
		[]domain.Tick{
			latest,
			tick("yes", testNow.Add(-10*time.Second), 0.95, 10, 500),
			tick("yes", testNow.Add(-20*time.Second), 0.95, 10, 500),
			tick("yes", testNow.Add(-30*time.Second), 0.95, 10, 500),
		},
	)

	hit := detectEndgame(rule, snap, testNow)
	require.NotNil(t, hit)
	// volumes [100 10 10 10]: mean 32.5, sample stdev 45, z = 1.5.
	assert.InDelta(t, 1.5, hit.Payload["volume_z"], 1e-9)
	assert.InDelta(t, 60, hit.Score, 1e-9)
	assert.Equal(t, "yes trades at 0.96 with 10.0m left", hit.Message)
}

func TestDetectEndgameTooFarOut(t *testing.T) {
	rule := testRule(domain.RuleEndgameSweep, map[string]float64{"minutes_to_end": 30})
	endsAt := testNow.Add(2 * time.Hour)
	latest := tick("yes", testNow, 0.96, 100, 500)
	snap := snapshotOf(domain.Market{ID: "mkt-1", EndsAt: &endsAt},
		map[string]domain.Tick{"yes": latest},
		[]domain.Tick{latest},
	)

	assert.Nil(t, detectEndgame(rule, snap, testNow))
}

func TestDetectDutchBookFires(t *testing.T) {
	rule := testRule(domain.RuleDutchBook, map[string]float64{"sum_threshold": 0.995, "min_liquidity": 100})
	snap := snapshotOf(domain.Market{ID: "mkt-1"},
		map[string]domain.Tick{
			"a": tick("a", testNow, 0.40, 50, 500),
			"b": tick("b", testNow, 0.45, 60, 600),
		},
		nil,
	)

	hit := detectDutchBook(rule, snap)
	require.NotNil(t, hit)
	assert.InDelta(t, 0.15, hit.EdgeScore, 1e-9)
	assert.InDelta(t, 75, hit.Score, 1e-9)
	assert.Equal(t, "Dutch edge 15.0% (sum=0.850)", hit.Message)
	assert.InDelta(t, 0.85, hit.Payload["total_price"].(float64), 1e-9)

	trade, ok := domain.Signal{Payload: hit.Payload}.SuggestedTrade()
	require.True(t, ok)
	assert.Equal(t, "dutch_book_basket", trade.Action)
	require.Len(t, trade.Legs, 2)
	for _, leg := range trade.Legs {
		assert.Equal(t, domain.SideBuy, leg.Side)
	}
}

func TestDetectDutchBookAtParity(t *testing.T) {
	rule := testRule(domain.RuleDutchBook, nil)
	snap := snapshotOf(domain.Market{ID: "mkt-1"},
		map[string]domain.Tick{
			"a": tick("a", testNow, 0.50, 50, 500),
			"b": tick("b", testNow, 0.50, 60, 600),
		},
		nil,
	)

	assert.Nil(t, detectDutchBook(rule, snap))
}

func TestDetectDutchBookIlliquid(t *testing.T) {
	rule := testRule(domain.RuleDutchBook, map[string]float64{"min_liquidity": 200})
	snap := snapshotOf(domain.Market{ID: "mkt-1"},
		map[string]domain.Tick{
			"a": tick("a", testNow, 0.40, 50, 500),
			"b": tick("b", testNow, 0.45, 60, 50),
		},
		nil,
	)

	assert.Nil(t, detectDutchBook(rule, snap))
}

type staticFeed struct {
	snap feed.PriceSnapshot
	ok   bool
}

func (f staticFeed) Snapshot(string) (feed.PriceSnapshot, bool) { return f.snap, f.ok }

func TestDetectLeadLagFires(t *testing.T) {
	rule := testRule(domain.RuleCryptoLeadLag, map[string]float64{"min_return": 0.003, "max_drift": 0.002})
	latest := tick("yes", testNow, 0.50, 100, 500)
	snap := snapshotOf(domain.Market{ID: "mkt-1", Title: "Will Bitcoin close above 100k today?"},
		map[string]domain.Tick{"yes": latest},
		[]domain.Tick{latest, tick("yes", testNow.Add(-2*time.Second), 0.499, 90, 500)},
	)
	crypto := staticFeed{snap: feed.PriceSnapshot{Symbol: "btcusdt", Price: 101000, Return1s: 0.005, TS: testNow}, ok: true}

	hit := detectLeadLag(rule, snap, crypto)
	require.NotNil(t, hit)
	assert.Equal(t, "btcusdt", hit.Payload["symbol"])
	assert.InDelta(t, 0.005, hit.EdgeScore, 1e-9)

	trade, ok := domain.Signal{Payload: hit.Payload}.SuggestedTrade()
	require.True(t, ok)
	assert.Equal(t, domain.SideBuy, trade.Legs[0].Side)
}

func TestDetectLeadLagAlreadyDrifted(t *testing.T) {
	rule := testRule(domain.RuleCryptoLeadLag, map[string]float64{"max_drift": 0.002})
	latest := tick("yes", testNow, 0.52, 100, 500)
	snap := snapshotOf(domain.Market{ID: "mkt-1", Title: "Bitcoin above 100k"},
		map[string]domain.Tick{"yes": latest},
		[]domain.Tick{latest, tick("yes", testNow.Add(-2*time.Second), 0.50, 90, 500)},
	)
	crypto := staticFeed{snap: feed.PriceSnapshot{Return1s: 0.005, TS: testNow}, ok: true}

	assert.Nil(t, detectLeadLag(rule, snap, crypto))
}

func TestDetectLeadLagNonCryptoMarket(t *testing.T) {
	rule := testRule(domain.RuleCryptoLeadLag, nil)
	latest := tick("yes", testNow, 0.50, 100, 500)
	snap := snapshotOf(domain.Market{ID: "mkt-1", Title: "Presidential election winner"},
		map[string]domain.Tick{"yes": latest}, []domain.Tick{latest})
	crypto := staticFeed{snap: feed.PriceSnapshot{Return1s: 0.01, TS: testNow}, ok: true}

	assert.Nil(t, detectLeadLag(rule, snap, crypto))
}

func TestDetectTemporalArbFires(t *testing.T) {
	rule := testRule(domain.RuleTemporalArbitrage, map[string]float64{"min_gap": 0.02})
	nearEnd := testNow.Add(24 * time.Hour)
	farEnd := testNow.Add(7 * 24 * time.Hour)
	latest := tick("yes", testNow, 0.60, 100, 500)
	snap := snapshotOf(domain.Market{ID: "near", Title: "Will it rain in NYC?", EndsAt: &nearEnd},
		map[string]domain.Tick{"yes": latest},
		[]domain.Tick{latest},
	)
	snap.Peers = []PeerQuote{{MarketID: "far", Title: "Will it rain in NYC?", EndsAt: &farEnd, Price: 0.50}}

	hit := detectTemporalArb(rule, snap)
	require.NotNil(t, hit)
	assert.InDelta(t, 0.10, hit.EdgeScore, 1e-9)
	assert.Equal(t, "near", hit.Payload["near_market"])
	assert.Equal(t, "far", hit.Payload["far_market"])
	// 60 + 0.10*500, clamped.
	assert.InDelta(t, 100, hit.Score, 1e-9)

	trade, ok := domain.Signal{Payload: hit.Payload}.SuggestedTrade()
	require.True(t, ok)
	require.Len(t, trade.Legs, 2)
	assert.Equal(t, domain.SideSell, trade.Legs[0].Side)
	assert.Equal(t, domain.SideBuy, trade.Legs[1].Side)
	// The far leg belongs to the peer market; only its market id is known.
	assert.Equal(t, "", trade.Legs[1].OptionID)
}

func TestDetectTemporalArbGapTooSmall(t *testing.T) {
	rule := testRule(domain.RuleTemporalArbitrage, map[string]float64{"min_gap": 0.02})
	nearEnd := testNow.Add(24 * time.Hour)
	farEnd := testNow.Add(7 * 24 * time.Hour)
	latest := tick("yes", testNow, 0.51, 100, 500)
	snap := snapshotOf(domain.Market{ID: "near", Title: "Will it rain in NYC?", EndsAt: &nearEnd},
		map[string]domain.Tick{"yes": latest},
		[]domain.Tick{latest},
	)
	snap.Peers = []PeerQuote{{MarketID: "far", Title: "Will it rain in NYC?", EndsAt: &farEnd, Price: 0.50}}

	assert.Nil(t, detectTemporalArb(rule, snap))
}

func TestDetectImbalanceFires(t *testing.T) {
	rule := testRule(domain.RuleOrderBookImbalance, map[string]float64{"min_imbalance": 0.8, "max_spread": 0.02})
	latest := tick("yes", testNow, 0.50, 100, 500)
	snap := snapshotOf(domain.Market{ID: "mkt-1"}, map[string]domain.Tick{"yes": latest}, []domain.Tick{latest})
	features := map[string]float64{"size_imbalance": 0.9, "spread": 0.01}

	hit := detectImbalance(rule, snap, features)
	require.NotNil(t, hit)
	assert.InDelta(t, 0.9, hit.EdgeScore, 1e-9)
	assert.InDelta(t, 64, hit.Score, 1e-9)
	assert.InDelta(t, 100, hit.Payload["estimated_edge_bps"].(float64), 1e-6)
}

func TestDetectImbalanceWideSpread(t *testing.T) {
	rule := testRule(domain.RuleOrderBookImbalance, map[string]float64{"max_spread": 0.02})
	latest := tick("yes", testNow, 0.50, 100, 500)
	snap := snapshotOf(domain.Market{ID: "mkt-1"}, map[string]domain.Tick{"yes": latest}, []domain.Tick{latest})

	assert.Nil(t, detectImbalance(rule, snap, map[string]float64{"size_imbalance": 0.9, "spread": 0.05}))
	assert.Nil(t, detectImbalance(rule, snap, nil))
}

func TestDetectVolatilityHarvestFires(t *testing.T) {
	rule := testRule(domain.RuleVolatilityHarvest, nil)
	latest := tick("yes", testNow, 0.48, 100, 2000)
	snap := snapshotOf(domain.Market{ID: "mkt-1"}, map[string]domain.Tick{"yes": latest}, []domain.Tick{latest})
	prob := 0.7
	ectx := EvalContext{
		Now:    testNow,
		MLProb: &prob,
		Features: map[string]float64{
			"mid_price":          0.50,
			"spread":             0.02,
			"price_velocity_10s": -0.04, // -8% against the mid
		},
	}

	hit := detectVolatilityHarvest(rule, snap, ectx)
	require.NotNil(t, hit)
	assert.InDelta(t, 0.20, hit.EdgeScore, 1e-9)
	assert.InDelta(t, 74, hit.Score, 1e-9)
	trade, ok := domain.Signal{Payload: hit.Payload}.SuggestedTrade()
	require.True(t, ok)
	assert.Equal(t, "volatility_harvest", trade.Action)
	require.NotNil(t, trade.Confidence)
	assert.InDelta(t, 0.7, *trade.Confidence, 1e-9)
}

func TestDetectVolatilityHarvestNeedsModel(t *testing.T) {
	rule := testRule(domain.RuleVolatilityHarvest, nil)
	latest := tick("yes", testNow, 0.48, 100, 2000)
	snap := snapshotOf(domain.Market{ID: "mkt-1"}, map[string]domain.Tick{"yes": latest}, []domain.Tick{latest})

	assert.Nil(t, detectVolatilityHarvest(rule, snap, EvalContext{Now: testNow}))
}

func TestDetectZombieHunterFires(t *testing.T) {
	rule := testRule(domain.RuleZombieHunter, nil)
	latest := tick("yes", testNow, 0.02, 100, 800)
	snap := snapshotOf(domain.Market{ID: "mkt-1"}, map[string]domain.Tick{"yes": latest}, []domain.Tick{latest})
	prob := 0.005
	ectx := EvalContext{Now: testNow, MLProb: &prob, Features: map[string]float64{"days_to_expiry": 3}}

	hit := detectZombieHunter(rule, snap, ectx)
	require.NotNil(t, hit)
	assert.InDelta(t, 0.015, hit.EdgeScore, 1e-9)
	trade, ok := domain.Signal{Payload: hit.Payload}.SuggestedTrade()
	require.True(t, ok)
	assert.Equal(t, domain.SideSell, trade.Legs[0].Side)
}

func TestDetectZombieHunterModelDisagrees(t *testing.T) {
	rule := testRule(domain.RuleZombieHunter, nil)
	latest := tick("yes", testNow, 0.02, 100, 800)
	snap := snapshotOf(domain.Market{ID: "mkt-1"}, map[string]domain.Tick{"yes": latest}, []domain.Tick{latest})
	prob := 0.05
	ectx := EvalContext{Now: testNow, MLProb: &prob, Features: map[string]float64{"days_to_expiry": 3}}

	assert.Nil(t, detectZombieHunter(rule, snap, ectx))
}

func TestEvaluateUnknownType(t *testing.T) {
	rule := domain.Rule{Type: domain.RuleType("NOT_A_RULE")}
	snap := snapshotOf(domain.Market{ID: "mkt-1"}, nil, nil)

	hit, err := Evaluate(rule, snap, EvalContext{Now: testNow})
	require.Error(t, err)
	assert.Nil(t, hit)
}

func TestEvaluateCrossMarketSkipsPerMarketPass(t *testing.T) {
	rule := testRule(domain.RuleCrossMarketMisprice, nil)
	snap := snapshotOf(domain.Market{ID: "mkt-1"}, nil, nil)

	hit, err := Evaluate(rule, snap, EvalContext{Now: testNow})
	require.NoError(t, err)
	assert.Nil(t, hit)
}

func TestMeanAndStdev(t *testing.T) {
	assert.Equal(t, 0.0, mean(nil))
	assert.Equal(t, 0.0, stdev([]float64{5}))
	assert.InDelta(t, 32.5, mean([]float64{100, 10, 10, 10}), 1e-9)
	assert.InDelta(t, 45, stdev([]float64{100, 10, 10, 10}), 1e-9)
}
