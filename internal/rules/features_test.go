package rules

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jiliangzhu/MarketPulse-X/internal/domain"
)

func TestBuildFeaturesNoTicks(t *testing.T) {
	snap := snapshotOf(domain.Market{ID: "mkt-1"}, nil, nil)
	assert.Nil(t, BuildFeatures(snap, testNow))
}

func TestBuildFeaturesQuoteFields(t *testing.T) {
	latest := domain.Tick{
		TS: testNow, MarketID: "mkt-1", OptionID: "yes",
		Price: 0.59, Volume: 150, BestBid: 0.58, BestAsk: 0.62, Liquidity: 500,
	}
	endsAt := testNow.Add(48 * time.Hour)
	snap := snapshotOf(domain.Market{ID: "mkt-1", EndsAt: &endsAt},
		map[string]domain.Tick{"yes": latest}, []domain.Tick{latest})

	features := BuildFeatures(snap, testNow)
	require.NotNil(t, features)
	assert.InDelta(t, 0.60, features["mid_price"], 1e-9)
	assert.InDelta(t, 0.04, features["spread"], 1e-9)
	assert.InDelta(t, 150, features["volume"], 1e-9)
	assert.InDelta(t, 0, features["size_imbalance"], 1e-9)
	assert.InDelta(t, 48*60, features["time_to_expiry_minutes"], 1e-6)
	assert.InDelta(t, 2, features["days_to_expiry"], 1e-6)
	assert.InDelta(t, 0, features["price_velocity_10s"], 1e-9)
	assert.InDelta(t, 0, features["zscore_spread_5min"], 1e-9)
}

func TestBuildFeaturesPriceVelocity(t *testing.T) {
	latest := domain.Tick{TS: testNow, MarketID: "mkt-1", OptionID: "yes", Price: 0.55, Volume: 100}
	older := domain.Tick{TS: testNow.Add(-15 * time.Second), MarketID: "mkt-1", OptionID: "yes", Price: 0.50, Volume: 90}
	snap := snapshotOf(domain.Market{ID: "mkt-1"},
		map[string]domain.Tick{"yes": latest}, []domain.Tick{latest, older})

	features := BuildFeatures(snap, testNow)
	require.NotNil(t, features)
	assert.InDelta(t, 0.05, features["price_velocity_10s"], 1e-9)
	// Two prices in the five-minute window give a volatility estimate.
	assert.Greater(t, features["volatility_5m"], 0.0)
}

func TestBuildFeaturesAnchorsOnMostTradedOption(t *testing.T) {
	thin := domain.Tick{TS: testNow, MarketID: "mkt-1", OptionID: "a", Price: 0.30, Volume: 10, BestBid: 0.29, BestAsk: 0.31}
	busy := domain.Tick{TS: testNow, MarketID: "mkt-1", OptionID: "b", Price: 0.70, Volume: 500, BestBid: 0.69, BestAsk: 0.71}
	snap := snapshotOf(domain.Market{ID: "mkt-1"},
		map[string]domain.Tick{"a": thin, "b": busy}, []domain.Tick{busy, thin})

	features := BuildFeatures(snap, testNow)
	require.NotNil(t, features)
	assert.InDelta(t, 0.70, features["mid_price"], 1e-9)
	assert.InDelta(t, 500, features["volume"], 1e-9)
}

func TestBuildFeaturesSynonymDelta(t *testing.T) {
	latest := domain.Tick{TS: testNow, MarketID: "mkt-1", OptionID: "yes", Price: 0.60, BestBid: 0.59, BestAsk: 0.61, Volume: 100}
	snap := snapshotOf(domain.Market{ID: "mkt-1"},
		map[string]domain.Tick{"yes": latest}, []domain.Tick{latest})
	snap.Peers = []PeerQuote{
		{MarketID: "peer-1", Price: 0.50},
		{MarketID: "peer-2", Price: 0.54},
	}

	features := BuildFeatures(snap, testNow)
	require.NotNil(t, features)
	// Mid 0.60 against peer average 0.52.
	assert.Greater(t, features["synonym_price_delta_zscore"], 0.0)
}

func TestBuildFeaturesNoExpiry(t *testing.T) {
	latest := domain.Tick{TS: testNow, MarketID: "mkt-1", OptionID: "yes", Price: 0.50, Volume: 100}
	snap := snapshotOf(domain.Market{ID: "mkt-1"},
		map[string]domain.Tick{"yes": latest}, []domain.Tick{latest})

	features := BuildFeatures(snap, testNow)
	require.NotNil(t, features)
	assert.Zero(t, features["time_to_expiry_minutes"])
	assert.Zero(t, features["days_to_expiry"])
}
