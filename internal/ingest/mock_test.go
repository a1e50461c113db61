package ingest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockSourceMarkets(t *testing.T) {
	src := NewMockSource(1)

	markets, err := src.ListMarkets(context.Background())
	require.NoError(t, err)
	require.Len(t, markets, 3)
	for _, m := range markets {
		assert.Equal(t, "mock", m.Platform)
		assert.NotNil(t, m.EndsAt)
	}
}

func TestMockSourceOptions(t *testing.T) {
	src := NewMockSource(1)

	opts, err := src.ListOptions(context.Background(), "mock-fed")
	require.NoError(t, err)
	require.Len(t, opts, 3)
	for _, opt := range opts {
		assert.Equal(t, "mock-fed", opt.MarketID)
	}

	none, err := src.ListOptions(context.Background(), "unknown")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestMockSourcePollTicks(t *testing.T) {
	src := NewMockSource(1)

	ticks, err := src.PollTicks(context.Background(), "mock-election")
	require.NoError(t, err)
	require.Len(t, ticks, 2)
	for _, tick := range ticks {
		assert.Equal(t, "mock-election", tick.MarketID)
		assert.Greater(t, tick.Price, 0.0)
		assert.Less(t, tick.Price, 1.0)
		assert.LessOrEqual(t, tick.BestBid, tick.Price)
		assert.GreaterOrEqual(t, tick.BestAsk, tick.Price)
		assert.Greater(t, tick.Liquidity, 0.0)
		assert.False(t, tick.TS.IsZero())
	}
}

func TestMockSourcePollTicksUnknownMarket(t *testing.T) {
	src := NewMockSource(1)

	ticks, err := src.PollTicks(context.Background(), "unknown")
	require.NoError(t, err)
	assert.Empty(t, ticks)
}

func TestMockSourceDeterministicWithSeed(t *testing.T) {
	a := NewMockSource(42)
	b := NewMockSource(42)

	ta, err := a.PollTicks(context.Background(), "mock-election")
	require.NoError(t, err)
	tb, err := b.PollTicks(context.Background(), "mock-election")
	require.NoError(t, err)

	require.Len(t, tb, len(ta))
	for i := range ta {
		assert.Equal(t, ta[i].Price, tb[i].Price)
	}
}
