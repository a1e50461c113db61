package risk

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jiliangzhu/MarketPulse-X/internal/domain"
)

type fakeTickStore struct {
	latest map[string]domain.Tick
	err    error
}

func (f *fakeTickStore) InsertBatch(context.Context, []domain.Tick) error { return nil }

func (f *fakeTickStore) Latest(context.Context, string) (map[string]domain.Tick, error) {
	return f.latest, f.err
}

func (f *fakeTickStore) Recent(context.Context, string, time.Duration, int) ([]domain.Tick, error) {
	return nil, nil
}

func (f *fakeTickStore) LastTS(context.Context) (time.Time, error) { return time.Time{}, nil }

func (f *fakeTickStore) ListBefore(context.Context, time.Time, int) ([]domain.Tick, error) {
	return nil, nil
}

func (f *fakeTickStore) DeleteBefore(context.Context, time.Time) (int64, error) { return 0, nil }

func guardrailIntent(side domain.Side, limit float64) domain.OrderIntent {
	return domain.OrderIntent{MarketID: "mkt-1", OptionID: "yes", Side: side, Qty: 10, LimitPrice: limit}
}

func TestGuardrailPassesWithinSlippage(t *testing.T) {
	store := &fakeTickStore{latest: map[string]domain.Tick{"yes": {OptionID: "yes", Price: 0.60}}}
	g := NewGuardrail(store)

	// 100 bps on 0.60 allows limits up to 0.606.
	reason, err := g.Check(context.Background(), guardrailIntent(domain.SideBuy, 0.605), testPolicy())
	require.NoError(t, err)
	assert.Empty(t, reason)
}

func TestGuardrailRejectsBuyAboveSlippage(t *testing.T) {
	store := &fakeTickStore{latest: map[string]domain.Tick{"yes": {OptionID: "yes", Price: 0.60}}}
	g := NewGuardrail(store)

	reason, err := g.Check(context.Background(), guardrailIntent(domain.SideBuy, 0.65), testPolicy())
	require.NoError(t, err)
	assert.Equal(t, ReasonSlippage, reason)
}

func TestGuardrailRejectsSellBelowSlippage(t *testing.T) {
	store := &fakeTickStore{latest: map[string]domain.Tick{"yes": {OptionID: "yes", Price: 0.60}}}
	g := NewGuardrail(store)

	reason, err := g.Check(context.Background(), guardrailIntent(domain.SideSell, 0.55), testPolicy())
	require.NoError(t, err)
	assert.Equal(t, ReasonSlippage, reason)
}

func TestGuardrailNoDepth(t *testing.T) {
	g := NewGuardrail(&fakeTickStore{latest: map[string]domain.Tick{}})

	reason, err := g.Check(context.Background(), guardrailIntent(domain.SideBuy, 0.60), testPolicy())
	require.NoError(t, err)
	assert.Equal(t, ReasonNoDepth, reason)
}

func TestGuardrailNoOptionDepth(t *testing.T) {
	store := &fakeTickStore{latest: map[string]domain.Tick{"other": {OptionID: "other", Price: 0.40}}}
	g := NewGuardrail(store)

	reason, err := g.Check(context.Background(), guardrailIntent(domain.SideBuy, 0.60), testPolicy())
	require.NoError(t, err)
	assert.Equal(t, ReasonNoOptionDepth, reason)
}

func TestGuardrailFallsBackToMid(t *testing.T) {
	store := &fakeTickStore{latest: map[string]domain.Tick{
		"yes": {OptionID: "yes", Price: 0, BestBid: 0.58, BestAsk: 0.62},
	}}
	g := NewGuardrail(store)

	reason, err := g.Check(context.Background(), guardrailIntent(domain.SideBuy, 0.60), testPolicy())
	require.NoError(t, err)
	assert.Empty(t, reason)
}

func TestGuardrailInvalidReferencePrice(t *testing.T) {
	store := &fakeTickStore{latest: map[string]domain.Tick{"yes": {OptionID: "yes", Price: 0}}}
	g := NewGuardrail(store)

	reason, err := g.Check(context.Background(), guardrailIntent(domain.SideBuy, 0.60), testPolicy())
	require.NoError(t, err)
	assert.Equal(t, ReasonInvalidRefPrice, reason)
}

func TestGuardrailStoreError(t *testing.T) {
	g := NewGuardrail(&fakeTickStore{err: assert.AnError})

	_, err := g.Check(context.Background(), guardrailIntent(domain.SideBuy, 0.60), testPolicy())
	assert.Error(t, err)
}
