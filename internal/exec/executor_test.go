package exec

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jiliangzhu/MarketPulse-X/internal/domain"
	"github.com/jiliangzhu/MarketPulse-X/internal/metrics"
	"github.com/jiliangzhu/MarketPulse-X/internal/risk"
)

func staticPolicy(policy domain.ExecPolicy) func(ctx context.Context) (domain.ExecPolicy, error) {
	return func(context.Context) (domain.ExecPolicy, error) { return policy, nil }
}

func newTestExecutor(mock bool, intents *fakeIntentStore, ticks *fakeTickStore, audit *fakeAuditStore) *Executor {
	policy := domain.ExecPolicy{
		ID:                  1,
		Name:                "test",
		MaxNotionalPerOrder: 200,
		MaxConcurrentOrders: 3,
		MaxDailyNotional:    1000,
		SlippageBps:         100,
		Enabled:             true,
	}
	limits := risk.NewLimitChecker(intents, quietLogger())
	guardrail := risk.NewGuardrail(ticks)
	return NewExecutor(mock, intents, limits, guardrail, staticPolicy(policy), audit, metrics.New(), quietLogger())
}

func suggestedIntent(intents *fakeIntentStore, limit float64) domain.OrderIntent {
	intent, _ := intents.Create(context.Background(), domain.OrderIntent{
		MarketID:   "mkt-1",
		OptionID:   "yes",
		Side:       domain.SideBuy,
		Qty:        10,
		LimitPrice: limit,
		Status:     domain.IntentSuggested,
	})
	return intent
}

func TestConfirmMockFills(t *testing.T) {
	intents := &fakeIntentStore{}
	ticks := &fakeTickStore{latest: map[string]domain.Tick{"yes": {OptionID: "yes", Price: 0.60}}}
	audit := &fakeAuditStore{}
	executor := newTestExecutor(true, intents, ticks, audit)
	created := suggestedIntent(intents, 0.60)

	confirmed, err := executor.Confirm(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.IntentFilled, confirmed.Status)

	checks, ok := confirmed.Detail["checks"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, checks["approved"])

	require.Len(t, audit.entries, 1)
	assert.Equal(t, "intent_confirmed", audit.entries[0].Action)
	assert.Equal(t, string(domain.IntentFilled), audit.entries[0].Meta["status"])
}

func TestConfirmWithoutMockSends(t *testing.T) {
	intents := &fakeIntentStore{}
	ticks := &fakeTickStore{latest: map[string]domain.Tick{"yes": {OptionID: "yes", Price: 0.60}}}
	executor := newTestExecutor(false, intents, ticks, &fakeAuditStore{})
	created := suggestedIntent(intents, 0.60)

	confirmed, err := executor.Confirm(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.IntentSent, confirmed.Status)
}

func TestConfirmRejectsOnSlippage(t *testing.T) {
	intents := &fakeIntentStore{}
	ticks := &fakeTickStore{latest: map[string]domain.Tick{"yes": {OptionID: "yes", Price: 0.60}}}
	executor := newTestExecutor(true, intents, ticks, &fakeAuditStore{})
	created := suggestedIntent(intents, 0.70)

	confirmed, err := executor.Confirm(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.IntentRejected, confirmed.Status)

	checks := confirmed.Detail["checks"].(map[string]any)
	assert.Equal(t, false, checks["approved"])
	assert.Contains(t, checks["reasons"], risk.ReasonSlippage)
}

func TestConfirmRejectsOnNotionalCap(t *testing.T) {
	intents := &fakeIntentStore{}
	ticks := &fakeTickStore{latest: map[string]domain.Tick{"yes": {OptionID: "yes", Price: 0.60}}}
	executor := newTestExecutor(true, intents, ticks, &fakeAuditStore{})
	created, _ := intents.Create(context.Background(), domain.OrderIntent{
		MarketID: "mkt-1", OptionID: "yes", Side: domain.SideBuy,
		Qty: 1000, LimitPrice: 0.60, Status: domain.IntentSuggested,
	})

	confirmed, err := executor.Confirm(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.IntentRejected, confirmed.Status)
	checks := confirmed.Detail["checks"].(map[string]any)
	assert.Contains(t, checks["reasons"], risk.ReasonPerOrderNotional)
}

func TestConfirmUnknownIntent(t *testing.T) {
	executor := newTestExecutor(true, &fakeIntentStore{}, &fakeTickStore{}, &fakeAuditStore{})

	_, err := executor.Confirm(context.Background(), 99)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestValidateMissingOption(t *testing.T) {
	intents := &fakeIntentStore{}
	executor := newTestExecutor(true, intents, &fakeTickStore{}, &fakeAuditStore{})

	approved, reasons, err := executor.Validate(context.Background(), domain.OrderIntent{
		MarketID: "mkt-1", Side: domain.SideBuy, Qty: 1, LimitPrice: 0.5,
	})
	require.NoError(t, err)
	assert.False(t, approved)
	assert.Contains(t, reasons, "missing option for guardrail")
}
