package risk

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jiliangzhu/MarketPulse-X/internal/domain"
)

type fakeIntentStore struct {
	openCount     int
	dailyNotional float64
	openErr       error
	dailyErr      error
}

func (f *fakeIntentStore) Create(_ context.Context, intent domain.OrderIntent) (domain.OrderIntent, error) {
	return intent, nil
}

func (f *fakeIntentStore) UpdateStatus(context.Context, int64, domain.IntentStatus, map[string]any) error {
	return nil
}

func (f *fakeIntentStore) GetByID(context.Context, int64) (domain.OrderIntent, error) {
	return domain.OrderIntent{}, domain.ErrNotFound
}

func (f *fakeIntentStore) List(context.Context, domain.IntentStatus, int) ([]domain.OrderIntent, error) {
	return nil, nil
}

func (f *fakeIntentStore) OpenCount(context.Context) (int, error) {
	return f.openCount, f.openErr
}

func (f *fakeIntentStore) DailyNotional(context.Context, time.Time) (float64, error) {
	return f.dailyNotional, f.dailyErr
}

func (f *fakeIntentStore) WithAdvisoryLock(ctx context.Context, _ int64, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testPolicy() domain.ExecPolicy {
	return domain.ExecPolicy{
		Name:                "test",
		Mode:                "manual",
		MaxNotionalPerOrder: 200,
		MaxConcurrentOrders: 3,
		MaxDailyNotional:    1000,
		SlippageBps:         100,
		Enabled:             true,
	}
}

func TestLimitCheckerPasses(t *testing.T) {
	checker := NewLimitChecker(&fakeIntentStore{openCount: 1, dailyNotional: 100}, quietLogger())
	intent := domain.OrderIntent{Qty: 100, LimitPrice: 0.50, Side: domain.SideBuy}

	reasons := checker.Check(context.Background(), intent, testPolicy())
	assert.Empty(t, reasons)
}

func TestLimitCheckerPerOrderNotional(t *testing.T) {
	checker := NewLimitChecker(&fakeIntentStore{}, quietLogger())
	intent := domain.OrderIntent{Qty: 500, LimitPrice: 0.50}

	reasons := checker.Check(context.Background(), intent, testPolicy())
	assert.Contains(t, reasons, ReasonPerOrderNotional)
}

func TestLimitCheckerMaxConcurrent(t *testing.T) {
	checker := NewLimitChecker(&fakeIntentStore{openCount: 3}, quietLogger())
	intent := domain.OrderIntent{Qty: 10, LimitPrice: 0.50}

	reasons := checker.Check(context.Background(), intent, testPolicy())
	assert.Contains(t, reasons, ReasonMaxConcurrent)
}

func TestLimitCheckerDailyNotional(t *testing.T) {
	checker := NewLimitChecker(&fakeIntentStore{dailyNotional: 999}, quietLogger())
	intent := domain.OrderIntent{Qty: 10, LimitPrice: 0.50}

	reasons := checker.Check(context.Background(), intent, testPolicy())
	assert.Contains(t, reasons, ReasonDailyNotional)
}

func TestLimitCheckerReportsAllViolations(t *testing.T) {
	checker := NewLimitChecker(&fakeIntentStore{openCount: 5, dailyNotional: 2000}, quietLogger())
	intent := domain.OrderIntent{Qty: 1000, LimitPrice: 0.90}

	reasons := checker.Check(context.Background(), intent, testPolicy())
	require.Len(t, reasons, 3)
	assert.Contains(t, reasons, ReasonPerOrderNotional)
	assert.Contains(t, reasons, ReasonMaxConcurrent)
	assert.Contains(t, reasons, ReasonDailyNotional)
}

func TestLimitCheckerStoreErrorsDoNotBlock(t *testing.T) {
	store := &fakeIntentStore{openErr: assert.AnError, dailyErr: assert.AnError}
	checker := NewLimitChecker(store, quietLogger())
	intent := domain.OrderIntent{Qty: 10, LimitPrice: 0.50}

	reasons := checker.Check(context.Background(), intent, testPolicy())
	assert.Empty(t, reasons)
}
