package notify

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	name  string
	err   error
	sent  []string
}

func (f *fakeSender) Send(_ context.Context, title, _ string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, title)
	return nil
}

func (f *fakeSender) Name() string { return f.name }

type fakeDedupe struct {
	claimed map[string]bool
	err     error
}

func (f *fakeDedupe) Acquire(_ context.Context, key string, _ time.Duration) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	if f.claimed == nil {
		f.claimed = map[string]bool{}
	}
	if f.claimed[key] {
		return false, nil
	}
	f.claimed[key] = true
	return true, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestDispatchSends(t *testing.T) {
	sender := &fakeSender{name: "telegram"}
	d := NewDispatcher([]Sender{sender}, &fakeDedupe{}, testLogger())

	status := d.Dispatch(context.Background(), "1|mkt-1", time.Minute, "alert", "body")
	assert.Equal(t, StatusSent, status)
	require.Len(t, sender.sent, 1)
	assert.Equal(t, "alert", sender.sent[0])
}

func TestDispatchCooldownSuppressesRepeat(t *testing.T) {
	sender := &fakeSender{name: "telegram"}
	d := NewDispatcher([]Sender{sender}, &fakeDedupe{}, testLogger())

	assert.Equal(t, StatusSent, d.Dispatch(context.Background(), "1|mkt-1", time.Minute, "alert", "body"))
	assert.Equal(t, StatusCooldown, d.Dispatch(context.Background(), "1|mkt-1", time.Minute, "alert", "body"))
	assert.Len(t, sender.sent, 1)

	// A different key is a different alert.
	assert.Equal(t, StatusSent, d.Dispatch(context.Background(), "1|mkt-2", time.Minute, "alert", "body"))
}

func TestDispatchDryRunWithoutSenders(t *testing.T) {
	d := NewDispatcher(nil, &fakeDedupe{}, testLogger())

	status := d.Dispatch(context.Background(), "1|mkt-1", time.Minute, "alert", "body")
	assert.Equal(t, StatusDryRun, status)
}

func TestDispatchAllSendersFailing(t *testing.T) {
	d := NewDispatcher([]Sender{&fakeSender{name: "telegram", err: assert.AnError}}, nil, testLogger())

	status := d.Dispatch(context.Background(), "1|mkt-1", time.Minute, "alert", "body")
	assert.Equal(t, StatusError, status)
}

func TestDispatchPartialFailureStillSent(t *testing.T) {
	ok := &fakeSender{name: "discord"}
	failing := &fakeSender{name: "telegram", err: assert.AnError}
	d := NewDispatcher([]Sender{failing, ok}, nil, testLogger())

	status := d.Dispatch(context.Background(), "1|mkt-1", time.Minute, "alert", "body")
	assert.Equal(t, StatusSent, status)
	assert.Len(t, ok.sent, 1)
}

func TestDispatchDedupeErrorSendsAnyway(t *testing.T) {
	sender := &fakeSender{name: "telegram"}
	d := NewDispatcher([]Sender{sender}, &fakeDedupe{err: assert.AnError}, testLogger())

	status := d.Dispatch(context.Background(), "1|mkt-1", time.Minute, "alert", "body")
	assert.Equal(t, StatusSent, status)
	assert.Len(t, sender.sent, 1)
}

func TestTransport(t *testing.T) {
	d := NewDispatcher([]Sender{&fakeSender{name: "discord"}}, nil, testLogger())
	assert.Equal(t, "discord", d.Transport(StatusSent))
	assert.Equal(t, "discord-dry-run", d.Transport(StatusDryRun))

	empty := NewDispatcher(nil, nil, testLogger())
	assert.Equal(t, "telegram-dry-run", empty.Transport(StatusDryRun))
}
