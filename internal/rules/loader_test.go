package rules

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jiliangzhu/MarketPulse-X/internal/domain"
)

const validRuleYAML = `type: SPIKE_DETECT
name: spike-detect
enabled: true
params:
  pct: 0.03
  window_secs: 10
outputs:
  level: P2
  score:
    base: 50
    weights:
      velocity: 2.0
dedupe:
  cooldown_secs: 300
tags: [momentum]
`

func TestValidateRuleValid(t *testing.T) {
	cfg, err := ValidateRule([]byte(validRuleYAML), 16000)
	require.NoError(t, err)
	assert.Equal(t, string(domain.RuleSpikeDetect), cfg.Type)
	assert.Equal(t, "spike-detect", cfg.Name)
	assert.Equal(t, domain.LevelP2, cfg.Outputs.Level)
	assert.Equal(t, 0.03, cfg.Params["pct"])
	assert.Equal(t, 2.0, cfg.Outputs.Score.Weights["velocity"])
	assert.Equal(t, 300, cfg.Dedupe.CooldownSecs)
}

func TestValidateRuleTooLarge(t *testing.T) {
	raw := []byte(validRuleYAML + "description: " + strings.Repeat("x", 200) + "\n")
	_, err := ValidateRule(raw, 100)
	assert.ErrorIs(t, err, domain.ErrRuleTooLarge)
}

func TestValidateRuleRejectsInvalidDocuments(t *testing.T) {
	cases := map[string]string{
		"not yaml":       "{{{",
		"empty document": "",
		"unknown key":    "type: SPIKE_DETECT\nname: x\noutputs: {level: P2}\nbogus: 1\n",
		"missing type":   "name: x\noutputs: {level: P2}\n",
		"missing name":   "type: SPIKE_DETECT\noutputs: {level: P2}\n",
		"missing outputs": "type: SPIKE_DETECT\nname: x\n",
		"params not a mapping": "type: SPIKE_DETECT\nname: x\noutputs: {level: P2}\nparams: 3\n",
		"unknown rule type":    "type: MADE_UP\nname: x\noutputs: {level: P2}\n",
		"missing level":        "type: SPIKE_DETECT\nname: x\noutputs: {score: {base: 50}}\n",
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ValidateRule([]byte(raw), 16000)
			assert.ErrorIs(t, err, domain.ErrInvalidRule)
		})
	}
}

type fakeRuleStore struct {
	rules   []domain.Rule
	upserts []domain.RuleConfig
	err     error
}

func (f *fakeRuleStore) Upsert(_ context.Context, cfg domain.RuleConfig, _ string) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.upserts = append(f.upserts, cfg)
	return int64(len(f.upserts)), nil
}

func (f *fakeRuleStore) List(context.Context) ([]domain.Rule, error) { return f.rules, f.err }

type fakeAuditStore struct {
	entries []domain.AuditEntry
}

func (f *fakeAuditStore) Log(_ context.Context, actor, action, targetID string, meta map[string]any) error {
	f.entries = append(f.entries, domain.AuditEntry{Actor: actor, Action: action, TargetID: targetID, Meta: meta})
	return nil
}

func (f *fakeAuditStore) List(context.Context, domain.ListOpts) ([]domain.AuditEntry, error) {
	return nil, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestLoaderLoadDir(t *testing.T) {
	dir := t.TempDir()
	second := strings.Replace(validRuleYAML, "spike-detect", "spike-detect-fast", 1)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "10_spike.yaml"), []byte(validRuleYAML), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "20_spike_fast.yml"), []byte(second), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))

	store := &fakeRuleStore{}
	audit := &fakeAuditStore{}
	loader := NewLoader(dir, 16000, store, audit, testLogger())

	count, err := loader.LoadDir(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	require.Len(t, store.upserts, 2)
	assert.Equal(t, "spike-detect", store.upserts[0].Name)
	assert.Equal(t, "spike-detect-fast", store.upserts[1].Name)

	require.Len(t, audit.entries, 1)
	assert.Equal(t, "rules_loaded", audit.entries[0].Action)
	assert.Equal(t, 2, audit.entries[0].Meta["count"])
}

func TestLoaderLoadDirInvalidFileAborts(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.yaml"), []byte("type: MADE_UP\nname: x\noutputs: {level: P2}\n"), 0o644))

	loader := NewLoader(dir, 16000, &fakeRuleStore{}, &fakeAuditStore{}, testLogger())
	_, err := loader.LoadDir(context.Background())
	assert.ErrorIs(t, err, domain.ErrInvalidRule)
}

func TestLoaderLoadDirEmpty(t *testing.T) {
	loader := NewLoader(t.TempDir(), 16000, &fakeRuleStore{}, &fakeAuditStore{}, testLogger())
	count, err := loader.LoadDir(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}
