package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jiliangzhu/MarketPulse-X/internal/domain"
)

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

func (f *fakeRuleStore) List(context.Context) ([]domain.Rule, error) {
	return f.rules, f.err
}

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

const uploadRuleYAML = `type: SPIKE_DETECT
name: spike-detect
outputs:
  level: P2
`

func TestUploadRule(t *testing.T) {
	store := &fakeRuleStore{}
	audit := &fakeAuditStore{}
	h := NewRuleHandler(store, audit, 16000, testLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/rules", strings.NewReader(uploadRuleYAML))
	rec := httptest.NewRecorder()
	h.UploadRule(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "spike-detect", resp["name"])
	assert.Equal(t, "SPIKE_DETECT", resp["type"])
	assert.Equal(t, 1.0, resp["rule_id"])

	require.Len(t, store.upserts, 1)
	require.Len(t, audit.entries, 1)
	assert.Equal(t, "rule_uploaded", audit.entries[0].Action)
	assert.Equal(t, "spike-detect", audit.entries[0].TargetID)
}

func TestUploadRuleInvalidYAML(t *testing.T) {
	h := NewRuleHandler(&fakeRuleStore{}, &fakeAuditStore{}, 16000, testLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/rules", strings.NewReader("type: MADE_UP\nname: x\noutputs: {level: P2}\n"))
	rec := httptest.NewRecorder()
	h.UploadRule(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "unknown rule type")
}

func TestUploadRuleTooLarge(t *testing.T) {
	h := NewRuleHandler(&fakeRuleStore{}, &fakeAuditStore{}, 64, testLogger())

	body := uploadRuleYAML + "description: " + strings.Repeat("x", 200) + "\n"
	req := httptest.NewRequest(http.MethodPost, "/api/rules", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.UploadRule(rec, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestListRules(t *testing.T) {
	store := &fakeRuleStore{rules: []domain.Rule{
		{ID: 1, Name: "spike-detect", Type: domain.RuleSpikeDetect, Enabled: true},
	}}
	h := NewRuleHandler(store, &fakeAuditStore{}, 16000, testLogger())

	rec := httptest.NewRecorder()
	h.ListRules(rec, httptest.NewRequest(http.MethodGet, "/api/rules", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "spike-detect")
}

func TestListRulesStoreError(t *testing.T) {
	h := NewRuleHandler(&fakeRuleStore{err: assert.AnError}, &fakeAuditStore{}, 16000, testLogger())

	rec := httptest.NewRecorder()
	h.ListRules(rec, httptest.NewRequest(http.MethodGet, "/api/rules", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestParseListOpts(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/signals?limit=10&offset=20", nil)
	opts := parseListOpts(req)
	assert.Equal(t, 10, opts.Limit)
	assert.Equal(t, 20, opts.Offset)

	req = httptest.NewRequest(http.MethodGet, "/api/signals", nil)
	opts = parseListOpts(req)
	assert.Equal(t, 50, opts.Limit)
	assert.Equal(t, 0, opts.Offset)

	req = httptest.NewRequest(http.MethodGet, "/api/signals?limit=9999", nil)
	assert.Equal(t, 500, parseListOpts(req).Limit)
}
