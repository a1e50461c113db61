package rules

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/jiliangzhu/MarketPulse-X/internal/domain"
)

// allowedRuleKeys is the closed set of top-level keys a rule document may
// carry.
var allowedRuleKeys = map[string]struct{}{
	"type": {}, "name": {}, "enabled": {}, "params": {}, "outputs": {},
	"scope": {}, "dedupe": {}, "tags": {}, "description": {},
}

var knownRuleTypes = map[string]struct{}{
	string(domain.RuleSpikeDetect): {}, string(domain.RuleTrendBreakout): {},
	string(domain.RuleEndgameSweep): {}, string(domain.RuleDutchBook): {},
	string(domain.RuleCryptoLeadLag): {}, string(domain.RuleTemporalArbitrage): {},
	string(domain.RuleOrderBookImbalance): {}, string(domain.RuleCrossMarketMisprice): {},
	string(domain.RuleVolatilityHarvest): {}, string(domain.RuleZombieHunter): {},
}

// ValidateRule parses and validates one rule document. Size, key set, and
// required fields are all enforced before the config is accepted.
func ValidateRule(raw []byte, maxBytes int) (domain.RuleConfig, error) {
	if maxBytes > 0 && len(raw) > maxBytes {
		return domain.RuleConfig{}, fmt.Errorf("%w: %d bytes exceeds limit %d", domain.ErrRuleTooLarge, len(raw), maxBytes)
	}

	var doc map[string]any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return domain.RuleConfig{}, fmt.Errorf("%w: not valid yaml: %v", domain.ErrInvalidRule, err)
	}
	if doc == nil {
		return domain.RuleConfig{}, fmt.Errorf("%w: document must be a mapping", domain.ErrInvalidRule)
	}
	for key := range doc {
		if _, ok := allowedRuleKeys[key]; !ok {
			return domain.RuleConfig{}, fmt.Errorf("%w: unknown key %q", domain.ErrInvalidRule, key)
		}
	}
	for _, required := range []string{"type", "name", "outputs"} {
		if _, ok := doc[required]; !ok {
			return domain.RuleConfig{}, fmt.Errorf("%w: missing %q", domain.ErrInvalidRule, required)
		}
	}
	if params, ok := doc["params"]; ok {
		if _, isMap := params.(map[string]any); !isMap {
			return domain.RuleConfig{}, fmt.Errorf("%w: params must be a mapping", domain.ErrInvalidRule)
		}
	}

	var cfg domain.RuleConfig
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return domain.RuleConfig{}, fmt.Errorf("%w: %v", domain.ErrInvalidRule, err)
	}
	if _, ok := knownRuleTypes[cfg.Type]; !ok {
		return domain.RuleConfig{}, fmt.Errorf("%w: unknown rule type %q", domain.ErrInvalidRule, cfg.Type)
	}
	if cfg.Outputs.Level == "" {
		return domain.RuleConfig{}, fmt.Errorf("%w: outputs.level is required", domain.ErrInvalidRule)
	}
	return cfg, nil
}

// Loader reads rule files from a directory into the rule store.
type Loader struct {
	dir      string
	maxBytes int
	store    domain.RuleStore
	audit    domain.AuditStore
	logger   *slog.Logger
}

// NewLoader creates a Loader for dir.
func NewLoader(dir string, maxBytes int, store domain.RuleStore, audit domain.AuditStore, logger *slog.Logger) *Loader {
	return &Loader{
		dir:      dir,
		maxBytes: maxBytes,
		store:    store,
		audit:    audit,
		logger:   logger.With(slog.String("component", "rule_loader")),
	}
}

// LoadDir upserts every *.yaml rule in the directory in filename order and
// returns the number loaded. Invalid files abort the load.
func (l *Loader) LoadDir(ctx context.Context) (int, error) {
	paths, err := filepath.Glob(filepath.Join(l.dir, "*.yaml"))
	if err != nil {
		return 0, fmt.Errorf("rules: scan %s: %w", l.dir, err)
	}
	more, err := filepath.Glob(filepath.Join(l.dir, "*.yml"))
	if err != nil {
		return 0, fmt.Errorf("rules: scan %s: %w", l.dir, err)
	}
	paths = append(paths, more...)
	sort.Strings(paths)

	count := 0
	for _, path := range paths {
		raw, err := os.ReadFile(path)
		if err != nil {
			return count, fmt.Errorf("rules: read %s: %w", path, err)
		}
		cfg, err := ValidateRule(raw, l.maxBytes)
		if err != nil {
			return count, fmt.Errorf("rules: %s: %w", filepath.Base(path), err)
		}
		id, err := l.store.Upsert(ctx, cfg, string(raw))
		if err != nil {
			return count, err
		}
		l.logger.Debug("rule loaded",
			slog.String("name", cfg.Name), slog.Int64("rule_id", id))
		count++
	}

	if l.audit != nil {
		_ = l.audit.Log(ctx, "rule_loader", "rules_loaded", "", map[string]any{"count": count})
	}
	l.logger.Info("rules loaded", slog.Int("count", count))
	return count, nil
}
