package domain

import "time"

// RuleType identifies a detection algorithm. The set is closed: rule files
// select an algorithm, they do not define one.
type RuleType string

const (
	RuleSpikeDetect         RuleType = "SPIKE_DETECT"
	RuleTrendBreakout       RuleType = "TREND_BREAKOUT"
	RuleEndgameSweep        RuleType = "ENDGAME_SWEEP"
	RuleDutchBook           RuleType = "DUTCH_BOOK_DETECT"
	RuleCryptoLeadLag       RuleType = "CRYPTO_LEAD_LAG"
	RuleTemporalArbitrage   RuleType = "TEMPORAL_ARBITRAGE"
	RuleOrderBookImbalance  RuleType = "ORDER_BOOK_IMBALANCE"
	RuleCrossMarketMisprice RuleType = "CROSS_MARKET_MISPRICE"
	RuleVolatilityHarvest   RuleType = "VOLATILITY_HARVEST"
	RuleZombieHunter        RuleType = "ZOMBIE_HUNTER"
)

// DefaultCooldown applies when a rule does not configure dedupe.cooldown_secs,
// and to ML-only signals which have no rule.
const DefaultCooldown = 5 * time.Minute

// RuleScore configures the scoring function: base plus weighted metrics.
type RuleScore struct {
	Base    float64            `yaml:"base"`
	Weights map[string]float64 `yaml:"weights"`
}

// RuleOutputs declares the alert level and scoring of a rule.
type RuleOutputs struct {
	Level string    `yaml:"level"`
	Score RuleScore `yaml:"score"`
}

// RuleScope restricts a rule to matching markets. Empty lists match all.
type RuleScope struct {
	Platforms []string `yaml:"platforms"`
	Tags      []string `yaml:"tags"`
}

// RuleDedupe configures per-(rule, market) emission cooldown.
type RuleDedupe struct {
	CooldownSecs int `yaml:"cooldown_secs"`
}

// RuleConfig is the parsed YAML body of a rule definition.
type RuleConfig struct {
	Type        string             `yaml:"type"`
	Name        string             `yaml:"name"`
	Enabled     *bool              `yaml:"enabled"`
	Description string             `yaml:"description"`
	Params      map[string]float64 `yaml:"params"`
	Outputs     RuleOutputs        `yaml:"outputs"`
	Scope       RuleScope          `yaml:"scope"`
	Dedupe      RuleDedupe         `yaml:"dedupe"`
	Tags        []string           `yaml:"tags"`
}

// Rule is a stored, versioned rule definition.
type Rule struct {
	ID      int64
	Name    string
	Type    RuleType
	Enabled bool
	Version int
	RawYAML string
	Config  RuleConfig
}

// Param returns a numeric parameter, or def when absent.
func (r Rule) Param(key string, def float64) float64 {
	if v, ok := r.Config.Params[key]; ok {
		return v
	}
	return def
}

// Cooldown returns the configured emission cooldown for this rule.
func (r Rule) Cooldown() time.Duration {
	if secs := r.Config.Dedupe.CooldownSecs; secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return DefaultCooldown
}

// Level returns the configured alert level, defaulting to P2.
func (r Rule) Level() string {
	if r.Config.Outputs.Level != "" {
		return r.Config.Outputs.Level
	}
	return LevelP2
}

// InScope reports whether the rule applies to the given market.
func (r Rule) InScope(m Market) bool {
	if len(r.Config.Scope.Platforms) > 0 {
		found := false
		for _, p := range r.Config.Scope.Platforms {
			if p == m.Platform {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if len(r.Config.Scope.Tags) > 0 {
		for _, want := range r.Config.Scope.Tags {
			for _, have := range m.Tags {
				if want == have {
					return true
				}
			}
		}
		return false
	}
	return true
}
