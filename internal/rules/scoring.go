// Package rules evaluates detection rules over market snapshots and fuses
// the hits with model output into alert signals.
package rules

import (
	"github.com/jiliangzhu/MarketPulse-X/internal/domain"
)

// score combines the rule's base score with its weighted metrics. The rule's
// configured base, when set, overrides the detector default. Metrics missing
// from the map contribute zero. The result is clamped to [0, 100] and rounded
// to two decimals.
func score(rule domain.Rule, defaultBase float64, metrics map[string]float64) float64 {
	base := rule.Config.Outputs.Score.Base
	if base == 0 {
		base = defaultBase
	}
	s := base
	for name, weight := range rule.Config.Outputs.Score.Weights {
		s += weight * metrics[name]
	}
	return clamp100(s)
}
