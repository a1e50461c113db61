package rules

import (
	"sort"
	"strings"

	"github.com/jiliangzhu/MarketPulse-X/internal/domain"
)

// MLCandidate is one market the model flagged this cycle.
type MLCandidate struct {
	MarketID   string
	Confidence float64
	Features   map[string]float64
	Reason     string
}

// FusedSignal is the per-market result of combining rule hits with model
// candidates, ready for emission.
type FusedSignal struct {
	MarketID   string
	OptionID   string
	Rule       *domain.Rule
	Level      string
	Score      float64
	EdgeScore  float64
	Source     string
	Confidence *float64
	MLFeatures map[string]float64
	Message    string
	Reason     string
	Payload    map[string]any
}

// Fuse merges rule hits and ML candidates per market. Confidence contributes
// confWeight * confidence * 100 edge, a rule hit adds ruleBonus edge, and a
// market flagged by both becomes a hybrid signal. Only the strongest rule hit
// per market survives.
func Fuse(hits []*Hit, candidates []MLCandidate, confWeight, ruleBonus float64) []FusedSignal {
	bestHit := make(map[string]*Hit)
	for _, hit := range hits {
		if hit == nil {
			continue
		}
		if prev, ok := bestHit[hit.MarketID]; !ok || hit.Score > prev.Score {
			bestHit[hit.MarketID] = hit
		}
	}
	mlByMarket := make(map[string]MLCandidate, len(candidates))
	for _, c := range candidates {
		mlByMarket[c.MarketID] = c
	}

	markets := make(map[string]struct{}, len(bestHit)+len(mlByMarket))
	for id := range bestHit {
		markets[id] = struct{}{}
	}
	for id := range mlByMarket {
		markets[id] = struct{}{}
	}

	fused := make([]FusedSignal, 0, len(markets))
	for marketID := range markets {
		var (
			edge    float64
			reasons []string
			sig     = FusedSignal{MarketID: marketID, Level: domain.LevelP2, Payload: map[string]any{}}
		)

		if ml, ok := mlByMarket[marketID]; ok {
			edge += ml.Confidence * 100 * confWeight
			conf := ml.Confidence
			sig.Confidence = &conf
			sig.MLFeatures = ml.Features
			sig.Source = domain.SourceML
			sig.Message = ml.Reason
			reasons = append(reasons, ml.Reason)
		}

		if hit, ok := bestHit[marketID]; ok {
			edge += ruleBonus
			rule := hit.Rule
			sig.Rule = &rule
			sig.OptionID = hit.OptionID
			sig.Level = rule.Level()
			sig.Score = hit.Score
			sig.Message = hit.Message
			sig.Payload = clonePayload(hit.Payload)
			if sig.Source == domain.SourceML {
				sig.Source = domain.SourceHybrid
			} else {
				sig.Source = domain.SourceRule
			}
			// Reason order is ML reason, rule message, trade rationale.
			reasons = append(reasons, hit.Message)
			if plan, ok := planFromPayload(hit.Payload); ok && plan.Rationale != "" {
				reasons = append(reasons, plan.Rationale)
			}
		}

		sig.EdgeScore = edge
		if sig.Score == 0 {
			sig.Score = edge
		}
		sig.Reason = strings.Join(reasons, "; ")
		fused = append(fused, sig)
	}

	sort.Slice(fused, func(i, j int) bool { return fused[i].MarketID < fused[j].MarketID })
	return fused
}

func clonePayload(payload map[string]any) map[string]any {
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		out[k] = v
	}
	return out
}

func planFromPayload(payload map[string]any) (domain.TradePlan, bool) {
	sig := domain.Signal{Payload: payload}
	return sig.SuggestedTrade()
}
