package domain

import "time"

// Alert levels, highest priority first.
const (
	LevelP1 = "P1"
	LevelP2 = "P2"
	LevelP3 = "P3"
)

// Signal sources.
const (
	SourceRule   = "rule"
	SourceML     = "ml"
	SourceHybrid = "hybrid"
)

// Side is the direction of a trade leg.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// TradeLeg is one leg of a suggested trade. LimitPrice carries the
// slippage-adjusted price, ReferencePrice the observed one.
type TradeLeg struct {
	MarketID       string  `json:"market_id"`
	OptionID       string  `json:"option_id"`
	Side           Side    `json:"side"`
	Qty            float64 `json:"qty"`
	ReferencePrice float64 `json:"reference_price"`
	LimitPrice     float64 `json:"limit_price"`
	Label          string  `json:"label"`
}

// TradePlan is the actionable part of a signal payload.
type TradePlan struct {
	Action           string     `json:"action"`
	Rationale        string     `json:"rationale"`
	Legs             []TradeLeg `json:"legs"`
	EstimatedEdgeBps float64    `json:"estimated_edge_bps"`
	Confidence       *float64   `json:"confidence,omitempty"`
}

// BookEntry is one option's quote in a signal's book snapshot.
type BookEntry struct {
	OptionID  string     `json:"option_id"`
	Label     string     `json:"label"`
	Price     float64    `json:"price"`
	BestBid   float64    `json:"best_bid"`
	BestAsk   float64    `json:"best_ask"`
	Liquidity float64    `json:"liquidity"`
	TS        *time.Time `json:"ts"`
}

// Signal is a persisted, deduplicated alert.
type Signal struct {
	ID         int64
	MarketID   string
	OptionID   string
	RuleID     *int64
	Level      string
	Score      float64
	EdgeScore  float64
	Source     string
	Confidence *float64
	MLFeatures map[string]float64
	Reason     string
	Payload    map[string]any
	CreatedAt  time.Time
}

// SuggestedTrade extracts the trade plan embedded in the signal payload,
// if one is present. Payloads round-trip through JSON, so the plan may be
// either the typed struct or a generic map.
func (s Signal) SuggestedTrade() (TradePlan, bool) {
	raw, ok := s.Payload["suggested_trade"]
	if !ok || raw == nil {
		return TradePlan{}, false
	}
	switch v := raw.(type) {
	case TradePlan:
		return v, true
	case *TradePlan:
		if v == nil {
			return TradePlan{}, false
		}
		return *v, true
	case map[string]any:
		return tradePlanFromMap(v), true
	}
	return TradePlan{}, false
}

func tradePlanFromMap(m map[string]any) TradePlan {
	plan := TradePlan{
		Action:           asString(m["action"]),
		Rationale:        asString(m["rationale"]),
		EstimatedEdgeBps: asFloat(m["estimated_edge_bps"]),
	}
	legs, _ := m["legs"].([]any)
	for _, raw := range legs {
		leg, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		plan.Legs = append(plan.Legs, TradeLeg{
			MarketID:       asString(leg["market_id"]),
			OptionID:       asString(leg["option_id"]),
			Side:           Side(asString(leg["side"])),
			Qty:            asFloat(leg["qty"]),
			ReferencePrice: asFloat(leg["reference_price"]),
			LimitPrice:     asFloat(leg["limit_price"]),
			Label:          asString(leg["label"]),
		})
	}
	return plan
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	}
	return 0
}
