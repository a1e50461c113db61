package rules

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jiliangzhu/MarketPulse-X/internal/domain"
)

// PeerQuote is a synonym peer's primary-option price together with the peer
// metadata temporal comparison needs.
type PeerQuote struct {
	MarketID string
	Title    string
	EndsAt   *time.Time
	Price    float64
}

// MarketSnapshot is everything the detectors see for one market in one
// evaluation cycle.
type MarketSnapshot struct {
	Market  domain.Market
	Latest  map[string]domain.Tick   // latest tick per option
	Recent  []domain.Tick            // recent ticks, newest first
	Options map[string]domain.Option // by option id

	SynonymIDs []string
	Peers      []PeerQuote
}

// primaryOption returns the option id and latest tick with the highest price.
func (s *MarketSnapshot) primaryOption() (string, domain.Tick, bool) {
	var (
		bestID   string
		bestTick domain.Tick
		found    bool
	)
	for id, tick := range s.Latest {
		if !found || tick.Price > bestTick.Price {
			bestID, bestTick, found = id, tick, true
		}
	}
	return bestID, bestTick, found
}

// primaryPrice is the highest latest price across options, zero when the
// market has no ticks.
func (s *MarketSnapshot) primaryPrice() float64 {
	_, tick, ok := s.primaryOption()
	if !ok {
		return 0
	}
	return tick.Price
}

// optionLabel resolves an option id to its display label, falling back to
// the id itself.
func (s *MarketSnapshot) optionLabel(optionID string) string {
	if opt, ok := s.Options[optionID]; ok && opt.Label != "" {
		return opt.Label
	}
	return optionID
}

// labelledTicks maps lowercase option labels to their latest ticks. When two
// options share a label the more liquid one wins.
func (s *MarketSnapshot) labelledTicks() map[string]domain.Tick {
	out := make(map[string]domain.Tick, len(s.Latest))
	for id, tick := range s.Latest {
		label := strings.ToLower(s.optionLabel(id))
		if prev, ok := out[label]; ok && prev.Liquidity >= tick.Liquidity {
			continue
		}
		out[label] = tick
	}
	return out
}

// bookSnapshot renders the market's latest prices as label/price rows sorted
// by label. Options without a tick yet appear with a zero price.
func (s *MarketSnapshot) bookSnapshot() []domain.BookEntry {
	byLabel := make(map[string]domain.BookEntry, len(s.Options))
	for id, tick := range s.Latest {
		opt, ok := s.Options[id]
		if !ok {
			continue
		}
		if prev, seen := byLabel[opt.Label]; seen && prev.Price >= tick.Price {
			continue
		}
		byLabel[opt.Label] = domain.BookEntry{OptionID: id, Label: opt.Label, Price: tick.Price}
	}
	for id, opt := range s.Options {
		if _, seen := byLabel[opt.Label]; !seen {
			byLabel[opt.Label] = domain.BookEntry{OptionID: id, Label: opt.Label}
		}
	}

	entries := make([]domain.BookEntry, 0, len(byLabel))
	for _, e := range byLabel {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Label < entries[j].Label })
	return entries
}

// recentForOption filters recent ticks down to one option, preserving the
// newest-first order.
func (s *MarketSnapshot) recentForOption(optionID string) []domain.Tick {
	var out []domain.Tick
	for _, t := range s.Recent {
		if t.OptionID == optionID {
			out = append(out, t)
		}
	}
	return out
}

// buildTradeLeg constructs a leg with a slippage-padded limit price. A zero
// reference price degrades to the slippage fraction itself so the leg stays
// inside (0, 1).
func buildTradeLeg(marketID, optionID, label string, side domain.Side, price float64, slippageBps float64) domain.TradeLeg {
	slip := slippageBps / 10000
	var limit float64
	if side == domain.SideBuy {
		if price == 0 {
			limit = slip
		} else {
			limit = price * (1 + slip)
		}
		if limit > 0.999 {
			limit = 0.999
		}
	} else {
		limit = price * (1 - slip)
		if limit < 0.001 {
			limit = 0.001
		}
	}
	return domain.TradeLeg{
		MarketID:       marketID,
		OptionID:       optionID,
		Label:          label,
		Side:           side,
		Qty:            1.0,
		ReferencePrice: price,
		LimitPrice:     limit,
	}
}

// normalizeTitle lowercases a title and strips everything but letters and
// spaces, so near-duplicate market titles compare equal.
func normalizeTitle(title string) string {
	var b strings.Builder
	b.Grow(len(title))
	for _, r := range strings.ToLower(title) {
		if (r >= 'a' && r <= 'z') || r == ' ' {
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// cryptoStreamSymbol maps a market title to the crypto trade stream it
// references, if any.
func cryptoStreamSymbol(title string) (string, bool) {
	t := strings.ToLower(title)
	switch {
	case strings.Contains(t, "bitcoin") || strings.Contains(t, "btc"):
		return "btcusdt", true
	case strings.Contains(t, "ethereum") || strings.Contains(t, "eth"):
		return "ethusdt", true
	case strings.Contains(t, "solana") || strings.Contains(t, "sol"):
		return "solusdt", true
	}
	return "", false
}

// formatAlert renders the outbound alert text for a hit.
func formatAlert(ruleName, marketTitle, insight, dashboardURL, marketID string) string {
	return fmt.Sprintf("*%s*\nMarket: %s\nInsight: %s\nDetail: %s/markets/%s",
		ruleName, marketTitle, insight, dashboardURL, marketID)
}
