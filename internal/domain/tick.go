package domain

import "time"

// Tick is one observed quote for a market option. BestBid/BestAsk and the
// size fields are zero when the source does not publish depth.
type Tick struct {
	TS        time.Time
	MarketID  string
	OptionID  string
	Price     float64
	Volume    float64
	BestBid   float64
	BestAsk   float64
	Liquidity float64
}

// Mid returns the midpoint of the quoted book, falling back to the one-sided
// quote and finally the last trade price.
func (t Tick) Mid() float64 {
	switch {
	case t.BestBid > 0 && t.BestAsk > 0:
		return (t.BestBid + t.BestAsk) / 2
	case t.BestBid > 0:
		return t.BestBid
	case t.BestAsk > 0:
		return t.BestAsk
	default:
		return t.Price
	}
}

// Spread returns best_ask - best_bid, or zero when either side is missing.
func (t Tick) Spread() float64 {
	if t.BestBid > 0 && t.BestAsk > 0 {
		return t.BestAsk - t.BestBid
	}
	return 0
}
