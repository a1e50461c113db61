package rules

import (
	"math"
	"time"
)

// BuildFeatures derives the model feature row for one market snapshot. It
// returns nil when the market has no ticks yet; otherwise every feature is
// present, defaulting to zero.
func BuildFeatures(snap *MarketSnapshot, now time.Time) map[string]float64 {
	if len(snap.Latest) == 0 {
		return nil
	}

	// The most traded option anchors the row.
	var (
		topID   string
		topSet  bool
		topVol  float64
		topTick = snap.Latest[topID]
	)
	for id, tick := range snap.Latest {
		if !topSet || tick.Volume > topVol {
			topID, topVol, topTick, topSet = id, tick.Volume, tick, true
		}
	}

	mid := topTick.Mid()
	spread := topTick.Spread()
	bidSize, askSize := topTick.Volume, topTick.Volume

	features := map[string]float64{
		"mid_price":      mid,
		"spread":         spread,
		"volume":         topTick.Volume,
		"best_bid_size":  bidSize,
		"best_ask_size":  askSize,
		"size_imbalance": (bidSize - askSize) / math.Max(bidSize+askSize, 1e-6),
	}

	recent := snap.recentForOption(topID)

	// Spread z-score over the last five minutes, newest tick against the
	// window's distribution.
	var spreads []float64
	cutoff5m := topTick.TS.Add(-5 * time.Minute)
	for _, t := range recent {
		if t.TS.Before(cutoff5m) {
			break
		}
		spreads = append(spreads, t.Spread())
	}
	features["zscore_spread_5min"] = 0
	if len(spreads) >= 2 {
		sd := stdev(spreads)
		if sd == 0 {
			sd = 1
		}
		features["zscore_spread_5min"] = (spreads[0] - mean(spreads)) / sd
	}

	// Price change against the newest tick at least ten seconds older.
	features["price_velocity_10s"] = 0
	cutoff10s := topTick.TS.Add(-10 * time.Second)
	for _, t := range recent {
		if !t.TS.After(cutoff10s) {
			features["price_velocity_10s"] = topTick.Price - t.Price
			break
		}
	}

	features["time_to_expiry_minutes"] = 0
	features["days_to_expiry"] = 0
	if minutes, ok := snap.Market.MinutesToEnd(now); ok {
		features["time_to_expiry_minutes"] = minutes
		features["days_to_expiry"] = minutes / (24 * 60)
	}

	// How far this market's price sits from its synonym peers.
	features["synonym_price_delta_zscore"] = 0
	if len(snap.Peers) > 0 {
		var peerSum float64
		for _, p := range snap.Peers {
			peerSum += p.Price
		}
		avg := peerSum / float64(len(snap.Peers))
		diffs := make([]float64, 0, len(snap.Peers))
		for _, p := range snap.Peers {
			diffs = append(diffs, p.Price-avg)
		}
		sd := stdev(diffs)
		if sd == 0 {
			sd = 1
		}
		features["synonym_price_delta_zscore"] = (mid - avg) / sd
	}

	var prices []float64
	for _, t := range recent {
		if t.TS.Before(cutoff5m) {
			break
		}
		prices = append(prices, t.Price)
	}
	features["volatility_5m"] = 0
	if len(prices) >= 2 {
		features["volatility_5m"] = stdev(prices)
	}

	return features
}
