package domain

import "time"

// MarketStatus represents the lifecycle state of a market.
type MarketStatus string

const (
	MarketStatusActive  MarketStatus = "active"
	MarketStatusClosed  MarketStatus = "closed"
	MarketStatusSettled MarketStatus = "settled"
)

// Market represents a prediction market tracked by the engine.
type Market struct {
	ID       string
	Title    string
	Platform string
	Status   MarketStatus
	StartsAt *time.Time
	EndsAt   *time.Time
	Tags     []string
	// Embedding is the title embedding vector used for synonym community
	// detection. Empty when no vector has been computed for this market.
	Embedding []float64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// MinutesToEnd returns the minutes until market close, clamped at zero.
// The second return is false when the market has no close time.
func (m Market) MinutesToEnd(now time.Time) (float64, bool) {
	if m.EndsAt == nil {
		return 0, false
	}
	minutes := m.EndsAt.Sub(now).Minutes()
	if minutes < 0 {
		minutes = 0
	}
	return minutes, true
}

// Option is one tradable outcome of a market.
type Option struct {
	ID       string
	MarketID string
	Label    string
}
