package ingest

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/jiliangzhu/MarketPulse-X/internal/domain"
)

// MockSource is a deterministic-seedable random walk over a small set of
// synthetic markets. It exercises every detector family: a two-sided election
// market, a three-way rates market whose prices occasionally compress below
// parity, and a sports market minutes from resolution that pumps toward 1.
type MockSource struct {
	mu        sync.Mutex
	rng       *rand.Rand
	markets   []domain.Market
	options   map[string][]domain.Option
	prices    map[string]float64
	liquidity map[string]float64
}

// NewMockSource creates a mock source seeded with seed.
func NewMockSource(seed int64) *MockSource {
	now := time.Now().UTC()
	electionEnds := now.Add(5 * time.Hour)
	fedEnds := now.Add(48 * time.Hour)
	endgameEnds := now.Add(25 * time.Minute)

	s := &MockSource{
		rng: rand.New(rand.NewSource(seed)),
		markets: []domain.Market{
			{
				ID: "mock-election", Title: "Will the incumbent win the election?",
				Platform: "mock", Status: domain.MarketStatusActive,
				EndsAt: &electionEnds, Tags: []string{"politics"},
			},
			{
				ID: "mock-fed", Title: "Will the Fed cut rates this quarter?",
				Platform: "mock", Status: domain.MarketStatusActive,
				EndsAt: &fedEnds, Tags: []string{"rates"},
			},
			{
				ID: "mock-endgame", Title: "Will the home team win tonight?",
				Platform: "mock", Status: domain.MarketStatusActive,
				EndsAt: &endgameEnds, Tags: []string{"sports"},
			},
		},
		options: map[string][]domain.Option{
			"mock-election": {
				{ID: "mock-election-yes", MarketID: "mock-election", Label: "Yes"},
				{ID: "mock-election-no", MarketID: "mock-election", Label: "No"},
			},
			"mock-fed": {
				{ID: "mock-fed-cut", MarketID: "mock-fed", Label: "Cut"},
				{ID: "mock-fed-hold", MarketID: "mock-fed", Label: "Hold"},
				{ID: "mock-fed-hike", MarketID: "mock-fed", Label: "Hike"},
			},
			"mock-endgame": {
				{ID: "mock-endgame-yes", MarketID: "mock-endgame", Label: "Yes"},
				{ID: "mock-endgame-no", MarketID: "mock-endgame", Label: "No"},
			},
		},
		prices: map[string]float64{
			"mock-election-yes": 0.52, "mock-election-no": 0.48,
			"mock-fed-cut": 0.40, "mock-fed-hold": 0.45, "mock-fed-hike": 0.15,
			"mock-endgame-yes": 0.88, "mock-endgame-no": 0.12,
		},
		liquidity: map[string]float64{},
	}
	for _, opts := range s.options {
		for _, opt := range opts {
			s.liquidity[opt.ID] = 400 + s.rng.Float64()*400
		}
	}
	return s
}

// Name identifies the source.
func (s *MockSource) Name() string { return "mock" }

// ListMarkets returns the synthetic markets.
func (s *MockSource) ListMarkets(_ context.Context) ([]domain.Market, error) {
	return s.markets, nil
}

// ListOptions returns the options for a market.
func (s *MockSource) ListOptions(_ context.Context, marketID string) ([]domain.Option, error) {
	return s.options[marketID], nil
}

// PollTicks advances the random walk one step and returns the current tick
// per option.
func (s *MockSource) PollTicks(_ context.Context, marketID string) ([]domain.Tick, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	opts := s.options[marketID]
	if len(opts) == 0 {
		return nil, nil
	}
	now := time.Now().UTC()

	for _, opt := range opts {
		price := s.prices[opt.ID]
		price += (s.rng.Float64()*2 - 1) * 0.02
		if s.rng.Float64() < 0.07 {
			price += (s.rng.Float64()*2 - 1) * 0.08
		}
		s.prices[opt.ID] = clamp(price, 0.01, 0.99)

		liq := s.liquidity[opt.ID] + (s.rng.Float64()*2-1)*60
		s.liquidity[opt.ID] = clamp(liq, 150, 1200)
	}

	// Compress a multi-outcome book below parity now and then so arbitrage
	// detection has something to find.
	if len(opts) > 2 && s.rng.Float64() < 0.35 {
		scale := 0.7 + s.rng.Float64()*0.25
		for _, opt := range opts {
			s.prices[opt.ID] = clamp(s.prices[opt.ID]*scale, 0.01, 0.99)
		}
	}

	// Pump the near-resolution market toward certainty half the time.
	if marketID == "mock-endgame" && s.rng.Float64() < 0.5 {
		s.prices["mock-endgame-yes"] = clamp(0.92+s.rng.Float64()*0.06, 0.01, 0.99)
		s.liquidity["mock-endgame-yes"] = 650
	}

	ticks := make([]domain.Tick, 0, len(opts))
	for _, opt := range opts {
		price := s.prices[opt.ID]
		halfSpread := 0.005 + s.rng.Float64()*0.005
		ticks = append(ticks, domain.Tick{
			TS:        now,
			MarketID:  marketID,
			OptionID:  opt.ID,
			Price:     price,
			Volume:    50 + s.rng.Float64()*450,
			BestBid:   clamp(price-halfSpread, 0.01, 0.99),
			BestAsk:   clamp(price+halfSpread, 0.01, 0.99),
			Liquidity: s.liquidity[opt.ID],
		})
	}
	return ticks, nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
