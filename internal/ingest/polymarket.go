package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jiliangzhu/MarketPulse-X/internal/domain"
)

// PolymarketSource polls the Polymarket Gamma REST API for market metadata
// and quotes. Options are the market's outcomes, keyed by CLOB token id.
type PolymarketSource struct {
	baseURL    string
	pageLimit  int
	httpClient *http.Client

	mu      sync.RWMutex
	options map[string][]domain.Option
}

// NewPolymarketSource creates a PolymarketSource.
//
// baseURL is the Gamma API root, e.g. "https://gamma-api.polymarket.com".
func NewPolymarketSource(baseURL string, pageLimit int) *PolymarketSource {
	if pageLimit <= 0 {
		pageLimit = 200
	}
	return &PolymarketSource{
		baseURL:   strings.TrimRight(baseURL, "/"),
		pageLimit: pageLimit,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		options: make(map[string][]domain.Option),
	}
}

// Name identifies the source in logs and metrics.
func (s *PolymarketSource) Name() string { return "polymarket" }

// gammaMarket is a market as returned by the Gamma API. Outcomes, prices and
// token ids arrive as JSON-encoded strings inside the JSON document.
type gammaMarket struct {
	ID            string   `json:"id"`
	Question      string   `json:"question"`
	Outcomes      string   `json:"outcomes"`      // e.g. "[\"Yes\",\"No\"]"
	OutcomePrices string   `json:"outcomePrices"` // e.g. "[\"0.52\",\"0.48\"]"
	ClobTokenIDs  string   `json:"clobTokenIds"`  // e.g. "[\"123\",\"456\"]"
	Active        bool     `json:"active"`
	Closed        bool     `json:"closed"`
	EndDateISO    string   `json:"endDateIso"`
	StartDateISO  string   `json:"startDateIso"`
	Category      string   `json:"category"`
	LiquidityNum  float64  `json:"liquidityNum"`
	VolumeNum     float64  `json:"volumeNum"`
	BestBid       float64  `json:"bestBid"`
	BestAsk       float64  `json:"bestAsk"`
}

// toDomain converts a gammaMarket into a domain.Market.
func (m gammaMarket) toDomain() domain.Market {
	status := domain.MarketStatusActive
	if m.Closed {
		status = domain.MarketStatusClosed
	}
	dm := domain.Market{
		ID:       m.ID,
		Title:    m.Question,
		Platform: "polymarket",
		Status:   status,
	}
	if m.Category != "" {
		dm.Tags = []string{strings.ToLower(m.Category)}
	}
	if t, err := time.Parse(time.RFC3339, m.StartDateISO); err == nil {
		dm.StartsAt = &t
	}
	if t, err := time.Parse(time.RFC3339, m.EndDateISO); err == nil {
		dm.EndsAt = &t
	}
	return dm
}

// optionsOf pairs outcome labels with CLOB token ids. Markets without token
// ids get synthetic per-index option ids so they stay pollable.
func (m gammaMarket) optionsOf() []domain.Option {
	labels := decodeStringList(m.Outcomes)
	tokens := decodeStringList(m.ClobTokenIDs)

	opts := make([]domain.Option, 0, len(labels))
	for i, label := range labels {
		id := fmt.Sprintf("%s:%d", m.ID, i)
		if i < len(tokens) && tokens[i] != "" {
			id = tokens[i]
		}
		opts = append(opts, domain.Option{
			ID:       id,
			MarketID: m.ID,
			Label:    label,
		})
	}
	return opts
}

// ListMarkets returns currently active markets, one Gamma page.
func (s *PolymarketSource) ListMarkets(ctx context.Context) ([]domain.Market, error) {
	params := url.Values{}
	params.Set("active", "true")
	params.Set("closed", "false")
	params.Set("limit", strconv.Itoa(s.pageLimit))

	body, err := s.doGet(ctx, "/markets?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("ingest: polymarket list markets: %w", err)
	}

	var raw []gammaMarket
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("ingest: polymarket decode markets: %w", err)
	}

	markets := make([]domain.Market, 0, len(raw))
	s.mu.Lock()
	for _, m := range raw {
		markets = append(markets, m.toDomain())
		s.options[m.ID] = m.optionsOf()
	}
	s.mu.Unlock()

	return markets, nil
}

// ListOptions returns the outcome options captured by the last market listing.
func (s *PolymarketSource) ListOptions(ctx context.Context, marketID string) ([]domain.Option, error) {
	s.mu.RLock()
	opts, ok := s.options[marketID]
	s.mu.RUnlock()
	if ok {
		return opts, nil
	}

	m, err := s.getMarket(ctx, marketID)
	if err != nil {
		return nil, err
	}
	opts = m.optionsOf()
	s.mu.Lock()
	s.options[marketID] = opts
	s.mu.Unlock()
	return opts, nil
}

// PollTicks fetches the market's current outcome prices and quotes.
func (s *PolymarketSource) PollTicks(ctx context.Context, marketID string) ([]domain.Tick, error) {
	m, err := s.getMarket(ctx, marketID)
	if err != nil {
		return nil, err
	}

	opts := m.optionsOf()
	prices := decodeFloatList(m.OutcomePrices)
	now := time.Now().UTC()

	ticks := make([]domain.Tick, 0, len(opts))
	for i, opt := range opts {
		if i >= len(prices) {
			break
		}
		tick := domain.Tick{
			TS:        now,
			MarketID:  marketID,
			OptionID:  opt.ID,
			Price:     prices[i],
			Volume:    m.VolumeNum,
			Liquidity: m.LiquidityNum,
		}
		// Gamma publishes top-of-book for the first outcome only.
		if i == 0 {
			tick.BestBid = m.BestBid
			tick.BestAsk = m.BestAsk
		}
		ticks = append(ticks, tick)
	}
	return ticks, nil
}

func (s *PolymarketSource) getMarket(ctx context.Context, marketID string) (gammaMarket, error) {
	body, err := s.doGet(ctx, "/markets/"+url.PathEscape(marketID))
	if err != nil {
		return gammaMarket{}, fmt.Errorf("ingest: polymarket get market %s: %w", marketID, err)
	}
	var m gammaMarket
	if err := json.Unmarshal(body, &m); err != nil {
		return gammaMarket{}, fmt.Errorf("ingest: polymarket decode market %s: %w", marketID, err)
	}
	return m, nil
}

func (s *PolymarketSource) doGet(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		excerpt := body
		if len(excerpt) > 512 {
			excerpt = excerpt[:512]
		}
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, excerpt)
	}

	return body, nil
}

// decodeStringList parses Gamma's JSON-encoded-string list fields.
func decodeStringList(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil
	}
	return out
}

// decodeFloatList parses a JSON-encoded list of numeric strings.
func decodeFloatList(raw string) []float64 {
	items := decodeStringList(raw)
	out := make([]float64, 0, len(items))
	for _, item := range items {
		v, err := strconv.ParseFloat(item, 64)
		if err != nil {
			v = 0
		}
		out = append(out, v)
	}
	return out
}

var _ TickSource = (*PolymarketSource)(nil)
var _ TickSource = (*MockSource)(nil)
