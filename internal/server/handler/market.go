package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/jiliangzhu/MarketPulse-X/internal/domain"
)

// MarketHandler serves market-related HTTP endpoints.
type MarketHandler struct {
	markets domain.MarketStore
	ticks   domain.TickStore
	logger  *slog.Logger
}

// NewMarketHandler creates a MarketHandler backed by the given stores.
func NewMarketHandler(markets domain.MarketStore, ticks domain.TickStore, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{
		markets: markets,
		ticks:   ticks,
		logger:  logger,
	}
}

// listMarketsResponse wraps the list endpoint output with metadata.
type listMarketsResponse struct {
	Markets []domain.Market `json:"markets"`
	Limit   int             `json:"limit"`
	Offset  int             `json:"offset"`
}

// getMarketResponse is a market with its options and newest quotes attached.
type getMarketResponse struct {
	Market  domain.Market          `json:"market"`
	Options []domain.Option        `json:"options"`
	Latest  map[string]domain.Tick `json:"latest"`
}

// ListMarkets returns markets filtered by status with pagination.
// GET /api/markets?status=active&limit=50&offset=0
func (h *MarketHandler) ListMarkets(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	status := domain.MarketStatus(r.URL.Query().Get("status"))
	if status == "" {
		status = domain.MarketStatusActive
	}

	markets, err := h.markets.List(r.Context(), status, opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list markets failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list markets")
		return
	}

	writeJSON(w, http.StatusOK, listMarketsResponse{
		Markets: markets,
		Limit:   opts.Limit,
		Offset:  opts.Offset,
	})
}

// GetMarket returns a single market with its options and latest tick per
// option.
// GET /api/markets/{id}
func (h *MarketHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing market id")
		return
	}

	market, err := h.markets.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "market not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get market failed",
			slog.String("market_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get market")
		return
	}

	options, err := h.markets.ListOptions(r.Context(), id)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list options failed",
			slog.String("market_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to load market options")
		return
	}

	latest, err := h.ticks.Latest(r.Context(), id)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: latest ticks failed",
			slog.String("market_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to load market quotes")
		return
	}

	writeJSON(w, http.StatusOK, getMarketResponse{
		Market:  market,
		Options: options,
		Latest:  latest,
	})
}
