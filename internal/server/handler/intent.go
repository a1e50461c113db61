package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/jiliangzhu/MarketPulse-X/internal/domain"
	"github.com/jiliangzhu/MarketPulse-X/internal/exec"
)

// IntentHandler serves order-intent HTTP endpoints. Creation and confirmation
// go through the OEMS and executor so every intent passes the same risk
// checks regardless of how it was requested.
type IntentHandler struct {
	oems     *exec.OEMS
	executor *exec.Executor
	intents  domain.IntentStore
	logger   *slog.Logger
}

// NewIntentHandler creates an IntentHandler.
func NewIntentHandler(oems *exec.OEMS, executor *exec.Executor, intents domain.IntentStore, logger *slog.Logger) *IntentHandler {
	return &IntentHandler{
		oems:     oems,
		executor: executor,
		intents:  intents,
		logger:   logger,
	}
}

// createIntentRequest is the body of POST /api/intents. Optional fields
// override the signal's suggested trade.
type createIntentRequest struct {
	SignalID   int64    `json:"signal_id"`
	Side       *string  `json:"side,omitempty"`
	Qty        *float64 `json:"qty,omitempty"`
	LimitPrice *float64 `json:"limit_price,omitempty"`
	TTLSecs    *int     `json:"ttl_secs,omitempty"`
}

// CreateIntent derives a new order intent from a signal.
// POST /api/intents
func (h *IntentHandler) CreateIntent(w http.ResponseWriter, r *http.Request) {
	var req createIntentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.SignalID <= 0 {
		writeError(w, http.StatusBadRequest, "signal_id is required")
		return
	}

	var overrides exec.Overrides
	if req.Side != nil {
		side := domain.Side(*req.Side)
		if side != domain.SideBuy && side != domain.SideSell {
			writeError(w, http.StatusBadRequest, "side must be buy or sell")
			return
		}
		overrides.Side = &side
	}
	overrides.Qty = req.Qty
	overrides.LimitPrice = req.LimitPrice
	overrides.TTLSecs = req.TTLSecs

	intent, err := h.oems.CreateFromSignal(r.Context(), req.SignalID, overrides)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			writeError(w, http.StatusNotFound, "signal not found")
		case errors.Is(err, domain.ErrSignalExpired),
			errors.Is(err, domain.ErrSignalLevel),
			errors.Is(err, domain.ErrNoDepth):
			writeError(w, http.StatusUnprocessableEntity, err.Error())
		default:
			h.logger.ErrorContext(r.Context(), "handler: create intent failed",
				slog.Int64("signal_id", req.SignalID),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "failed to create intent")
		}
		return
	}

	writeJSON(w, http.StatusCreated, intent)
}

// ConfirmIntent runs risk checks on a suggested intent and advances it to
// sent (filled in mock mode) or rejected.
// POST /api/intents/{id}/confirm
func (h *IntentHandler) ConfirmIntent(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(pathParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid intent id")
		return
	}

	intent, err := h.executor.Confirm(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "intent not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: confirm intent failed",
			slog.Int64("intent_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to confirm intent")
		return
	}

	writeJSON(w, http.StatusOK, intent)
}

// ListIntents returns intents newest first, optionally filtered by status.
// GET /api/intents?status=suggested&limit=50
func (h *IntentHandler) ListIntents(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)
	status := domain.IntentStatus(r.URL.Query().Get("status"))

	intents, err := h.intents.List(r.Context(), status, opts.Limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list intents failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list intents")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"intents": intents})
}
