package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/jiliangzhu/MarketPulse-X/internal/domain"
)

// SignalHandler serves emitted-signal HTTP endpoints.
type SignalHandler struct {
	signals domain.SignalStore
	logger  *slog.Logger
}

// NewSignalHandler creates a SignalHandler backed by the given store.
func NewSignalHandler(signals domain.SignalStore, logger *slog.Logger) *SignalHandler {
	return &SignalHandler{signals: signals, logger: logger}
}

// listSignalsResponse wraps the list endpoint output with metadata.
type listSignalsResponse struct {
	Signals []domain.Signal `json:"signals"`
	Limit   int             `json:"limit"`
	Offset  int             `json:"offset"`
}

// ListSignals returns signals newest first, optionally filtered by alert
// level and emission time.
// GET /api/signals?level=P1&since=2025-01-02T00:00:00Z&limit=50&offset=0
func (h *SignalHandler) ListSignals(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)
	filter := domain.SignalFilter{
		Level:  r.URL.Query().Get("level"),
		Limit:  opts.Limit,
		Offset: opts.Offset,
	}
	if v := r.URL.Query().Get("since"); v != "" {
		since, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid since: want RFC3339")
			return
		}
		filter.Since = &since
	}

	signals, err := h.signals.List(r.Context(), filter)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list signals failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list signals")
		return
	}

	writeJSON(w, http.StatusOK, listSignalsResponse{
		Signals: signals,
		Limit:   opts.Limit,
		Offset:  opts.Offset,
	})
}

// GetSignal returns a single signal by its numeric ID.
// GET /api/signals/{id}
func (h *SignalHandler) GetSignal(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(pathParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid signal id")
		return
	}

	sig, err := h.signals.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "signal not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get signal failed",
			slog.Int64("signal_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get signal")
		return
	}

	writeJSON(w, http.StatusOK, sig)
}
