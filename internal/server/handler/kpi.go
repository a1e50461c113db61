package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/jiliangzhu/MarketPulse-X/internal/domain"
)

// KPIHandler serves the per-rule signal counters.
type KPIHandler struct {
	kpis   domain.KPIStore
	logger *slog.Logger
}

// NewKPIHandler creates a KPIHandler backed by the given store.
func NewKPIHandler(kpis domain.KPIStore, logger *slog.Logger) *KPIHandler {
	return &KPIHandler{kpis: kpis, logger: logger}
}

// ListKPIs returns daily per-rule-type counters over a trailing window.
// GET /api/kpis?days=7
func (h *KPIHandler) ListKPIs(w http.ResponseWriter, r *http.Request) {
	days := 7
	if v := r.URL.Query().Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 365 {
			writeError(w, http.StatusBadRequest, "days must be 1-365")
			return
		}
		days = n
	}

	since := time.Now().UTC().AddDate(0, 0, -days)
	rows, err := h.kpis.ListSince(r.Context(), since)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list kpis failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list kpis")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"since": since.Format(time.RFC3339),
		"kpis":  rows,
	})
}
