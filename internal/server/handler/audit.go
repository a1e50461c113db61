package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/jiliangzhu/MarketPulse-X/internal/domain"
)

// AuditHandler serves the append-only audit log.
type AuditHandler struct {
	audit  domain.AuditStore
	logger *slog.Logger
}

// NewAuditHandler creates an AuditHandler backed by the given store.
func NewAuditHandler(audit domain.AuditStore, logger *slog.Logger) *AuditHandler {
	return &AuditHandler{audit: audit, logger: logger}
}

// ListAudit returns audit entries newest first within an optional time range.
// GET /api/audit?since=2025-01-02T00:00:00Z&until=...&limit=50&offset=0
func (h *AuditHandler) ListAudit(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	if v := r.URL.Query().Get("since"); v != "" {
		since, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid since: want RFC3339")
			return
		}
		opts.Since = &since
	}
	if v := r.URL.Query().Get("until"); v != "" {
		until, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid until: want RFC3339")
			return
		}
		opts.Until = &until
	}

	entries, err := h.audit.List(r.Context(), opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list audit failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list audit log")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}
