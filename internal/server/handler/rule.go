package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/jiliangzhu/MarketPulse-X/internal/domain"
	"github.com/jiliangzhu/MarketPulse-X/internal/rules"
)

// RuleHandler serves rule definition HTTP endpoints. Upload runs the same
// validation as the directory loader, so a rule accepted over HTTP is a rule
// the engine can run.
type RuleHandler struct {
	rules    domain.RuleStore
	audit    domain.AuditStore
	maxBytes int
	logger   *slog.Logger
}

// NewRuleHandler creates a RuleHandler. maxBytes caps the accepted YAML body.
func NewRuleHandler(store domain.RuleStore, audit domain.AuditStore, maxBytes int, logger *slog.Logger) *RuleHandler {
	if maxBytes <= 0 {
		maxBytes = 16000
	}
	return &RuleHandler{
		rules:    store,
		audit:    audit,
		maxBytes: maxBytes,
		logger:   logger,
	}
}

// ListRules returns every stored rule definition.
// GET /api/rules
func (h *RuleHandler) ListRules(w http.ResponseWriter, r *http.Request) {
	list, err := h.rules.List(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list rules failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list rules")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rules": list})
}

// UploadRule validates a YAML rule definition and upserts it by name.
// POST /api/rules with a YAML body.
func (h *RuleHandler) UploadRule(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, int64(h.maxBytes)+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	cfg, err := rules.ValidateRule(raw, h.maxBytes)
	if err != nil {
		if errors.Is(err, domain.ErrRuleTooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	id, err := h.rules.Upsert(r.Context(), cfg, string(raw))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: upsert rule failed",
			slog.String("rule", cfg.Name),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to store rule")
		return
	}

	if err := h.audit.Log(r.Context(), "api", "rule_uploaded", cfg.Name, map[string]any{
		"rule_id": id,
		"type":    cfg.Type,
	}); err != nil {
		h.logger.WarnContext(r.Context(), "handler: audit log failed",
			slog.String("error", err.Error()),
		)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"rule_id": id,
		"name":    cfg.Name,
		"type":    cfg.Type,
	})
}
