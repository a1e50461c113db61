package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// HealthHandler serves the health-check endpoint. Each registered check is a
// named probe against a backing dependency.
type HealthHandler struct {
	checks map[string]func(ctx context.Context) error
	logger *slog.Logger
}

// NewHealthHandler creates a HealthHandler with the provided dependency
// checks and logger.
func NewHealthHandler(checks map[string]func(ctx context.Context) error, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{checks: checks, logger: logger}
}

// HealthCheck responds with the overall status and per-dependency results.
// Returns 503 when any dependency check fails.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := "ok"
	deps := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			status = "degraded"
			deps[name] = err.Error()
			h.logger.WarnContext(r.Context(), "handler: health check failed",
				slog.String("dependency", name),
				slog.String("error", err.Error()),
			)
			continue
		}
		deps[name] = "ok"
	}

	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status":       status,
		"dependencies": deps,
		"timestamp":    time.Now().UTC().Format(time.RFC3339),
	})
}
