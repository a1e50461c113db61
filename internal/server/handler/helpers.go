package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/jiliangzhu/MarketPulse-X/internal/domain"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// writeJSON renders v with the given status. Marshal failures degrade to a
// plain 500 body so the client always gets valid JSON.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// writeError renders a {"error": msg} body.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// parseListOpts reads limit/offset from the query string, defaulting to
// 50/0 and capping limit at 500.
func parseListOpts(r *http.Request) domain.ListOpts {
	q := r.URL.Query()

	limit := defaultListLimit
	if n, err := strconv.Atoi(q.Get("limit")); err == nil && n > 0 {
		limit = n
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	offset := 0
	if n, err := strconv.Atoi(q.Get("offset")); err == nil && n > 0 {
		offset = n
	}

	return domain.ListOpts{Limit: limit, Offset: offset}
}

// pathParam reads a named ServeMux path wildcard.
func pathParam(r *http.Request, name string) string {
	return r.PathValue(name)
}
