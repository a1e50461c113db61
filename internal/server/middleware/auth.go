// Package middleware wraps the API routes with auth, logging, and CORS.
package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// Auth gates admin routes on a shared token, accepted either as
// "Authorization: Bearer <token>" or in the X-API-Key header. An empty token
// disables the gate, which is the dev-mode default.
func Auth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			presented := credentialFrom(r)
			if presented == "" {
				deny(w, "missing credentials")
				return
			}
			// Constant-time compare; the token is long-lived.
			if subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
				deny(w, "invalid credentials")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func credentialFrom(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		scheme, rest, ok := strings.Cut(auth, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(rest)
		}
	}
	return strings.TrimSpace(r.Header.Get("X-API-Key"))
}

func deny(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":"` + msg + `"}`))
}
