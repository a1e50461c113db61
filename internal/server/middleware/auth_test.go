package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func authHandler(apiKey string) http.Handler {
	return Auth(apiKey)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
}

func TestAuthDisabledWithoutKey(t *testing.T) {
	rec := httptest.NewRecorder()
	authHandler("").ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/rules", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthBearerToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/rules", nil)
	req.Header.Set("Authorization", "Bearer secret-token")
	rec := httptest.NewRecorder()
	authHandler("secret-token").ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthAPIKeyHeader(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/rules", nil)
	req.Header.Set("X-API-Key", "secret-token")
	rec := httptest.NewRecorder()
	authHandler("secret-token").ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthMissingToken(t *testing.T) {
	rec := httptest.NewRecorder()
	authHandler("secret-token").ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/rules", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "missing credentials")
}

func TestAuthWrongToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/rules", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec := httptest.NewRecorder()
	authHandler("secret-token").ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid credentials")
}
