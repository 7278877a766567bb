package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func corsRequest(mw func(http.Handler) http.Handler, method, origin string, preflight bool) (*httptest.ResponseRecorder, bool) {
	called := false
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))
	req := httptest.NewRequest(method, "/api/v1/bookings", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	if preflight {
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec, called
}

func TestCORSAllowsListedOrigin(t *testing.T) {
	rec, called := corsRequest(CORS([]string{"https://book.example.com/"}), http.MethodGet, "https://book.example.com", false)
	assert.True(t, called)
	assert.Equal(t, "https://book.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Expose-Headers"), "Retry-After")
	assert.Equal(t, "Origin", rec.Header().Get("Vary"))
}

func TestCORSSubdomainWildcard(t *testing.T) {
	mw := CORS([]string{"https://*.example.com"})

	rec, _ := corsRequest(mw, http.MethodGet, "https://acme.example.com", false)
	assert.Equal(t, "https://acme.example.com", rec.Header().Get("Access-Control-Allow-Origin"))

	rec, _ = corsRequest(mw, http.MethodGet, "http://acme.example.com", false)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"), "scheme must match")

	rec, _ = corsRequest(mw, http.MethodGet, "https://evilexample.com", false)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSDeniesUnknownOrigin(t *testing.T) {
	rec, called := corsRequest(CORS([]string{"https://book.example.com"}), http.MethodGet, "https://evil.example", false)
	assert.True(t, called, "the request itself is not blocked")
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSWildcard(t *testing.T) {
	rec, _ := corsRequest(CORS([]string{" * "}), http.MethodGet, "https://any.example", false)
	assert.Equal(t, "https://any.example", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSPreflightShortCircuits(t *testing.T) {
	rec, called := corsRequest(CORS([]string{"https://book.example.com"}), http.MethodOptions, "https://book.example.com", true)
	assert.False(t, called)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), TenantHeader)
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), http.MethodPut)
}

func TestCORSPreflightFromUnknownOriginForbidden(t *testing.T) {
	rec, called := corsRequest(CORS([]string{"https://book.example.com"}), http.MethodOptions, "https://evil.example", true)
	assert.False(t, called)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
