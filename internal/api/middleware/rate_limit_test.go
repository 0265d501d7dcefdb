package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rateLimitedRequest(apiKey, remoteAddr string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/v1/search", nil)
	if remoteAddr != "" {
		req.RemoteAddr = remoteAddr
	}

	if apiKey != "" {
		req = req.WithContext(context.WithValue(req.Context(), APIKeyContextKey, apiKey))
	}

	return req
}

func TestRateLimiter(t *testing.T) {
	okHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	t.Run("allows requests within the budget", func(t *testing.T) {
		handler := NewRateLimiter(3).Middleware(okHandler)

		for i := 0; i < 3; i++ {
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, rateLimitedRequest("key-a", ""))
			require.Equal(t, http.StatusOK, rec.Code, "request %d should pass", i+1)
		}
	})

	t.Run("rejects over budget with Retry-After", func(t *testing.T) {
		handler := NewRateLimiter(2).Middleware(okHandler)

		for i := 0; i < 2; i++ {
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, rateLimitedRequest("key-a", ""))
			require.Equal(t, http.StatusOK, rec.Code)
		}

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, rateLimitedRequest("key-a", ""))

		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	})

	t.Run("budgets are per API key", func(t *testing.T) {
		handler := NewRateLimiter(1).Middleware(okHandler)

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, rateLimitedRequest("key-a", ""))
		require.Equal(t, http.StatusOK, rec.Code)

		rec = httptest.NewRecorder()
		handler.ServeHTTP(rec, rateLimitedRequest("key-a", ""))
		require.Equal(t, http.StatusTooManyRequests, rec.Code)

		rec = httptest.NewRecorder()
		handler.ServeHTTP(rec, rateLimitedRequest("key-b", ""))
		assert.Equal(t, http.StatusOK, rec.Code, "a different key has its own budget")
	})

	t.Run("falls back to remote address without auth context", func(t *testing.T) {
		handler := NewRateLimiter(1).Middleware(okHandler)

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, rateLimitedRequest("", "10.0.0.1:50000"))
		require.Equal(t, http.StatusOK, rec.Code)

		rec = httptest.NewRecorder()
		handler.ServeHTTP(rec, rateLimitedRequest("", "10.0.0.1:50001"))
		assert.Equal(t, http.StatusTooManyRequests, rec.Code, "same host, different port shares the budget")

		rec = httptest.NewRecorder()
		handler.ServeHTTP(rec, rateLimitedRequest("", "10.0.0.2:50000"))
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}
