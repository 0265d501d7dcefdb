package middleware

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"net/http"

	"github.com/facepass/engine/internal/api/response"
)

type contextKey string

// APIKeyContextKey holds the authenticated API key for downstream middleware
// (rate limiting keys off it).
const APIKeyContextKey contextKey = "api_key"

const apiKeyHeader = "X-API-Key"

// Auth validates the X-API-Key header against the configured key set.
// Unauthenticated requests are rejected before any parsing, detection, or
// database work happens.
func Auth(apiKeys []string) func(http.Handler) http.Handler {
	// Pre-hash so the comparison below is constant time regardless of key length.
	hashed := make([][32]byte, 0, len(apiKeys))
	for _, key := range apiKeys {
		hashed = append(hashed, sha256.Sum256([]byte(key)))
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			apiKey := r.Header.Get(apiKeyHeader)
			if apiKey == "" {
				response.RespondUnauthorized(w, "Missing X-API-Key header")
				return
			}

			candidate := sha256.Sum256([]byte(apiKey))

			matched := false
			for i := range hashed {
				if subtle.ConstantTimeCompare(hashed[i][:], candidate[:]) == 1 {
					matched = true
				}
			}

			if !matched {
				response.RespondUnauthorized(w, "Invalid API key")
				return
			}

			ctx := context.WithValue(r.Context(), APIKeyContextKey, apiKey)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// APIKeyFromContext returns the authenticated API key, or "" when the request
// did not pass through Auth.
func APIKeyFromContext(ctx context.Context) string {
	key, _ := ctx.Value(APIKeyContextKey).(string)
	return key
}
