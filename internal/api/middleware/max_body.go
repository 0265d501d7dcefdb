package middleware

import (
	"net/http"

	"github.com/facepass/engine/internal/api/response"
)

// MaxBody returns a middleware that limits request body size to maxBytes.
// Requests declaring a larger Content-Length are rejected with 413 up front;
// chunked bodies are capped with http.MaxBytesReader so handlers fail while
// reading instead of buffering an unbounded upload.
// Use 0 or negative to disable.
func MaxBody(maxBytes int64) func(http.Handler) http.Handler {
	if maxBytes <= 0 {
		return func(next http.Handler) http.Handler {
			return next
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > maxBytes {
				response.RespondError(w, http.StatusRequestEntityTooLarge,
					"Request Entity Too Large", "request body exceeds maximum allowed size")

				return
			}

			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}
