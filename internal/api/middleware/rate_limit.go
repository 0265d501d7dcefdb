package middleware

import (
	"math"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/facepass/engine/internal/api/response"
)

// limiterIdleTTL is how long an idle client's limiter survives before the
// cleanup loop drops it.
const limiterIdleTTL = 3 * time.Minute

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter enforces a per-client request budget over a one minute window.
// Clients are keyed by their authenticated API key, falling back to the
// remote address for requests that did not pass through Auth.
type RateLimiter struct {
	mu        sync.Mutex
	clients   map[string]*limiterEntry
	perMinute int
}

// NewRateLimiter creates a limiter allowing perMinute requests per client per
// minute and starts its cleanup loop.
func NewRateLimiter(perMinute int) *RateLimiter {
	rl := &RateLimiter{
		clients:   make(map[string]*limiterEntry),
		perMinute: perMinute,
	}

	go rl.cleanupLoop()

	return rl
}

// Middleware rejects requests over the budget with 429 and a Retry-After
// header. Budgets are keyed by API key when Auth ran earlier in the chain,
// otherwise by client address.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := APIKeyFromContext(r.Context())
		if key == "" {
			key = remoteAddr(r)
		}

		reservation := rl.limiterFor(key).Reserve()
		if delay := reservation.Delay(); delay > 0 {
			reservation.Cancel()

			retryAfter := int(math.Ceil(delay.Seconds()))
			response.RespondTooManyRequests(w, retryAfter, "rate limit exceeded, slow down")

			return
		}

		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimiter) limiterFor(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	entry, ok := rl.clients[key]
	if !ok {
		entry = &limiterEntry{
			limiter: rate.NewLimiter(rate.Limit(float64(rl.perMinute)/60.0), rl.perMinute),
		}
		rl.clients[key] = entry
	}

	entry.lastSeen = time.Now()

	return entry.limiter
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		cutoff := time.Now().Add(-limiterIdleTTL)

		rl.mu.Lock()
		for key, entry := range rl.clients {
			if entry.lastSeen.Before(cutoff) {
				delete(rl.clients, key)
			}
		}
		rl.mu.Unlock()
	}
}

func remoteAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}

	return host
}
