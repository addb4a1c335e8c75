package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/hellof20/mihoyo-cs-tickets/internal/api/response"
	"github.com/hellof20/mihoyo-cs-tickets/internal/cache"
)

const rateLimitWindow = 60 * time.Second

// RateLimit throttles requests per client address with fixed one-minute
// windows counted in the cache.
type RateLimit struct {
	cache          cache.Cache
	scope          string
	requestsPerMin int

	// OnLimited writes the rejection. Defaults to a JSON 429.
	OnLimited http.HandlerFunc
}

// NewRateLimit creates a RateLimit for scope. A non-positive
// requestsPerMin disables limiting.
func NewRateLimit(c cache.Cache, scope string, requestsPerMin int) *RateLimit {
	return &RateLimit{cache: c, scope: scope, requestsPerMin: requestsPerMin}
}

func (rl *RateLimit) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rl == nil || rl.requestsPerMin <= 0 {
			next.ServeHTTP(w, r)
			return
		}

		key := cache.RateLimitKey(rl.scope, clientAddr(r))
		count, err := rl.cache.IncrWithExpiry(r.Context(), key, rateLimitWindow)
		if err != nil {
			// Fail open when the counter store is down.
			slog.Warn("rate limit check failed", "scope", rl.scope, "error", err)
			next.ServeHTTP(w, r)
			return
		}

		remaining := rl.requestsPerMin - int(count)
		if remaining < 0 {
			remaining = 0
		}
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.requestsPerMin))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(rateLimitWindow).Unix(), 10))

		if count > int64(rl.requestsPerMin) {
			w.Header().Set("Retry-After", "60")
			if rl.OnLimited != nil {
				rl.OnLimited(w, r)
				return
			}
			response.Error(w, http.StatusTooManyRequests,
				"RATE_LIMIT_EXCEEDED", "Too many requests", nil)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func clientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
