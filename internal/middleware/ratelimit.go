package middleware

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/holdgate/holdgate/internal/api"
	"github.com/holdgate/holdgate/internal/cache"
	"github.com/holdgate/holdgate/internal/metrics"
)

// IdentityFunc returns the authenticated identity of a request, or "" when there is none.
type IdentityFunc func(r *http.Request) string

// RateLimiter provides per-identity fixed-window rate limiting on a cache counter.
type RateLimiter struct {
	counter  cache.Counter
	scope    string
	maxReqs  int
	window   time.Duration
	identify IdentityFunc
}

// NewRateLimiter allows maxReqs per window for each identity within scope.
// A nil identify keys every request by client IP.
func NewRateLimiter(counter cache.Counter, scope string, maxReqs int, window time.Duration, identify IdentityFunc) *RateLimiter {
	return &RateLimiter{
		counter:  counter,
		scope:    scope,
		maxReqs:  maxReqs,
		window:   window,
		identify: identify,
	}
}

// Middleware returns an HTTP middleware that enforces the rate limit.
// On counter errors it fails open (allows the request through).
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := ""
		if rl.identify != nil {
			id = rl.identify(r)
		}
		if id == "" {
			id = "ip:" + clientIP(r)
		} else {
			id = "user:" + id
		}
		key := "ratelimit:" + rl.scope + ":" + id

		count, err := rl.counter.IncrementWithExpiry(r.Context(), key, rl.window)
		if err != nil {
			slog.Warn("rate limiter: counter error, failing open", "error", err, "scope", rl.scope, "identity", id)
			next.ServeHTTP(w, r)
			return
		}

		if count > int64(rl.maxReqs) {
			retryAfter := rl.window
			if ttl, err := rl.counter.TTL(r.Context(), key); err == nil && ttl > 0 {
				retryAfter = ttl
			}
			secs := int(math.Ceil(retryAfter.Seconds()))
			metrics.RateLimitRejectionsTotal.WithLabelValues(rl.scope).Inc()
			w.Header().Set("Retry-After", strconv.Itoa(secs))
			api.HandleError(w, api.ErrRateLimited.WithDetails(map[string]any{"retry_after": secs}))
			return
		}

		next.ServeHTTP(w, r)
	})
}

// clientIP is the peer address, already resolved by RealIP when behind a trusted proxy.
func clientIP(r *http.Request) string {
	return remoteHost(r)
}
