package api

import (
	"net"
	"net/http"
	"strconv"

	"github.com/driftware/harvester/internal/ratelimit"
)

// RateLimitMiddleware enforces the per-client rate limit. Clients are keyed
// by the X-Client-ID header when present, falling back to the remote
// address.
func RateLimitMiddleware(limiter *ratelimit.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientID := clientKey(r)

			if !limiter.Allow(clientID) {
				w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limiter.Limit()))
				w.Header().Set("X-RateLimit-Remaining", "0")
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded, slow down")
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limiter.Limit()))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(int(limiter.Tokens(clientID))))

			next.ServeHTTP(w, r)
		})
	}
}

func clientKey(r *http.Request) string {
	if id := r.Header.Get("X-Client-ID"); id != "" {
		return id
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
