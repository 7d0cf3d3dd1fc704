package ratelimit

import (
	"sync"

	"golang.org/x/time/rate"
)

// Limiter keeps one token bucket per client key. A key is typically the
// caller's client id or remote address.
type Limiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rate     rate.Limit
	burst    int
	perHour  int
}

// NewLimiter allows requestsPerHour sustained requests per client, with
// bursts up to burst.
func NewLimiter(requestsPerHour, burst int) *Limiter {
	return &Limiter{
		limiters: make(map[string]*rate.Limiter),
		rate:     rate.Limit(float64(requestsPerHour) / 3600.0),
		burst:    burst,
		perHour:  requestsPerHour,
	}
}

func (l *Limiter) get(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	limiter, ok := l.limiters[key]
	if !ok {
		limiter = rate.NewLimiter(l.rate, l.burst)
		l.limiters[key] = limiter
	}
	return limiter
}

// Allow reports whether the client may make a request now.
func (l *Limiter) Allow(key string) bool {
	return l.get(key).Allow()
}

// Tokens returns the client's remaining burst capacity.
func (l *Limiter) Tokens(key string) float64 {
	return l.get(key).Tokens()
}

// Limit returns the configured hourly request allowance.
func (l *Limiter) Limit() int {
	return l.perHour
}
