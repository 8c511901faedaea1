package chain

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// RateLimiter applies a token-bucket limit per upstream endpoint so a
// burst of agent requests cannot get the daemon banned from a public
// RPC provider.
type RateLimiter struct {
	mu       sync.RWMutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

// NewRateLimiter creates a limiter allowing ratePerSecond sustained
// requests per endpoint with the given burst.
func NewRateLimiter(ratePerSecond float64, burst int) *RateLimiter {
	return &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    rate.Limit(ratePerSecond),
		burst:    burst,
	}
}

// DefaultRateLimiter allows 5 requests/second with a burst of 10,
// within the free tier of the public providers the daemon defaults to.
func DefaultRateLimiter() *RateLimiter {
	return NewRateLimiter(5, 10)
}

// Allow reports whether a request to the endpoint may proceed now.
func (r *RateLimiter) Allow(endpoint string) bool {
	return r.limiter(endpoint).Allow()
}

// Wait blocks until a request to the endpoint is allowed or the
// context is canceled.
func (r *RateLimiter) Wait(ctx context.Context, endpoint string) error {
	return r.limiter(endpoint).Wait(ctx)
}

func (r *RateLimiter) limiter(endpoint string) *rate.Limiter {
	r.mu.RLock()
	l, ok := r.limiters[endpoint]
	r.mu.RUnlock()
	if ok {
		return l
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok = r.limiters[endpoint]; ok {
		return l
	}
	l = rate.NewLimiter(r.limit, r.burst)
	r.limiters[endpoint] = l
	return l
}
