package common

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter paces calls against a quota expressed as requests per minute.
// Limits can be tightened at runtime, for example after the remote service
// reports that the quota was exceeded.
type RateLimiter struct {
	limiter *rate.Limiter
	mu      sync.RWMutex
}

// NewRateLimiter creates a RateLimiter that admits perMinute events per
// minute with the given burst. A non-positive perMinute disables limiting.
func NewRateLimiter(perMinute float64, burst int) *RateLimiter {
	limit := rate.Inf
	if perMinute > 0 {
		limit = rate.Every(time.Duration(float64(time.Minute) / perMinute))
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{limiter: rate.NewLimiter(limit, burst)}
}

// Wait blocks until the limiter admits an event or the context is canceled.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	rl.mu.RLock()
	defer rl.mu.RUnlock()
	return rl.limiter.Wait(ctx)
}

// UpdateLimits adjusts the per-minute quota and burst.
func (rl *RateLimiter) UpdateLimits(perMinute float64, burst int) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if perMinute > 0 {
		rl.limiter.SetLimit(rate.Every(time.Duration(float64(time.Minute) / perMinute)))
	} else {
		rl.limiter.SetLimit(rate.Inf)
	}
	if burst >= 1 {
		rl.limiter.SetBurst(burst)
	}
}
