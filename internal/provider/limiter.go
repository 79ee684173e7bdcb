package provider

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// Limits configures a RateLimiter. BurstLimit defaults to 2x
// RequestsPerSecond when unset, matching the teacher's provider defaults.
type Limits struct {
	RequestsPerSecond float64
	BurstLimit        int
}

// RateLimiter wraps x/time/rate with the package's Error type so callers
// get a consistent failure shape across both upstream clients.
type RateLimiter struct {
	name    string
	limiter *rate.Limiter
}

// NewRateLimiter builds a token-bucket limiter for a named upstream.
func NewRateLimiter(name string, limits Limits) *RateLimiter {
	burst := limits.BurstLimit
	if burst <= 0 {
		burst = int(limits.RequestsPerSecond * 2)
		if burst < 1 {
			burst = 1
		}
	}
	return &RateLimiter{
		name:    name,
		limiter: rate.NewLimiter(rate.Limit(limits.RequestsPerSecond), burst),
	}
}

// Wait blocks until a token is available or ctx is cancelled.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	if err := rl.limiter.Wait(ctx); err != nil {
		return &Error{
			Provider:    rl.name,
			Code:        ErrCodeRateLimit,
			Message:     fmt.Sprintf("rate limit wait: %v", err),
			RateLimited: true,
			Temporary:   true,
			Cause:       err,
		}
	}
	return nil
}

// Allow reports whether a request may proceed right now without blocking.
func (rl *RateLimiter) Allow() bool {
	return rl.limiter.Allow()
}
