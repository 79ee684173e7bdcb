package provider

import (
	"context"
	"time"

	"github.com/sony/gobreaker"
)

// BreakerConfig mirrors the teacher's CircuitConfig shape, adapted to
// gobreaker.Settings fields.
type BreakerConfig struct {
	Name             string
	FailureThreshold float64 // 0.0-1.0 failure ratio to trip
	MinRequests      uint32  // minimum requests before ratio is consulted
	OpenTimeout      time.Duration
	HalfOpenProbes   uint32
}

// DefaultBreakerConfig matches the teacher's DefaultCircuitConfig values.
func DefaultBreakerConfig(name string) BreakerConfig {
	return BreakerConfig{
		Name:             name,
		FailureThreshold: 0.5,
		MinRequests:      10,
		OpenTimeout:      30 * time.Second,
		HalfOpenProbes:   5,
	}
}

// CircuitBreaker wraps gobreaker with the package's Error type so upstream
// clients see one consistent error shape regardless of which guard
// rejected the call.
type CircuitBreaker struct {
	name string
	cb   *gobreaker.CircuitBreaker
}

// NewCircuitBreaker builds a named breaker from cfg.
func NewCircuitBreaker(cfg BreakerConfig) *CircuitBreaker {
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.HalfOpenProbes,
		Interval:    0, // never reset counts while closed; open/half-open cycle handles recovery
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return ratio >= cfg.FailureThreshold
		},
	}
	return &CircuitBreaker{name: cfg.Name, cb: gobreaker.NewCircuitBreaker(settings)}
}

// Call executes fn under the breaker's protection, translating a tripped
// breaker into an *Error with Code == ErrCodeCircuitOpen.
func (c *CircuitBreaker) Call(ctx context.Context, fn func(ctx context.Context) error) error {
	_, err := c.cb.Execute(func() (interface{}, error) {
		return nil, fn(ctx)
	})
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return &Error{
			Provider:  c.name,
			Code:      ErrCodeCircuitOpen,
			Message:   "circuit breaker is open",
			Temporary: true,
			Cause:     err,
		}
	}
	return err
}

// State reports the breaker's current state for health reporting.
func (c *CircuitBreaker) State() gobreaker.State {
	return c.cb.State()
}
