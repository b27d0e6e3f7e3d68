// Package ratelimit implements fixed-window request counters.
//
// Memory keeps windows in process and is only accurate for a single
// instance. Redis centralizes the counters so every replica shares one limit.
package ratelimit

import (
	"context"
	"errors"
	"time"
)

// ErrInvalidPolicy is returned when limit or window is not positive.
var ErrInvalidPolicy = errors.New("ratelimit: limit and window must be positive")

// Decision is the outcome of a single Allow call.
type Decision struct {
	// Allowed reports whether the request fits in the current window.
	Allowed bool
	// Remaining is how many more requests the window accepts.
	Remaining int
	// RetryAfter is the time until the window resets.
	RetryAfter time.Duration
}

// Limiter counts one request for key against limit per window.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (Decision, error)
}

func validPolicy(limit int, window time.Duration) error {
	if limit <= 0 || window <= 0 {
		return ErrInvalidPolicy
	}
	return nil
}
