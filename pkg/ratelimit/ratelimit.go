// Package ratelimit implements fixed-window request counting per key.
//
// A window opens on the first request for a key and lasts for the configured
// duration. Requests beyond the limit inside a window are refused until the
// window ends. Refused requests still count.
package ratelimit

import (
	"context"
	"fmt"
	"time"
)

// Decision is the result of counting one request.
type Decision struct {
	Allowed bool

	// Limit is the number of requests allowed per window.
	Limit int

	// Remaining is how many requests are left in the current window.
	Remaining int

	// ResetAt is when the current window ends.
	ResetAt time.Time
}

// RetryAfter returns how long until the window resets, rounded up to a
// whole second and never less than one.
func (d Decision) RetryAfter(now time.Time) time.Duration {
	wait := d.ResetAt.Sub(now)
	if wait <= 0 {
		return time.Second
	}
	return wait.Truncate(time.Second) + roundUp(wait%time.Second)
}

func roundUp(rem time.Duration) time.Duration {
	if rem > 0 {
		return time.Second
	}
	return 0
}

// Limiter counts a request for key and decides whether it may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

// Config holds the fixed-window parameters.
type Config struct {
	Limit  int
	Window time.Duration
}

// Validate checks the window parameters.
func (c Config) Validate() error {
	if c.Limit <= 0 {
		return fmt.Errorf("limit must be positive, got %d", c.Limit)
	}
	if c.Window <= 0 {
		return fmt.Errorf("window must be positive, got %s", c.Window)
	}
	return nil
}

func decide(cfg Config, count int, resetAt time.Time) Decision {
	remaining := cfg.Limit - count
	if remaining < 0 {
		remaining = 0
	}
	return Decision{
		Allowed:   count <= cfg.Limit,
		Limit:     cfg.Limit,
		Remaining: remaining,
		ResetAt:   resetAt,
	}
}
