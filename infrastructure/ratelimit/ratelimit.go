// Package ratelimit throttles outbound calls the Ledger client and
// Moderation Gateway make to external services, so a burst of concurrent
// rounds/reveals can't overrun a downstream RPC node or classifier.
package ratelimit

import (
	"context"

	"golang.org/x/time/rate"
)

// Limiter wraps a token bucket limiter for a single outbound target.
type Limiter struct {
	inner *rate.Limiter
}

// Config configures a Limiter.
type Config struct {
	// RequestsPerSecond is the sustained rate limit (default: 20).
	RequestsPerSecond float64
	// Burst is the maximum burst size (default: 2x RequestsPerSecond).
	Burst int
}

// DefaultConfig returns the throttle applied to outbound Ledger RPC and
// Moderation Gateway classify calls unless overridden.
func DefaultConfig() Config {
	return Config{RequestsPerSecond: 20, Burst: 40}
}

// New builds a Limiter from cfg, applying DefaultConfig's values for any
// zero field.
func New(cfg Config) *Limiter {
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 20
	}
	if cfg.Burst <= 0 {
		cfg.Burst = int(cfg.RequestsPerSecond) * 2
		if cfg.Burst <= 0 {
			cfg.Burst = 1
		}
	}
	return &Limiter{inner: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst)}
}

// Wait blocks until a token is available or ctx is canceled. A nil Limiter
// never throttles, so callers can wire an optional limiter without a nil
// check at every call site.
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil {
		return nil
	}
	return l.inner.Wait(ctx)
}
