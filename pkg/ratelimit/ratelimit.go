package ratelimit

import (
	"context"
	"math/rand"
	"time"

	"golang.org/x/time/rate"
)

// Limiter spaces out operations with a token bucket and optional jitter.
// It is safe for concurrent use by multiple goroutines.
type Limiter struct {
	lim      *rate.Limiter
	jitter   float64 // 0.0 to 1.0
	interval time.Duration
}

// NewLimiter creates a limiter allowing rps operations per second with the
// given jitter factor, clamped to [0, 1]. If rps is <= 0, Wait never blocks.
func NewLimiter(rps float64, jitter float64) *Limiter {
	if jitter < 0 {
		jitter = 0
	} else if jitter > 1 {
		jitter = 1
	}
	if rps <= 0 {
		return &Limiter{jitter: jitter}
	}

	return &Limiter{
		lim:      rate.NewLimiter(rate.Limit(rps), 1),
		jitter:   jitter,
		interval: time.Duration(float64(time.Second) / rps),
	}
}

// FromDelay builds a limiter that allows one operation per delay.
func FromDelay(delay time.Duration, jitter float64) *Limiter {
	if delay <= 0 {
		return NewLimiter(0, jitter)
	}
	return NewLimiter(float64(time.Second)/float64(delay), jitter)
}

// Interval returns the nominal gap between operations.
func (l *Limiter) Interval() time.Duration {
	return l.interval
}

// Wait blocks until the next operation may start or ctx is done.
// With jitter, a random extra delay of up to jitter*interval is added.
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil || l.lim == nil {
		return nil
	}
	if err := l.lim.Wait(ctx); err != nil {
		return err
	}
	if l.jitter == 0 {
		return nil
	}

	// Negative draws run on the bucket's schedule; positive ones sleep the extra.
	extra := time.Duration(float64(l.interval) * l.jitter * (rand.Float64()*2 - 1))
	if extra <= 0 {
		return nil
	}
	t := time.NewTimer(extra)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
