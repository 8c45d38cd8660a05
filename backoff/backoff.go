// Package backoff provides the single retry/backoff policy used across the
// scraper: connect attempts, login attempts, and the shortened inter-cycle
// delay after failed batches all run through a Policy instead of bespoke
// sleep constants per call site.
package backoff

import (
	"context"
	"time"
)

// Policy is a linear backoff: the delay before attempt n (1-based) is
// Base*n, capped at Cap. With Cap == Base the policy degrades to a fixed
// delay, which is how the login retry loop uses it.
type Policy struct {
	// Base is the delay unit. Required.
	Base time.Duration
	// Cap bounds the delay. Zero means Base*MaxAttempts (effectively no cap).
	Cap time.Duration
	// MaxAttempts bounds Retry. Zero means a single attempt.
	MaxAttempts int
}

// Delay returns the wait before retrying after attempt n failed (n is
// 1-based). Non-positive n is treated as 1.
func (p Policy) Delay(n int) time.Duration {
	if n < 1 {
		n = 1
	}
	d := p.Base * time.Duration(n)
	if p.Cap > 0 && d > p.Cap {
		d = p.Cap
	}
	return d
}

// Wait sleeps for Delay(n), returning early with ctx.Err() if the context
// is cancelled. A nil return means the full delay elapsed.
func (p Policy) Wait(ctx context.Context, n int) error {
	d := p.Delay(n)
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Retry runs fn up to MaxAttempts times, waiting Delay(n) between failed
// attempts. It returns nil on the first success, the last error once
// attempts are exhausted, and ctx.Err() if cancelled between attempts.
func (p Policy) Retry(ctx context.Context, fn func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for n := 1; n <= attempts; n++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if n < attempts {
			if err := p.Wait(ctx, n); err != nil {
				return err
			}
		}
	}
	return lastErr
}
