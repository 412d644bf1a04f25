package domain

import (
	"context"
	"time"
)

// Clock provides the current time. Implementations may be real (production)
// or deterministic (testing).
type Clock interface {
	// Now returns the current time. The returned time includes both wall clock
	// and monotonic readings when using RealClock.
	Now() time.Time
}

// Sleeper suspends the caller for a duration. Sleep returns early with the
// context error if ctx is done first.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// RealClock implements Clock and Sleeper using the system clock.
type RealClock struct{}

// Now returns time.Now().
func (RealClock) Now() time.Time {
	return time.Now()
}

// Sleep blocks for d or until ctx is done.
func (RealClock) Sleep(ctx context.Context, d time.Duration) error {
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

// TimeoutOrDefault returns d, or DefaultOTPTimeout when d is not positive.
func TimeoutOrDefault(d time.Duration) time.Duration {
	if d <= 0 {
		return DefaultOTPTimeout
	}
	return d
}

// Compile-time interface checks.
var (
	_ Clock   = RealClock{}
	_ Sleeper = RealClock{}
)
