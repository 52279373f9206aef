package pipeline

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
)

// RetryPolicy bounds how often a failed fetch is attempted within one cycle.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryPolicy is three attempts with 1.2 s, 2.4 s spacing.
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts: 3,
	BaseDelay:   1200 * time.Millisecond,
	MaxDelay:    10 * time.Second,
}

// Delay returns the wait after failed attempt n (1-based): n × BaseDelay,
// capped at MaxDelay when MaxDelay is positive.
func (r RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 || r.BaseDelay <= 0 {
		return 0
	}
	d := time.Duration(attempt) * r.BaseDelay
	if r.MaxDelay > 0 && d > r.MaxDelay {
		return r.MaxDelay
	}
	return d
}

func (r RetryPolicy) attempts() int {
	if r.MaxAttempts < 1 {
		return 1
	}
	return r.MaxAttempts
}

// sleepWithContext waits for d on clock and reports false if ctx ended first.
func sleepWithContext(ctx context.Context, clock clockwork.Clock, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := clock.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.Chan():
		return true
	}
}
