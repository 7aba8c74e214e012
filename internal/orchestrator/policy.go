package orchestrator

import (
	"context"
	"time"
)

// Default retry policy values.
const (
	DefaultMaxAttempts   = 5
	DefaultRetryDelay    = 5 * time.Second
	DefaultCooldown      = 900 * time.Second
	DefaultReportTimeout = 600 * time.Second
)

// SleepFunc blocks for d or until ctx is done, returning ctx.Err() in the latter case.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Policy bounds dataset acquisition: MaxAttempts tries inside the window, RetryDelay
// after each failed one, then a single Cooldown before the optional final attempt.
type Policy struct {
	MaxAttempts  int
	RetryDelay   time.Duration
	Cooldown     time.Duration
	FinalAttempt bool
	Sleep        SleepFunc
}

// DefaultPolicy returns the production retry policy.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:  DefaultMaxAttempts,
		RetryDelay:   DefaultRetryDelay,
		Cooldown:     DefaultCooldown,
		FinalAttempt: true,
		Sleep:        ContextSleep,
	}
}

// TotalAttempts is the upper bound on attempts the policy allows.
func (p Policy) TotalAttempts() int {
	n := p.MaxAttempts
	if n < 1 {
		n = 1
	}
	if p.FinalAttempt {
		n++
	}
	return n
}

func (p Policy) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	if p.Sleep == nil {
		return ContextSleep(ctx, d)
	}
	return p.Sleep(ctx, d)
}

// ContextSleep waits for d, returning early if ctx is cancelled.
func ContextSleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
