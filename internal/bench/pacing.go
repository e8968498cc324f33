package bench

import (
	"context"
	"time"
)

// DelayFunc maps an iteration index to the pause taken at that point
type DelayFunc func(iteration int) time.Duration

// Fixed returns a DelayFunc that always waits d
func Fixed(d time.Duration) DelayFunc {
	return func(int) time.Duration { return d }
}

// Sleeper blocks for d or until ctx is done
type Sleeper func(ctx context.Context, d time.Duration) error

// Pacing is the two-tier rate policy: a pause after every call and an
// additional pause between loop iterations.
type Pacing struct {
	PerCall DelayFunc
	PerLoop DelayFunc
	Sleep   Sleeper
}

// DefaultPacing sleeps on the wall clock
func DefaultPacing(perCall, perLoop time.Duration) Pacing {
	return Pacing{PerCall: Fixed(perCall), PerLoop: Fixed(perLoop), Sleep: SleepContext}
}

// NoPacing never waits
func NoPacing() Pacing {
	return Pacing{PerCall: Fixed(0), PerLoop: Fixed(0), Sleep: SleepContext}
}

func (p Pacing) afterCall(ctx context.Context, iteration int) error {
	return p.wait(ctx, p.PerCall, iteration)
}

func (p Pacing) betweenIterations(ctx context.Context, iteration int) error {
	return p.wait(ctx, p.PerLoop, iteration)
}

func (p Pacing) wait(ctx context.Context, f DelayFunc, iteration int) error {
	if f == nil {
		return ctx.Err()
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = SleepContext
	}
	return sleep(ctx, f(iteration))
}

// SleepContext waits for d, returning early with ctx.Err() on cancellation
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	select {
	case <-ctx.Done():
		if !t.Stop() {
			<-t.C
		}
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
