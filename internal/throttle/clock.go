package throttle

import (
	"context"
	"time"
)

// Clock supplies time to the throttle. Sleep must return early with the
// context error when ctx is done.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

// RealClock uses wall-clock time.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

func (RealClock) Sleep(ctx context.Context, d time.Duration) error {
	return sleepContext(ctx, d)
}

// ScaledClock runs simulated time Scale times faster than wall time. A
// one-hour quota window with Scale 60 passes in one real minute.
type ScaledClock struct {
	Scale float64
	start time.Time
}

// NewScaledClock returns a clock whose simulated time starts now.
func NewScaledClock(scale float64) *ScaledClock {
	if scale <= 0 {
		scale = 1
	}
	return &ScaledClock{Scale: scale, start: time.Now()}
}

// Now returns the simulated time.
func (c *ScaledClock) Now() time.Time {
	elapsed := time.Since(c.start)
	return c.start.Add(time.Duration(float64(elapsed) * c.Scale))
}

// Sleep blocks for d of simulated time.
func (c *ScaledClock) Sleep(ctx context.Context, d time.Duration) error {
	return sleepContext(ctx, c.Real(d))
}

// Real converts a simulated duration into wall time.
func (c *ScaledClock) Real(d time.Duration) time.Duration {
	return time.Duration(float64(d) / c.Scale)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
