package throttle

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// decreaseFunc computes the delay after a successful response.
type decreaseFunc func(sleep time.Duration, resp *Response) time.Duration

// increaseDecrease is the shared loop of the two gradual strategies. The
// delay is read when a call starts and written back when it ends, so the
// last caller to finish wins.
type increaseDecrease struct {
	cfg      Config
	decrease decreaseFunc

	mu               sync.Mutex
	sleepFor         time.Duration
	rateLimitCount   int
	lastEscalationAt time.Time
}

func newIncreaseDecrease(cfg Config, decrease decreaseFunc) (*increaseDecrease, error) {
	cfg = cfg.withDefaults(DefaultGradualMultiplier)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &increaseDecrease{cfg: cfg, decrease: decrease}, nil
}

func (t *increaseDecrease) Snapshot() Info {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

func (t *increaseDecrease) snapshotLocked() Info {
	return Info{
		SleepFor:         t.sleepFor,
		RateLimitCount:   t.rateLimitCount,
		LastEscalationAt: t.lastEscalationAt,
	}
}

func (t *increaseDecrease) Call(ctx context.Context, _ WorkerID, perform Perform) (*Response, error) {
	if perform == nil {
		return nil, ErrNilPerform
	}

	delay := t.Snapshot().SleepFor
	if err := t.cfg.Clock.Sleep(ctx, delay+t.cfg.Jitter(delay)); err != nil {
		return nil, err
	}

	step := t.cfg.MinSleep()
	for attempt := 1; ; attempt++ {
		resp, err := perform(ctx)
		if err != nil {
			return nil, err
		}
		if resp == nil {
			return nil, ErrNilResponse
		}

		if !IsRateLimited(resp) {
			delay = t.decrease(delay, resp)
			if delay < 0 {
				delay = 0
			}
			notify(t.cfg.Observer, resp, t.store(delay))
			return resp, nil
		}

		delay += step
		notify(t.cfg.Observer, resp, t.limited(delay))
		if t.cfg.MaxRetries > 0 && attempt >= t.cfg.MaxRetries {
			return resp, fmt.Errorf("%w after %d attempts", ErrRetriesExhausted, attempt)
		}
		if err := t.cfg.Clock.Sleep(ctx, delay+t.cfg.Jitter(delay)); err != nil {
			return nil, err
		}
		delay = escalateDuration(delay, t.cfg.Multiplier)
	}
}

func (t *increaseDecrease) limited(delay time.Duration) Info {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rateLimitCount++
	t.lastEscalationAt = t.cfg.Clock.Now()
	info := t.snapshotLocked()
	info.SleepFor = delay
	return info
}

func (t *increaseDecrease) store(delay time.Duration) Info {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sleepFor = delay
	return t.snapshotLocked()
}

// GradualDecrease adds the minimum delay and multiplies on every 429, then
// subtracts the minimum delay once the request succeeds.
type GradualDecrease struct {
	*increaseDecrease
}

var _ Throttler = GradualDecrease{}

// NewGradualDecrease builds an exponential-increase, gradual-decrease
// throttle. The delay starts at zero.
func NewGradualDecrease(cfg Config) (GradualDecrease, error) {
	var step time.Duration
	t, err := newIncreaseDecrease(cfg, func(sleep time.Duration, _ *Response) time.Duration {
		if sleep >= step {
			return sleep - step
		}
		return 0
	})
	if err != nil {
		return GradualDecrease{}, err
	}
	step = t.cfg.MinSleep()
	return GradualDecrease{t}, nil
}

// RemainingDecrease adds the minimum delay and multiplies on every 429, then
// subtracts sleep*remaining/MaxLimit once the request succeeds.
type RemainingDecrease struct {
	*increaseDecrease
}

var _ Throttler = RemainingDecrease{}

// NewRemainingDecrease builds an exponential-increase, remaining-decrease
// throttle. The delay starts at zero.
func NewRemainingDecrease(cfg Config) (RemainingDecrease, error) {
	var maxLimit int
	t, err := newIncreaseDecrease(cfg, func(sleep time.Duration, resp *Response) time.Duration {
		return sleep - RemainingDecrement(sleep, resp.Remaining, maxLimit)
	})
	if err != nil {
		return RemainingDecrease{}, err
	}
	maxLimit = t.cfg.MaxLimit
	return RemainingDecrease{t}, nil
}

// RemainingDecrement returns sleep*remaining/maxLimit.
func RemainingDecrement(sleep time.Duration, remaining, maxLimit int) time.Duration {
	if remaining <= 0 || maxLimit <= 0 {
		return 0
	}
	return time.Duration(float64(sleep) * float64(remaining) / float64(maxLimit))
}
