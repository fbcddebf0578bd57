package throttle

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// ExponentialBackoff does not delay requests until the server answers 429.
// Each consecutive 429 within one Call sleeps and multiplies the delay. The
// delay resets on success, so nothing is shared between calls except the
// counters reported through Snapshot.
type ExponentialBackoff struct {
	cfg Config

	mu               sync.Mutex
	lastSleep        time.Duration
	rateLimitCount   int
	lastEscalationAt time.Time
}

var _ Throttler = (*ExponentialBackoff)(nil)

// NewExponentialBackoff builds an exponential backoff throttle.
func NewExponentialBackoff(cfg Config) (*ExponentialBackoff, error) {
	cfg = cfg.withDefaults(DefaultAdaptiveMultiplier)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &ExponentialBackoff{cfg: cfg}, nil
}

// Snapshot implements Throttler. SleepFor is the delay most recently chosen
// by any worker, zero after a success.
func (b *ExponentialBackoff) Snapshot() Info {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snapshotLocked()
}

func (b *ExponentialBackoff) snapshotLocked() Info {
	return Info{
		SleepFor:         b.lastSleep,
		RateLimitCount:   b.rateLimitCount,
		LastEscalationAt: b.lastEscalationAt,
	}
}

// Call implements Throttler.
func (b *ExponentialBackoff) Call(ctx context.Context, _ WorkerID, perform Perform) (*Response, error) {
	if perform == nil {
		return nil, ErrNilPerform
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	delay := b.cfg.MinSleep()
	for attempt := 1; ; attempt++ {
		resp, err := perform(ctx)
		if err != nil {
			return nil, err
		}
		if resp == nil {
			return nil, ErrNilResponse
		}

		if !IsRateLimited(resp) {
			notify(b.cfg.Observer, resp, b.record(0, false))
			return resp, nil
		}

		notify(b.cfg.Observer, resp, b.record(delay, true))
		if b.cfg.MaxRetries > 0 && attempt >= b.cfg.MaxRetries {
			return resp, fmt.Errorf("%w after %d attempts", ErrRetriesExhausted, attempt)
		}
		if err := b.cfg.Clock.Sleep(ctx, delay+b.cfg.Jitter(delay)); err != nil {
			return nil, err
		}
		delay = escalateDuration(delay, b.cfg.Multiplier)
	}
}

func (b *ExponentialBackoff) record(delay time.Duration, limited bool) Info {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastSleep = delay
	if limited {
		b.rateLimitCount++
		b.lastEscalationAt = b.cfg.Clock.Now()
	}
	return b.snapshotLocked()
}
