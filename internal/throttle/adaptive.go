package throttle

import (
	"context"
	"fmt"
)

// Adaptive is the decay-based throttle. It starts at twice the minimum
// delay, escalates through a RetryCoordinator when the server answers 429
// and decays after every success in proportion to the remaining quota and
// the age of the last escalation.
type Adaptive struct {
	cfg   Config
	state *state
}

var _ Throttler = (*Adaptive)(nil)

// NewAdaptive builds an adaptive throttle.
func NewAdaptive(cfg Config) (*Adaptive, error) {
	cfg = cfg.withDefaults(DefaultAdaptiveMultiplier)
	if cfg.InitialEscalationAge == 0 {
		cfg.InitialEscalationAge = DefaultInitialEscalationAge
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &Adaptive{
		cfg: cfg,
		state: &state{
			sleepFor:       2 * cfg.MinSleep(),
			minSleepBound:  cfg.MinSleepBound(1),
			rateMultiplier: 1,
			decayOrigin:    cfg.Clock.Now().Add(-cfg.InitialEscalationAge),
			coordinator:    NewRetryCoordinator(cfg.LeaderLease),
		},
	}, nil
}

// Config returns the effective configuration.
func (a *Adaptive) Config() Config { return a.cfg }

// Snapshot implements Throttler.
func (a *Adaptive) Snapshot() Info { return a.state.snapshot() }

// Call implements Throttler.
func (a *Adaptive) Call(ctx context.Context, worker WorkerID, perform Perform) (*Response, error) {
	if perform == nil {
		return nil, ErrNilPerform
	}
	// A leader that leaves through an error or cancellation must not keep
	// the episode open for everybody else.
	defer a.release(worker)

	for attempt := 1; ; attempt++ {
		delay := a.Snapshot().SleepFor
		if err := a.cfg.Clock.Sleep(ctx, delay+a.cfg.Jitter(delay)); err != nil {
			return nil, err
		}

		resp, err := perform(ctx)
		if err != nil {
			return nil, err
		}
		if resp == nil {
			return nil, ErrNilResponse
		}

		if !IsRateLimited(resp) {
			info := a.succeed(worker, resp)
			notify(a.cfg.Observer, resp, info)
			return resp, nil
		}

		info := a.escalate(worker, resp)
		notify(a.cfg.Observer, resp, info)
		if a.cfg.MaxRetries > 0 && attempt >= a.cfg.MaxRetries {
			return resp, fmt.Errorf("%w after %d attempts", ErrRetriesExhausted, attempt)
		}
	}
}

// escalate runs the leader protocol for a 429 seen by worker.
func (a *Adaptive) escalate(worker WorkerID, resp *Response) Info {
	s := a.state
	s.mu.Lock()
	defer s.mu.Unlock()

	now := a.cfg.Clock.Now()
	leader, escalate := s.coordinator.Enter(worker, now)
	if !leader {
		return s.snapshotLocked()
	}

	if resp.HasRateMultiplier() {
		s.rateMultiplier = resp.RateMultiplier
	}
	s.minSleepBound = a.cfg.MinSleepBound(s.rateMultiplier)

	if escalate {
		s.sleepFor = escalateDuration(s.sleepFor, a.cfg.Multiplier)
		s.rateLimitCount++
		s.lastEscalationAt = now
	}
	return s.snapshotLocked()
}

// succeed decays the delay and closes the episode if worker led it.
func (a *Adaptive) succeed(worker WorkerID, resp *Response) Info {
	s := a.state
	s.mu.Lock()
	defer s.mu.Unlock()

	elapsed := a.cfg.Clock.Now().Sub(s.escalationBase())
	if elapsed < 0 {
		elapsed = 0
	}
	factor := TimeFactor(elapsed, a.cfg.DecayConstant)
	decrement := DecayDecrement(s.sleepFor, resp.Remaining, a.cfg.MaxLimit, factor)
	s.sleepFor = Decay(s.sleepFor, decrement, s.minSleepBound)

	s.coordinator.Release(worker)
	return s.snapshotLocked()
}

func (a *Adaptive) release(worker WorkerID) {
	s := a.state
	s.mu.Lock()
	defer s.mu.Unlock()
	s.coordinator.Release(worker)
}
