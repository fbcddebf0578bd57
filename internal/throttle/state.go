package throttle

import (
	"sync"
	"time"
)

// state is the shared delay state of one adaptive throttle. All fields are
// guarded by mu, which is never held across a sleep or a request.
type state struct {
	mu sync.Mutex

	sleepFor       time.Duration
	minSleepBound  time.Duration
	rateMultiplier float64
	rateLimitCount int

	// lastEscalationAt is zero until the first escalation; decayOrigin
	// stands in for it until then.
	lastEscalationAt time.Time
	decayOrigin      time.Time

	coordinator *RetryCoordinator
}

func (s *state) escalationBase() time.Time {
	if s.lastEscalationAt.IsZero() {
		return s.decayOrigin
	}
	return s.lastEscalationAt
}

// snapshotLocked must be called with mu held.
func (s *state) snapshotLocked() Info {
	return Info{
		SleepFor:         s.sleepFor,
		MinSleepBound:    s.minSleepBound,
		RateMultiplier:   s.rateMultiplier,
		RateLimitCount:   s.rateLimitCount,
		LastEscalationAt: s.lastEscalationAt,
		Leader:           s.coordinator.Leader(),
	}
}

func (s *state) snapshot() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}
