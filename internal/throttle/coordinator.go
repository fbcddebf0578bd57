package throttle

import "time"

// RetryCoordinator elects a single leader per escalation episode so that N
// workers hitting 429 at once escalate the shared delay once, not N times.
//
// It carries no lock of its own. Every method must be called while holding
// the mutex of the state that owns it.
type RetryCoordinator struct {
	owner        WorkerID
	timesRetried int
	lease        time.Duration
	leaseExpires time.Time
}

// NewRetryCoordinator returns a coordinator. A positive lease lets followers
// take over from a leader that stopped retrying.
func NewRetryCoordinator(lease time.Duration) *RetryCoordinator {
	return &RetryCoordinator{lease: lease}
}

// Enter records a 429 observed by worker. It reports whether worker is the
// leader of the episode and, if so, whether this retry must escalate. The
// first 429 of an episode never escalates.
func (c *RetryCoordinator) Enter(worker WorkerID, now time.Time) (leader, escalate bool) {
	switch {
	case c.owner == "", c.owner == worker:
	case c.lease > 0 && !now.Before(c.leaseExpires):
		// leader stopped retrying; keep timesRetried so the new leader
		// escalates right away
	default:
		return false, false
	}

	escalate = c.timesRetried != 0
	c.timesRetried++
	c.owner = worker
	if c.lease > 0 {
		c.leaseExpires = now.Add(c.lease)
	}
	return true, escalate
}

// Release ends the episode when worker is the recorded leader.
func (c *RetryCoordinator) Release(worker WorkerID) bool {
	if c.owner == "" || c.owner != worker {
		return false
	}
	c.owner = ""
	c.timesRetried = 0
	c.leaseExpires = time.Time{}
	return true
}

// Leader returns the current leader or an empty id.
func (c *RetryCoordinator) Leader() WorkerID { return c.owner }

// TimesRetried returns the retry count of the current episode.
func (c *RetryCoordinator) TimesRetried() int { return c.timesRetried }
