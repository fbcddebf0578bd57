package throttle

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Common errors.
var (
	ErrInvalidConfig    = errors.New("invalid throttle configuration")
	ErrRetriesExhausted = errors.New("rate limited retries exhausted")
	ErrNilPerform       = errors.New("perform function is required")
	ErrNilResponse      = errors.New("perform returned no response")
	ErrUnknownStrategy  = errors.New("unknown throttle strategy")
)

// Strategy names a throttling algorithm.
type Strategy string

const (
	StrategyAdaptive           Strategy = "adaptive"
	StrategyExponentialBackoff Strategy = "exponential-backoff"
	StrategyGradualDecrease    Strategy = "gradual-decrease"
	StrategyRemainingDecrease  Strategy = "remaining-decrease"
)

// Strategies lists every supported strategy.
func Strategies() []Strategy {
	return []Strategy{
		StrategyAdaptive,
		StrategyExponentialBackoff,
		StrategyGradualDecrease,
		StrategyRemainingDecrease,
	}
}

// strategyAliases maps short names to strategies.
var strategyAliases = map[Strategy]Strategy{
	"backoff":   StrategyExponentialBackoff,
	"gradual":   StrategyGradualDecrease,
	"remaining": StrategyRemainingDecrease,
}

// ParseStrategy validates and normalizes a strategy name. The short names
// backoff, gradual and remaining are accepted too.
func ParseStrategy(value string) (Strategy, error) {
	normalized := Strategy(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return StrategyAdaptive, nil
	}
	if s, ok := strategyAliases[normalized]; ok {
		return s, nil
	}
	for _, s := range Strategies() {
		if s == normalized {
			return s, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrUnknownStrategy, value)
}

// WorkerID identifies one caller of a Throttler. Leader election compares
// identities by value, so every concurrent caller needs its own.
type WorkerID string

// NewWorkerID returns a unique worker identity.
func NewWorkerID() WorkerID {
	return WorkerID(uuid.New().String())
}

// Perform issues exactly one request and reports its outcome.
type Perform func(ctx context.Context) (*Response, error)

// Info is a read-only snapshot of throttle state handed to observers after
// every attempt.
type Info struct {
	SleepFor         time.Duration
	MinSleepBound    time.Duration
	RateMultiplier   float64
	RateLimitCount   int
	LastEscalationAt time.Time // zero when no escalation happened yet
	Leader           WorkerID  // empty when no episode is in progress
}

// Escalated reports whether the throttle escalated at least once.
func (i Info) Escalated() bool {
	return !i.LastEscalationAt.IsZero()
}

// Observer receives every attempt's response along with a state snapshot.
// It must not block and must not call back into the Throttler.
type Observer func(resp *Response, info Info)

// Throttler paces calls to a rate-limited API.
type Throttler interface {
	// Call sleeps for the current delay, invokes perform and retries while
	// the server answers 429. Any other response is returned unchanged.
	Call(ctx context.Context, worker WorkerID, perform Perform) (*Response, error)

	// Snapshot returns the current metrics surface.
	Snapshot() Info
}

// New builds a Throttler for the named strategy.
func New(strategy Strategy, cfg Config) (Throttler, error) {
	var (
		th  Throttler
		err error
	)
	switch strategy {
	case StrategyAdaptive, "":
		th, err = NewAdaptive(cfg)
	case StrategyExponentialBackoff:
		th, err = NewExponentialBackoff(cfg)
	case StrategyGradualDecrease:
		th, err = NewGradualDecrease(cfg)
	case StrategyRemainingDecrease:
		th, err = NewRemainingDecrease(cfg)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownStrategy, strategy)
	}
	if err != nil {
		return nil, err
	}
	return th, nil
}

// IsRateLimited reports whether the response asks the caller to slow down.
func IsRateLimited(resp *Response) bool {
	return resp != nil && resp.StatusCode == http.StatusTooManyRequests
}

// notify invokes the observer, swallowing panics so logging can never abort
// the throttle loop.
func notify(observer Observer, resp *Response, info Info) {
	if observer == nil {
		return
	}
	defer func() {
		_ = recover()
	}()
	observer(resp, info)
}

// ChainObservers fans one attempt out to several observers. Nil entries are
// skipped and each observer is isolated from the others' panics.
func ChainObservers(observers ...Observer) Observer {
	var active []Observer
	for _, o := range observers {
		if o != nil {
			active = append(active, o)
		}
	}
	switch len(active) {
	case 0:
		return nil
	case 1:
		return active[0]
	}
	return func(resp *Response, info Info) {
		for _, o := range active {
			notify(o, resp, info)
		}
	}
}
