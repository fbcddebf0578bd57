// Package quota implements the toy API's request budget: a token bucket of
// MaxLimit requests refilled over Window, advertised to clients through the
// RateLimit-Remaining and RateLimit-Multiplier headers.
package quota

import (
	"fmt"
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/namelens/ratethrottle/internal/throttle"
)

// Config sizes the bucket.
type Config struct {
	MaxLimit int
	Window   time.Duration
	// Multiplier scales the refill rate and is reported to clients so they
	// can rescale their own minimum sleep.
	Multiplier float64
}

// DefaultConfig matches the client throttle defaults.
func DefaultConfig() Config {
	return Config{
		MaxLimit:   throttle.DefaultMaxLimit,
		Window:     throttle.DefaultWindow,
		Multiplier: 1,
	}
}

func (c Config) validate() error {
	switch {
	case c.MaxLimit <= 0:
		return fmt.Errorf("quota max limit must be positive, got %d", c.MaxLimit)
	case c.Window <= 0:
		return fmt.Errorf("quota window must be positive, got %s", c.Window)
	case c.Multiplier <= 0 || math.IsNaN(c.Multiplier) || math.IsInf(c.Multiplier, 0):
		return fmt.Errorf("quota multiplier must be positive, got %v", c.Multiplier)
	}
	return nil
}

func (c Config) limit() rate.Limit {
	return rate.Limit(c.Multiplier * float64(c.MaxLimit) / c.Window.Seconds())
}

// Decision is the outcome of one Take.
type Decision struct {
	Allowed    bool
	Remaining  int
	Multiplier float64
}

// Bucket is safe for concurrent use. All time comes from the injected clock
// so a scaled clock speeds up refills together with the clients.
type Bucket struct {
	mu      sync.Mutex
	cfg     Config
	limiter *rate.Limiter
	clock   throttle.Clock
}

// NewBucket returns a full bucket.
func NewBucket(cfg Config, clock throttle.Clock) (*Bucket, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if clock == nil {
		clock = throttle.RealClock{}
	}
	limiter := rate.NewLimiter(cfg.limit(), cfg.MaxLimit)
	// Pin the limiter's notion of "last update" to the injected clock.
	limiter.SetLimitAt(clock.Now(), cfg.limit())

	return &Bucket{cfg: cfg, limiter: limiter, clock: clock}, nil
}

// Take consumes one token if available.
func (b *Bucket) Take() Decision {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.clock.Now()
	allowed := b.limiter.AllowN(now, 1)
	return Decision{
		Allowed:    allowed,
		Remaining:  remaining(b.limiter.TokensAt(now)),
		Multiplier: b.cfg.Multiplier,
	}
}

// Remaining reports the whole tokens left without consuming any.
func (b *Bucket) Remaining() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return remaining(b.limiter.TokensAt(b.clock.Now()))
}

// SetMultiplier changes the refill rate. Tokens already in the bucket are
// kept.
func (b *Bucket) SetMultiplier(multiplier float64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	next := b.cfg
	next.Multiplier = multiplier
	if err := next.validate(); err != nil {
		return err
	}
	b.cfg = next
	b.limiter.SetLimitAt(b.clock.Now(), next.limit())
	return nil
}

// Config returns the current bucket configuration.
func (b *Bucket) Config() Config {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cfg
}

func remaining(tokens float64) int {
	if tokens <= 0 {
		return 0
	}
	return int(math.Floor(tokens))
}
