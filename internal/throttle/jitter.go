package throttle

import (
	"math/rand/v2"
	"time"
)

// MaxJitterFraction caps jitter at 10% of the delay.
const MaxJitterFraction = 0.1

// JitterFunc returns the extra delay added on top of d.
type JitterFunc func(d time.Duration) time.Duration

// Jitter returns d × U[0, 0.1).
func Jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return time.Duration(float64(d) * rand.Float64() * MaxJitterFraction)
}

// NoJitter disables jitter. Useful in tests and simulations that need
// reproducible delays.
func NoJitter(time.Duration) time.Duration { return 0 }
