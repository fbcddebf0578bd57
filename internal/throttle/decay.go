package throttle

import (
	"math"
	"time"
)

// TimeFactor returns 1/(1 - e^(-elapsed/constant)). It is +Inf when the last
// escalation happened just now and approaches 1 as the escalation ages, so
// recently limited clients decay slower than idle ones.
func TimeFactor(elapsed, constant time.Duration) float64 {
	if elapsed <= 0 || constant <= 0 {
		return math.Inf(1)
	}
	return 1 / (1 - math.Exp(-elapsed.Seconds()/constant.Seconds()))
}

// DecayDecrement returns remaining*sleep/(timeFactor*maxLimit), the amount
// removed from the delay after a successful response.
func DecayDecrement(sleep time.Duration, remaining, maxLimit int, timeFactor float64) time.Duration {
	if sleep <= 0 || remaining <= 0 || maxLimit <= 0 || math.IsInf(timeFactor, 1) || timeFactor <= 0 {
		return 0
	}
	return seconds(float64(remaining) * sleep.Seconds() / (timeFactor * float64(maxLimit)))
}

// Decay subtracts decrement from sleep and clamps the result at bound.
func Decay(sleep, decrement, bound time.Duration) time.Duration {
	next := sleep - decrement
	if next < bound {
		return bound
	}
	return next
}

// escalateDuration multiplies d by factor.
func escalateDuration(d time.Duration, factor float64) time.Duration {
	return time.Duration(float64(d) * factor)
}
