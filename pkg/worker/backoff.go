package worker

import (
	"math"
	"math/rand"
	"time"
)

// backoff computes the retry delay for attempt a (1-indexed): an
// exponential schedule capped at maxDelay, with up to 25% jitter added so
// many work items failing together don't all retry in lockstep.
func backoff(a int, base, maxDelay time.Duration) time.Duration {
	raw := float64(base) * math.Pow(2, float64(a-1))
	capped := math.Min(float64(maxDelay), raw)
	jitter := rand.Float64() * capped * 0.25
	return time.Duration(capped + jitter)
}

// rateLimitFloor is the minimum retry delay for a RATE_LIMIT classification,
// regardless of what the exponential schedule would otherwise produce.
const rateLimitFloor = 30 * time.Second

func applyRateLimitFloor(d time.Duration) time.Duration {
	if d < rateLimitFloor {
		return rateLimitFloor
	}
	return d
}
