// Package backoff provides the randomized-retry building block shared by
// the store's file-lock contention handling, the spawner's poll loop, and
// Future.Result's polling wait.
package backoff

import (
	"math"
	"math/rand"
	"time"
)

// Policy is an exponential backoff with uniform jitter, grounded on the
// same shape used for task-retry scheduling in earlier revisions of this
// codebase's worker pool: initial * factor^attempt, capped, then jittered.
type Policy struct {
	Initial time.Duration
	Max     time.Duration
	Factor  float64
	Jitter  float64 // 0.0-1.0, applied as +/-Jitter around the computed value
}

// Default is the store's file-lock retry policy: 10ms initial, doubling,
// capped at 2s per attempt, +/-20% jitter.
func Default() Policy {
	return Policy{
		Initial: 10 * time.Millisecond,
		Max:     2 * time.Second,
		Factor:  2.0,
		Jitter:  0.2,
	}
}

// Delay returns the backoff duration for the given attempt (0-indexed).
func (p Policy) Delay(attempt int) time.Duration {
	if attempt <= 0 {
		return p.jitter(p.Initial)
	}
	d := float64(p.Initial) * math.Pow(p.Factor, float64(attempt))
	if d > float64(p.Max) {
		d = float64(p.Max)
	}
	return p.jitter(time.Duration(d))
}

func (p Policy) jitter(d time.Duration) time.Duration {
	if p.Jitter <= 0 {
		return d
	}
	delta := float64(d) * p.Jitter * (rand.Float64()*2 - 1)
	out := float64(d) + delta
	if out < 0 {
		out = float64(d)
	}
	return time.Duration(out)
}

// Jittered returns base scaled by a uniform random factor in
// [1-spread, 1+spread], the poll-loop jitter used by the source system's
// `timestep * random.uniform(0.8, 1.2)` idiom.
func Jittered(base time.Duration, spread float64) time.Duration {
	factor := 1 + spread*(rand.Float64()*2-1)
	return time.Duration(float64(base) * factor)
}
