package connection

import (
	"math"
	"math/rand"
	"time"
)

// backoff computes reconnect waits: exponential doubling from base, spread
// by a uniform jitter of up to fraction in either direction, and never
// exceeding max. A nil rng uses the shared global source.
type backoff struct {
	base     time.Duration
	max      time.Duration
	fraction float64
	rng      *rand.Rand
}

// Delay returns the wait before reconnect attempt n. Attempts are 1-based;
// values below 1 are treated as 1.
func (b backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := float64(b.base) * math.Pow(2, float64(attempt-1))
	limit := float64(b.max)
	if d > limit {
		d = limit
	}
	if b.fraction > 0 {
		// Uniform in [d*(1-fraction), d*(1+fraction)), then clamped so
		// jitter at the cap cannot push the wait past max.
		d *= 1 - b.fraction + 2*b.fraction*b.random()
		if d > limit {
			d = limit
		}
	}
	return time.Duration(d)
}

func (b backoff) random() float64 {
	if b.rng != nil {
		return b.rng.Float64()
	}
	return rand.Float64()
}
