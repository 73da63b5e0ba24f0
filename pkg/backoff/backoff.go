// Package backoff computes retry delays with exponential growth, an upper
// bound and optional full jitter.
package backoff

import (
	"math"
	"math/rand/v2"
	"time"
)

const maxShift = 62

// Policy describes an exponential backoff schedule.
type Policy struct {
	Base   time.Duration
	Max    time.Duration
	Jitter bool
}

// Delay returns the wait before retry number attempt (1-based).
// The first retry waits Base, each further retry doubles it, capped at Max.
func (p Policy) Delay(attempt int) time.Duration {
	d := Exponential(p.Base, attempt-1)
	if p.Max > 0 && d > p.Max {
		d = p.Max
	}
	if p.Jitter {
		return FullJitter(d)
	}
	return d
}

// Exponential calculates base * 2^attempt with overflow protection.
// Negative attempts are treated as 0.
func Exponential(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		return 0
	}
	if attempt < 0 {
		attempt = 0
	} else if attempt > maxShift {
		attempt = maxShift
	}

	multiplier := int64(1) << attempt
	if int64(base) > math.MaxInt64/multiplier {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(int64(base) * multiplier)
}

// FullJitter returns a random duration in [0, delay).
func FullJitter(delay time.Duration) time.Duration {
	if delay <= 0 {
		return 0
	}
	return time.Duration(rand.Int64N(int64(delay)))
}
