package cache

import (
	"math"
	"sync/atomic"
	"time"
)

// Clock provides the current time. Expiry comparisons are done at second resolution.
type Clock interface {
	Now() time.Time
}

// SystemClock is the wall clock, clamped so it never goes backwards within a process.
type SystemClock struct { // Implements Clock.
	latest atomic.Int64 // Largest UnixNano returned so far.
}

var _ Clock = (*SystemClock)(nil)

func NewSystemClock() *SystemClock {
	return &SystemClock{}
}

func (c *SystemClock) Now() time.Time {
	current := time.Now().UnixNano()
	for {
		latest := c.latest.Load()
		if current <= latest {
			return time.Unix(0, latest)
		}
		if c.latest.CompareAndSwap(latest, current) {
			return time.Unix(0, current)
		}
	}
}

// nowPlus returns the current time in whole seconds since the epoch, plus `offsetSeconds`.
// A NaN or infinite offset counts as zero.
func nowPlus(clock Clock, offsetSeconds float64) int64 {
	if math.IsNaN(offsetSeconds) || math.IsInf(offsetSeconds, 0) {
		offsetSeconds = 0
	}
	nowSeconds := float64(clock.Now().UnixNano()) / float64(time.Second)
	return int64(math.Floor(offsetSeconds + nowSeconds))
}

// now returns the current time in whole seconds since the epoch.
func now(clock Clock) int64 {
	return nowPlus(clock, 0)
}
