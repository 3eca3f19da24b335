// Package clock converts real elapsed time into game time (TRP seconds).
package clock

import (
	"math"
	"time"
)

const (
	// DefaultRatio is the number of TRP seconds per real second.
	DefaultRatio = 60
	// DefaultMinTick is the shortest real interval a tick will act on.
	DefaultMinTick = 10 * time.Second
)

type Converter struct {
	Ratio   int
	MinTick time.Duration
}

func New(ratio int, minTick time.Duration) Converter {
	if ratio <= 0 {
		ratio = DefaultRatio
	}
	if minTick < 0 {
		minTick = DefaultMinTick
	}
	return Converter{Ratio: ratio, MinTick: minTick}
}

// Elapsed returns the TRP seconds covered by the interval (lastSeen, now] and
// whether a tick should apply them. Intervals shorter than MinTick, or running
// backwards, are ignored so lastSeen stays put until enough time has passed.
func (c Converter) Elapsed(lastSeen, now time.Time) (int64, bool) {
	d := now.Sub(lastSeen)
	if d < c.MinTick || d <= 0 {
		return 0, false
	}
	return c.TRP(d), true
}

// TRP converts a real duration to whole TRP seconds, rounding down.
func (c Converter) TRP(d time.Duration) int64 {
	ratio := c.Ratio
	if ratio <= 0 {
		ratio = DefaultRatio
	}
	trp := math.Floor(d.Seconds() * float64(ratio))
	if trp > math.MaxInt64/2 {
		return math.MaxInt64 / 2
	}
	return int64(trp)
}

// Real converts TRP seconds back to the real duration they take to elapse.
func (c Converter) Real(trp int64) time.Duration {
	ratio := c.Ratio
	if ratio <= 0 {
		ratio = DefaultRatio
	}
	return time.Duration(trp) * time.Second / time.Duration(ratio)
}
