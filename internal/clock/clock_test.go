package clock_test

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"

	"github.com/Rancune/nightcity-hq/internal/clock"
)

func TestElapsedGuard(t *testing.T) {
	c := clock.New(60, 10*time.Second)
	base := time.Date(2077, 1, 1, 0, 0, 0, 0, time.UTC)

	_, ok := c.Elapsed(base, base.Add(9*time.Second))
	require.False(t, ok, "ticks under the guard must be ignored")

	trp, ok := c.Elapsed(base, base.Add(10*time.Second))
	require.True(t, ok)
	require.Equal(t, int64(600), trp)

	_, ok = c.Elapsed(base, base.Add(-time.Minute))
	require.False(t, ok, "clock skew must not produce negative elapsed time")
}

func TestRealRoundTrip(t *testing.T) {
	c := clock.New(60, 0)
	require.Equal(t, time.Minute, c.Real(3600))
	require.Equal(t, int64(3600), c.TRP(time.Minute))
}

func TestTRPMonotonic(t *testing.T) {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 200
	properties := gopter.NewProperties(params)
	c := clock.New(60, 10*time.Second)

	properties.Property("longer real intervals never yield fewer TRP seconds", prop.ForAll(
		func(a, b int64) bool {
			if a > b {
				a, b = b, a
			}
			return c.TRP(time.Duration(a)*time.Millisecond) <= c.TRP(time.Duration(b)*time.Millisecond)
		},
		gen.Int64Range(0, 1_000_000_000),
		gen.Int64Range(0, 1_000_000_000),
	))

	properties.Property("TRP is never negative", prop.ForAll(
		func(ms int64) bool {
			return c.TRP(time.Duration(ms)*time.Millisecond) >= 0
		},
		gen.Int64Range(0, 1_000_000_000),
	))

	properties.TestingRun(t)
}
