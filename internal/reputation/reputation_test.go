package reputation_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Rancune/nightcity-hq/internal/config"
	"github.com/Rancune/nightcity-hq/internal/domain"
	"github.com/Rancune/nightcity-hq/internal/reputation"
)

func TestLadderName(t *testing.T) {
	l := reputation.Ladder(config.Default().Reputation.FactionTiers)
	require.Equal(t, "Neutral", l.Name(0))
	require.Equal(t, "Hostile", l.Name(-2_000_000))
	require.Equal(t, "Distrusted", l.Name(-50))
	require.Equal(t, "Allied", l.Name(80))
	require.Equal(t, "Revered", l.Name(10_000))
}

func TestLadderReached(t *testing.T) {
	l := reputation.Ladder(config.Default().Reputation.FactionTiers)
	got := l.Reached(70, 160)
	require.Len(t, got, 2)
	require.Equal(t, "inner_circle_jobs", got[0].Unlock)
	require.Equal(t, "black_market_access", got[1].Unlock)
	require.Empty(t, l.Reached(160, 200))
	require.Empty(t, l.Reached(200, 10))
}

func TestDecayDue(t *testing.T) {
	last := time.Date(2077, 3, 1, 0, 0, 0, 0, time.UTC)
	s := domain.FactionStanding{Threat: 3, ThreatUpdatedAt: last}
	require.False(t, reputation.DecayDue(s, last.Add(11*time.Hour), 12*time.Hour))
	require.True(t, reputation.DecayDue(s, last.Add(12*time.Hour), 12*time.Hour))
	s.Threat = 0
	require.False(t, reputation.DecayDue(s, last.Add(48*time.Hour), 12*time.Hour))
}
