package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Rancune/nightcity-hq/internal/engine"
)

type fakeSweeps struct {
	rotations atomic.Int32
	decays    atomic.Int32
	resolves  atomic.Int32
	spawns    atomic.Int32
	failDecay bool
}

func (f *fakeSweeps) RotateMarketIfDue(context.Context) (bool, error) {
	f.rotations.Add(1)
	return true, nil
}

func (f *fakeSweeps) DecayThreatSweep(context.Context) (engine.DecayResult, error) {
	f.decays.Add(1)
	if f.failDecay {
		return engine.DecayResult{}, errors.New("boom")
	}
	return engine.DecayResult{Checked: 2, Decremented: 1}, nil
}

func (f *fakeSweeps) ResolveDueContracts(context.Context) (int, error) {
	f.resolves.Add(1)
	return 0, nil
}

func (f *fakeSweeps) SpawnPublicContracts(context.Context) (int, error) {
	f.spawns.Add(1)
	return 3, nil
}

func TestRunOnceRunsEverySweep(t *testing.T) {
	f := &fakeSweeps{}
	s := New(f, Schedules{}, nil)
	require.NoError(t, s.RunOnce(context.Background()))
	require.EqualValues(t, 1, f.rotations.Load())
	require.EqualValues(t, 1, f.decays.Load())
	require.EqualValues(t, 1, f.resolves.Load())
	require.EqualValues(t, 1, f.spawns.Load())
}

func TestRunOnceStopsOnError(t *testing.T) {
	f := &fakeSweeps{failDecay: true}
	s := New(f, Schedules{}, nil)
	err := s.RunOnce(context.Background())
	require.ErrorContains(t, err, "decay threat")
	require.Zero(t, f.resolves.Load())
}

func TestStartRejectsBadSchedule(t *testing.T) {
	s := New(&fakeSweeps{}, Schedules{Rotate: "not a cron"}, nil)
	require.Error(t, s.Start(context.Background()))
}

func TestStartRunsJobs(t *testing.T) {
	f := &fakeSweeps{}
	every := "* * * * * *"
	s := New(f, Schedules{Rotate: every, Decay: every, Resolve: every, Spawn: every}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, s.Start(ctx))
	require.Eventually(t, func() bool { return f.resolves.Load() > 0 }, 3*time.Second, 50*time.Millisecond)
	s.Stop()
}
