// Package scheduler runs the world sweeps that must happen even when nobody
// is observing: market rotation, threat decay, due contract resolution and the
// public board top-up.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	rcron "github.com/robfig/cron/v3"

	"github.com/Rancune/nightcity-hq/internal/engine"
)

// Default schedules, in seconds-enabled cron syntax.
const (
	DefaultRotate  = "0 * * * * *"
	DefaultDecay   = "0 */5 * * * *"
	DefaultResolve = "*/15 * * * * *"
	DefaultSpawn   = "30 */10 * * * *"
)

type Schedules struct {
	Rotate  string
	Decay   string
	Resolve string
	Spawn   string
}

func (s Schedules) withDefaults() Schedules {
	if s.Rotate == "" {
		s.Rotate = DefaultRotate
	}
	if s.Decay == "" {
		s.Decay = DefaultDecay
	}
	if s.Resolve == "" {
		s.Resolve = DefaultResolve
	}
	if s.Spawn == "" {
		s.Spawn = DefaultSpawn
	}
	return s
}

// Sweeps is the part of the engine the scheduler drives.
type Sweeps interface {
	RotateMarketIfDue(ctx context.Context) (bool, error)
	DecayThreatSweep(ctx context.Context) (engine.DecayResult, error)
	ResolveDueContracts(ctx context.Context) (int, error)
	SpawnPublicContracts(ctx context.Context) (int, error)
}

type Service struct {
	sweeps    Sweeps
	schedules Schedules
	log       *slog.Logger

	mu      sync.Mutex
	cron    *rcron.Cron
	running map[string]bool
}

func New(sweeps Sweeps, schedules Schedules, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		sweeps:    sweeps,
		schedules: schedules.withDefaults(),
		log:       log,
		running:   map[string]bool{},
	}
}

// Start registers the jobs and runs them until ctx is cancelled.
func (s *Service) Start(ctx context.Context) error {
	c := rcron.New(rcron.WithSeconds())
	jobs := []struct {
		name string
		expr string
		run  func(context.Context) error
	}{
		{"rotate", s.schedules.Rotate, s.rotate},
		{"decay", s.schedules.Decay, s.decay},
		{"resolve", s.schedules.Resolve, s.resolve},
		{"spawn", s.schedules.Spawn, s.spawn},
	}
	for _, j := range jobs {
		j := j
		if _, err := c.AddFunc(j.expr, func() { s.runJob(ctx, j.name, j.run) }); err != nil {
			return fmt.Errorf("schedule %s (%s): %w", j.name, j.expr, err)
		}
	}
	s.mu.Lock()
	s.cron = c
	s.mu.Unlock()
	c.Start()
	s.log.Info("scheduler started", "jobs", len(jobs))
	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

func (s *Service) Stop() {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	<-c.Stop().Done()
	s.log.Info("scheduler stopped")
}

// RunOnce runs every sweep a single time, in order.
func (s *Service) RunOnce(ctx context.Context) error {
	for _, run := range []func(context.Context) error{s.rotate, s.decay, s.resolve, s.spawn} {
		if err := run(ctx); err != nil {
			return err
		}
	}
	return nil
}

// runJob skips a tick while the previous run of the same job is still going.
func (s *Service) runJob(ctx context.Context, name string, run func(context.Context) error) {
	s.mu.Lock()
	if s.running[name] {
		s.mu.Unlock()
		return
	}
	s.running[name] = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running[name] = false
		s.mu.Unlock()
	}()
	if err := run(ctx); err != nil {
		s.log.Error("sweep failed", "job", name, "err", err)
	}
}

func (s *Service) rotate(ctx context.Context) error {
	ok, err := s.sweeps.RotateMarketIfDue(ctx)
	if err != nil {
		return fmt.Errorf("rotate market: %w", err)
	}
	if ok {
		s.log.Info("market rotation applied")
	}
	return nil
}

func (s *Service) decay(ctx context.Context) error {
	res, err := s.sweeps.DecayThreatSweep(ctx)
	if err != nil {
		return fmt.Errorf("decay threat: %w", err)
	}
	s.log.Debug("threat decay sweep", "checked", res.Checked, "decremented", res.Decremented)
	return nil
}

func (s *Service) resolve(ctx context.Context) error {
	n, err := s.sweeps.ResolveDueContracts(ctx)
	if err != nil {
		return fmt.Errorf("resolve contracts: %w", err)
	}
	if n > 0 {
		s.log.Info("contracts resolved", "count", n)
	}
	return nil
}

func (s *Service) spawn(ctx context.Context) error {
	n, err := s.sweeps.SpawnPublicContracts(ctx)
	if err != nil {
		return fmt.Errorf("spawn contracts: %w", err)
	}
	if n > 0 {
		s.log.Info("public contracts posted", "count", n)
	}
	return nil
}
