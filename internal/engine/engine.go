package engine

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Rancune/nightcity-hq/internal/clock"
	"github.com/Rancune/nightcity-hq/internal/config"
	"github.com/Rancune/nightcity-hq/internal/db"
	"github.com/Rancune/nightcity-hq/internal/domain"
	"github.com/Rancune/nightcity-hq/internal/events"
	"github.com/Rancune/nightcity-hq/internal/gameerr"
	"github.com/Rancune/nightcity-hq/internal/narrative"
	"github.com/Rancune/nightcity-hq/internal/notify"
	"github.com/Rancune/nightcity-hq/internal/repo"
	"github.com/Rancune/nightcity-hq/internal/reputation"
	"github.com/Rancune/nightcity-hq/internal/rewards"
)

// SystemActor is recorded as the actor of scheduled sweeps.
const SystemActor = "system"

type Engine struct {
	DB        *sql.DB
	Repo      repo.Repo
	Events    events.Writer
	Config    *config.Config
	Clock     clock.Converter
	Rewards   rewards.Policy
	Duration  rewards.DurationFunc
	Narrative narrative.Generator
	Publisher notify.Publisher
	Log       *slog.Logger
	Rand      *rand.Rand
	Now       func() time.Time
}

func New(conn *sql.DB, dialect db.Dialect, cfg *config.Config) Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	return Engine{
		DB:        conn,
		Repo:      repo.Repo{DB: conn, Dialect: dialect},
		Events:    events.Writer{DB: conn, Dialect: dialect},
		Config:    cfg,
		Clock:     clock.New(cfg.Clock.TRPRatio, cfg.Clock.MinTick),
		Rewards:   rewards.FromConfig(cfg),
		Duration:  rewards.LinearDuration(cfg.Contracts.CompletionBase, cfg.Contracts.CompletionPerThreat),
		Narrative: narrative.WithFallback{},
		Publisher: notify.Nop{},
		Log:       slog.Default(),
		Rand:      NewRand(time.Now().UnixNano()),
		Now:       time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now().UTC()
	}
	return time.Now().UTC()
}

func (e Engine) logger() *slog.Logger {
	if e.Log != nil {
		return e.Log
	}
	return slog.Default()
}

func (e Engine) rng() *rand.Rand {
	if e.Rand != nil {
		return e.Rand
	}
	return NewRand(time.Now().UnixNano())
}

func (e Engine) duration(threat int) time.Duration {
	if e.Duration != nil {
		return e.Duration(threat)
	}
	return rewards.LinearDuration(e.Config.Contracts.CompletionBase, e.Config.Contracts.CompletionPerThreat)(threat)
}

func (e Engine) tiers() reputation.Ladder {
	return reputation.Ladder(e.Config.Reputation.Tiers)
}

func (e Engine) factionTiers() reputation.Ladder {
	return reputation.Ladder(e.Config.Reputation.FactionTiers)
}

func newID() string {
	return uuid.NewString()
}

// notFound turns a repo miss into a caller-facing error.
func notFound(err error, kind, id string) error {
	if errors.Is(err, repo.ErrNotFound) {
		return gameerr.NotFound("%s %s not found", kind, id)
	}
	return err
}

// outbox collects notifications written inside a transaction so they can be
// published once it commits.
type outbox []domain.Notification

func (e Engine) notify(ctx context.Context, tx *sql.Tx, out *outbox, n domain.Notification) error {
	if n.ActorID == "" {
		return nil
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = e.now()
	}
	if err := e.Repo.InsertNotification(ctx, tx, n); err != nil {
		return err
	}
	*out = append(*out, n)
	return nil
}

func (e Engine) publish(ctx context.Context, out outbox) {
	if e.Publisher == nil {
		return
	}
	for _, n := range out {
		if err := e.Publisher.Publish(ctx, n); err != nil {
			e.logger().Warn("publish notification", "actor", n.ActorID, "kind", n.Kind, "err", err)
		}
	}
}

type lockedSource struct {
	mu  sync.Mutex
	src rand.Source64
}

func (s *lockedSource) Int63() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.src.Int63()
}

func (s *lockedSource) Uint64() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.src.Uint64()
}

func (s *lockedSource) Seed(seed int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.src.Seed(seed)
}

// NewRand returns a generator that is safe for concurrent use.
func NewRand(seed int64) *rand.Rand {
	return rand.New(&lockedSource{src: rand.NewSource(seed).(rand.Source64)})
}
