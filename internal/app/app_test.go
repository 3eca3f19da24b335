package app

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Rancune/nightcity-hq/internal/db"
	"github.com/Rancune/nightcity-hq/internal/scheduler"
)

func TestLoadDefaults(t *testing.T) {
	s, err := Load(NewViper())
	require.NoError(t, err)
	require.Equal(t, db.SQLite, s.Dialect)
	require.Equal(t, "/v0", s.BasePath)
	require.Equal(t, 2*time.Second, s.FeedPoll)
	require.Equal(t, scheduler.DefaultResolve, s.Schedules.Resolve)
	require.Equal(t, filepath.Join(".", ".fixer", "fixer.yml"), s.BalanceFile())
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("FIXER_ADMINS", "root, ops")
	t.Setenv("FIXER_RATE_RPS", "2.5")
	t.Setenv("FIXER_SCHEDULE_DECAY", "0 0 * * * *")
	t.Setenv("FIXER_LEGACY_ACTOR_HEADER", "true")
	s, err := Load(NewViper())
	require.NoError(t, err)
	require.Equal(t, []string{"root", "ops"}, s.Admins)
	require.Equal(t, 2.5, s.RateRPS)
	require.Equal(t, "0 0 * * * *", s.Schedules.Decay)
	require.True(t, s.LegacyHeader)
}

func TestLoadRejectsPostgresWithoutDSN(t *testing.T) {
	t.Setenv("FIXER_DB_DIALECT", "postgres")
	_, err := Load(NewViper())
	require.ErrorContains(t, err, "db-dsn")

	t.Setenv("FIXER_DB_DIALECT", "oracle")
	_, err = Load(NewViper())
	require.Error(t, err)
}

func TestOpenUsesWorkspaceBalanceConfig(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".fixer"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".fixer", "fixer.yml"), []byte("actors:\n  starting_eddies: 42\n"), 0o644))

	v := NewViper()
	v.Set("workspace", dir)
	s, err := Load(v)
	require.NoError(t, err)

	a, err := Open(context.Background(), s, s.Logger(io.Discard))
	require.NoError(t, err)
	defer a.Close()

	p, err := a.Engine.EnsureActor(context.Background(), "alice")
	require.NoError(t, err)
	require.Equal(t, int64(42), p.Currency)

	cfg := a.ServerConfig()
	require.Nil(t, cfg.Feed.Subscriber)
	require.Equal(t, s.RateRPS, cfg.RateLimit.RPS)
	require.NotNil(t, a.Scheduler())
}
