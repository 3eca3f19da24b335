// Package app wires settings into a running engine.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Rancune/nightcity-hq/internal/config"
	"github.com/Rancune/nightcity-hq/internal/db"
	"github.com/Rancune/nightcity-hq/internal/engine"
	"github.com/Rancune/nightcity-hq/internal/migrate"
	"github.com/Rancune/nightcity-hq/internal/narrative"
	"github.com/Rancune/nightcity-hq/internal/notify"
	"github.com/Rancune/nightcity-hq/internal/scheduler"
	"github.com/Rancune/nightcity-hq/internal/server"
)

type App struct {
	Settings Settings
	DB       *sql.DB
	Engine   engine.Engine
	Log      *slog.Logger

	redis *notify.Redis
}

// Open connects the store, applies migrations, loads the balance config and
// builds the engine with its collaborators.
func Open(ctx context.Context, s Settings, log *slog.Logger) (*App, error) {
	if log == nil {
		log = slog.Default()
	}
	cfg, err := config.LoadOptional(s.BalanceFile())
	if err != nil {
		return nil, fmt.Errorf("load balance config: %w", err)
	}
	conn, err := db.Open(db.Config{Dialect: s.Dialect, Workspace: s.workspace(), DSN: s.DSN})
	if err != nil {
		return nil, err
	}
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("connect %s: %w", s.Dialect, err)
	}
	if err := migrate.Migrate(conn, s.Dialect); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	e := engine.New(conn, s.Dialect, cfg)
	e.Log = log
	fallback := narrative.WithFallback{Log: log}
	if s.NarrativeURL != "" {
		fallback.Primary = narrative.NewHTTPGenerator(s.NarrativeURL, s.NarrativeToken, s.NarrativeTimeout)
	}
	e.Narrative = fallback

	a := &App{Settings: s, DB: conn, Engine: e, Log: log}
	if s.RedisAddr != "" {
		r := notify.NewRedis(s.RedisAddr, s.RedisPassword, s.RedisDB)
		if err := r.Client.Ping(ctx).Err(); err != nil {
			log.Warn("redis unavailable, notifications are polled only", "addr", s.RedisAddr, "err", err)
			r.Close()
		} else {
			a.redis = &r
			a.Engine.Publisher = r
		}
	}
	return a, nil
}

// ServerConfig is the HTTP handler configuration for this process.
func (a *App) ServerConfig() server.Config {
	cfg := server.Config{
		Engine:   a.Engine,
		BasePath: a.Settings.BasePath,
		Auth: server.AuthConfig{
			JWTSecret:              a.Settings.JWTSecret,
			AllowLegacyActorHeader: a.Settings.LegacyHeader,
			EnableDevLogin:         a.Settings.DevLogin,
			AdminActors:            a.Settings.Admins,
			Logger:                 a.Log,
		},
		RateLimit: server.RateLimit{RPS: a.Settings.RateRPS, Burst: a.Settings.RateBurst},
		Feed:      server.FeedConfig{Poll: a.Settings.FeedPoll},
		Logger:    a.Log,
	}
	if a.redis != nil {
		cfg.Feed.Subscriber = *a.redis
	}
	return cfg
}

func (a *App) Scheduler() *scheduler.Service {
	return scheduler.New(a.Engine, a.Settings.Schedules, a.Log)
}

func (a *App) Close() error {
	var errs []error
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	errs = append(errs, a.DB.Close())
	return errors.Join(errs...)
}
