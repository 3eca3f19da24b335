package app

import (
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/Rancune/nightcity-hq/internal/config"
	"github.com/Rancune/nightcity-hq/internal/db"
	"github.com/Rancune/nightcity-hq/internal/scheduler"
)

const EnvPrefix = "FIXER"

// Settings are the process-level knobs. Game balance lives in config.Config.
type Settings struct {
	Workspace   string
	Dialect     db.Dialect
	DSN         string
	BalancePath string

	Addr          string
	BasePath      string
	JWTSecret     string
	LegacyHeader  bool
	DevLogin      bool
	Admins        []string
	RateRPS       float64
	RateBurst     int
	FeedPoll      time.Duration
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	NarrativeURL     string
	NarrativeToken   string
	NarrativeTimeout time.Duration

	Schedules scheduler.Schedules

	LogLevel  string
	LogFormat string
}

// NewViper returns a viper instance reading FIXER_* environment variables,
// with "-" and "." in keys mapped to "_".
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
	SetDefaults(v)
	return v
}

func SetDefaults(v *viper.Viper) {
	v.SetDefault("workspace", ".")
	v.SetDefault("db-dialect", string(db.SQLite))
	v.SetDefault("db-dsn", "")
	v.SetDefault("balance", "")
	v.SetDefault("addr", "127.0.0.1:8080")
	v.SetDefault("base-path", "/v0")
	v.SetDefault("jwt-secret", "")
	v.SetDefault("legacy-actor-header", false)
	v.SetDefault("dev-login", false)
	v.SetDefault("admins", []string{})
	v.SetDefault("rate-rps", 20.0)
	v.SetDefault("rate-burst", 40)
	v.SetDefault("feed-poll", "2s")
	v.SetDefault("redis-addr", "")
	v.SetDefault("redis-password", "")
	v.SetDefault("redis-db", 0)
	v.SetDefault("narrative-url", "")
	v.SetDefault("narrative-token", "")
	v.SetDefault("narrative-timeout", "5s")
	v.SetDefault("schedule.rotate", scheduler.DefaultRotate)
	v.SetDefault("schedule.decay", scheduler.DefaultDecay)
	v.SetDefault("schedule.resolve", scheduler.DefaultResolve)
	v.SetDefault("schedule.spawn", scheduler.DefaultSpawn)
	v.SetDefault("log-level", "info")
	v.SetDefault("log-format", "text")
}

func Load(v *viper.Viper) (Settings, error) {
	dialect, err := db.ParseDialect(v.GetString("db-dialect"))
	if err != nil {
		return Settings{}, err
	}
	s := Settings{
		Workspace:        v.GetString("workspace"),
		Dialect:          dialect,
		DSN:              v.GetString("db-dsn"),
		BalancePath:      v.GetString("balance"),
		Addr:             v.GetString("addr"),
		BasePath:         v.GetString("base-path"),
		JWTSecret:        v.GetString("jwt-secret"),
		LegacyHeader:     v.GetBool("legacy-actor-header"),
		DevLogin:         v.GetBool("dev-login"),
		Admins:           splitList(v.GetStringSlice("admins")),
		RateRPS:          v.GetFloat64("rate-rps"),
		RateBurst:        v.GetInt("rate-burst"),
		FeedPoll:         v.GetDuration("feed-poll"),
		RedisAddr:        v.GetString("redis-addr"),
		RedisPassword:    v.GetString("redis-password"),
		RedisDB:          v.GetInt("redis-db"),
		NarrativeURL:     v.GetString("narrative-url"),
		NarrativeToken:   v.GetString("narrative-token"),
		NarrativeTimeout: v.GetDuration("narrative-timeout"),
		LogLevel:         v.GetString("log-level"),
		LogFormat:        v.GetString("log-format"),
	}
	s.Schedules = scheduler.Schedules{
		Rotate:  v.GetString("schedule.rotate"),
		Decay:   v.GetString("schedule.decay"),
		Resolve: v.GetString("schedule.resolve"),
		Spawn:   v.GetString("schedule.spawn"),
	}
	if s.Dialect == db.Postgres && s.DSN == "" {
		return s, fmt.Errorf("db-dsn is required for the postgres dialect")
	}
	if s.RateRPS < 0 {
		return s, fmt.Errorf("rate-rps must be >= 0")
	}
	if s.DevLogin && s.JWTSecret == "" {
		return s, fmt.Errorf("dev-login needs jwt-secret")
	}
	return s, nil
}

// BalanceFile is the balance config path; it defaults to fixer.yml inside the
// workspace state directory.
func (s Settings) BalanceFile() string {
	if s.BalancePath != "" {
		return s.BalancePath
	}
	return config.Path(filepath.Join(s.workspace(), ".fixer"))
}

func (s Settings) workspace() string {
	if s.Workspace == "" {
		return "."
	}
	return s.Workspace
}

// Logger builds the process logger: JSON for servers, text for the CLI.
func (s Settings) Logger(w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(s.LogFormat, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// splitList accepts both repeated values and a single comma separated env value.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
