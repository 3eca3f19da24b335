package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/Rancune/nightcity-hq/internal/app"
	"github.com/Rancune/nightcity-hq/internal/archive"
	"github.com/Rancune/nightcity-hq/internal/config"
	"github.com/Rancune/nightcity-hq/internal/domain"
	"github.com/Rancune/nightcity-hq/internal/engine"
	"github.com/Rancune/nightcity-hq/internal/repo"
	"github.com/Rancune/nightcity-hq/internal/scheduler"
	"github.com/Rancune/nightcity-hq/internal/server"
)

func serveCmd() *cobra.Command {
	var noScheduler bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and the sweep scheduler",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSettings()
			if err != nil {
				return err
			}
			if s.JWTSecret == "" && !s.LegacyHeader {
				return fmt.Errorf("FIXER_JWT_SECRET is required unless the legacy actor header is enabled")
			}
			s.LogFormat = "json"
			log := s.Logger(os.Stderr)
			ctx := cmd.Context()
			a, err := app.Open(ctx, s, log)
			if err != nil {
				return err
			}
			defer a.Close()

			if !noScheduler {
				sched := a.Scheduler()
				if err := sched.Start(ctx); err != nil {
					return err
				}
				defer sched.Stop()
			}
			handler, err := server.New(a.ServerConfig())
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: s.Addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(shutdownCtx)
			}()
			log.Info("serving fixer api", "addr", s.Addr, "base_path", s.BasePath, "openapi", s.BasePath+"/openapi.json", "docs", "/docs")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	flags := cmd.Flags()
	flags.String("addr", "127.0.0.1:8080", "listen address")
	flags.String("base-path", "/v0", "API base path")
	flags.Bool("legacy-actor-header", false, "accept X-Actor-Id without a token (development only)")
	flags.Bool("dev-login", false, "expose POST /auth/dev/login")
	flags.StringSlice("admins", nil, "actor ids granted the admin role")
	flags.String("redis-addr", "", "redis address for live notification fan-out")
	flags.BoolVar(&noScheduler, "no-scheduler", false, "do not run the sweep scheduler in this process")
	for _, name := range []string{"addr", "base-path", "legacy-actor-header", "dev-login", "admins", "redis-addr"} {
		_ = v.BindPFlag(name, flags.Lookup(name))
	}
	return cmd
}

func sweepCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:       "sweep [all|rotate|decay|resolve|spawn]",
		Short:     "Run scheduled sweeps once",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{"all", "rotate", "decay", "resolve", "spawn"},
		RunE: func(cmd *cobra.Command, args []string) error {
			which := "all"
			if len(args) == 1 {
				which = args[0]
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				e := a.Engine
				switch which {
				case "all":
					return scheduler.New(e, a.Settings.Schedules, a.Log).RunOnce(ctx)
				case "rotate":
					if force {
						if err := e.PerformRotation(ctx); err != nil {
							return err
						}
						fmt.Println("market rotated")
						return nil
					}
					rotated, err := e.RotateMarketIfDue(ctx)
					if err != nil {
						return err
					}
					fmt.Printf("rotated: %t\n", rotated)
				case "decay":
					res, err := e.DecayThreatSweep(ctx)
					if err != nil {
						return err
					}
					fmt.Printf("checked %d standings, decremented %d\n", res.Checked, res.Decremented)
				case "resolve":
					n, err := e.ResolveDueContracts(ctx)
					if err != nil {
						return err
					}
					fmt.Printf("resolved %d contracts\n", n)
				case "spawn":
					n, err := e.SpawnPublicContracts(ctx)
					if err != nil {
						return err
					}
					fmt.Printf("spawned %d contracts\n", n)
				default:
					return fmt.Errorf("unknown sweep %q", which)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "rotate the market even if not due")
	return cmd
}

func logCmd() *cobra.Command {
	l := &cobra.Command{Use: "log", Short: "Event log"}
	l.AddCommand(logTailCmd(), logExportCmd(), logReadCmd())
	return l
}

func logTailCmd() *cobra.Command {
	var f repo.EventFilter
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				events, err := e.ListEvents(ctx, f)
				if err != nil {
					return err
				}
				return printJSONOr(events, func(w io.Writer) { renderEvents(w, events) })
			})
		},
	}
	cmd.Flags().IntVar(&f.Limit, "n", 20, "number of events")
	cmd.Flags().Int64Var(&f.AfterID, "after", 0, "only events with a greater id")
	cmd.Flags().StringVar(&f.Type, "type", "", "event type filter")
	cmd.Flags().StringVar(&f.ActorID, "actor", "", "actor filter")
	cmd.Flags().StringVar(&f.EntityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&f.EntityID, "entity-id", "", "entity id")
	return cmd
}

func logExportCmd() *cobra.Command {
	var f repo.EventFilter
	var out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export events as zstd-compressed JSON lines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if out == "" {
				return fmt.Errorf("--out is required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				file, err := os.Create(out)
				if err != nil {
					return err
				}
				n, last, err := archive.Exporter{Repo: e.Repo}.Export(ctx, file, f)
				if cerr := file.Close(); err == nil {
					err = cerr
				}
				if err != nil {
					return err
				}
				fmt.Printf("exported %d events to %s (resume with --after %d)\n", n, out, last)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (.jsonl.zst)")
	cmd.Flags().Int64Var(&f.AfterID, "after", 0, "only events with a greater id")
	cmd.Flags().StringVar(&f.Type, "type", "", "event type filter")
	cmd.Flags().StringVar(&f.ActorID, "actor", "", "actor filter")
	return cmd
}

func logReadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "read <file>",
		Short: "Print an exported archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer file.Close()
			events, err := archive.Read(file)
			if err != nil {
				return err
			}
			return printJSONOr(events, func(w io.Writer) { renderEvents(w, events) })
		},
	}
}

func renderEvents(w io.Writer, events []domain.Event) {
	tw := newTable(w, table.Row{"ID", "TS", "Type", "Actor", "Entity"})
	for _, ev := range events {
		entity := ev.EntityKind
		if ev.EntityID != nil {
			entity += " " + *ev.EntityID
		}
		tw.AppendRow(table.Row{ev.ID, ev.TS, ev.Type, ev.ActorID, entity})
	}
	tw.Render()
}

func configCmd() *cobra.Command {
	c := &cobra.Command{Use: "config", Short: "Balance configuration"}
	c.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Print the effective balance config",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				s, err := loadSettings()
				if err != nil {
					return err
				}
				cfg, err := config.LoadOptional(s.BalanceFile())
				if err != nil {
					return err
				}
				if jsonOutput() {
					return printJSON(cfg)
				}
				return cfg.WriteYAML(os.Stdout)
			},
		},
		&cobra.Command{
			Use:   "validate [file]",
			Short: "Validate a balance config file",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				path := ""
				if len(args) == 1 {
					path = args[0]
				} else {
					s, err := loadSettings()
					if err != nil {
						return err
					}
					path = s.BalanceFile()
				}
				if _, err := config.FromFile(path); err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				fmt.Printf("%s: ok\n", path)
				return nil
			},
		},
		&cobra.Command{
			Use:   "init",
			Short: "Write the default balance config into the workspace",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				s, err := loadSettings()
				if err != nil {
					return err
				}
				path := s.BalanceFile()
				if _, err := os.Stat(path); err == nil {
					return fmt.Errorf("%s already exists", path)
				}
				if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
					return err
				}
				if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
					return err
				}
				fmt.Printf("wrote %s\n", path)
				return nil
			},
		},
	)
	return c
}

func tokenCmd() *cobra.Command {
	var roles string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token <actor-id>",
		Short: "Mint a bearer token signed with FIXER_JWT_SECRET",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSettings()
			if err != nil {
				return err
			}
			var roleList []string
			for _, r := range strings.Split(roles, ",") {
				if r = strings.TrimSpace(r); r != "" {
					roleList = append(roleList, r)
				}
			}
			token, err := server.SignToken(s.JWTSecret, args[0], roleList, ttl)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().StringVar(&roles, "roles", "", "comma separated roles (e.g. admin)")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}
