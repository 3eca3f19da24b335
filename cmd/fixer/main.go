package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/Rancune/nightcity-hq/internal/app"
	"github.com/Rancune/nightcity-hq/internal/engine"
)

var v = app.NewViper()

var rootCmd = &cobra.Command{
	Use:   "fixer",
	Short: "Fixer economy backend",
	Long: `fixer runs the contract and economy simulation behind the Night City fixer game.
- Contracts: offers from faction fixers; accept one, staff it with operatives, and it resolves after its run time.
- TRP: in-game time derived from real time; offers lapse when their acceptance window runs out.
- Market: a daily rotating stock of consumables, implants and information.
- Factions: relation opens perks, threat rises with every job against them and decays over time.
- Event log: every change is recorded; view it with 'fixer log tail'.`,
	SilenceUsage: true,
}

func main() {
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func addPersistentFlags() {
	flags := rootCmd.PersistentFlags()
	flags.StringP("workspace", "w", ".", "workspace directory")
	flags.Bool("json", false, "output JSON")
	flags.String("actor-id", "local-user", "actor identifier")
	flags.String("db-dialect", "sqlite", "database dialect (sqlite, postgres)")
	flags.String("db-dsn", "", "database DSN (required for postgres)")
	flags.String("balance", "", "balance config file (default <workspace>/.fixer/fixer.yml)")
	flags.String("log-level", "info", "log level")
	for _, name := range []string{"workspace", "json", "actor-id", "db-dialect", "db-dsn", "balance", "log-level"} {
		_ = v.BindPFlag(name, flags.Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(
		serveCmd(),
		tickCmd(),
		profileCmd(),
		contractCmd(),
		marketCmd(),
		operativeCmd(),
		leadCmd(),
		factionCmd(),
		notificationsCmd(),
		sweepCmd(),
		logCmd(),
		configCmd(),
		tokenCmd(),
	)
}

// --- helpers ---

func loadSettings() (app.Settings, error) {
	return app.Load(v)
}

func withApp(ctx context.Context, fn func(context.Context, *app.App) error) error {
	s, err := loadSettings()
	if err != nil {
		return err
	}
	a, err := app.Open(ctx, s, s.Logger(os.Stderr))
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	return withApp(ctx, func(ctx context.Context, a *app.App) error {
		return fn(ctx, a.Engine)
	})
}

// withActor runs fn for the --actor-id actor, creating its profile if needed.
func withActor(ctx context.Context, fn func(context.Context, engine.Engine, string) error) error {
	return withEngine(ctx, func(ctx context.Context, e engine.Engine) error {
		actorID := v.GetString("actor-id")
		if _, err := e.EnsureActor(ctx, actorID); err != nil {
			return err
		}
		return fn(ctx, e, actorID)
	})
}

func jsonOutput() bool {
	return v.GetBool("json")
}

func printJSON(val any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(val)
}

// printJSONOr prints val as JSON with --json, otherwise calls render.
func printJSONOr(val any, render func(io.Writer)) error {
	if jsonOutput() {
		return printJSON(val)
	}
	render(os.Stdout)
	return nil
}

func newTable(w io.Writer, header table.Row) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleLight)
	tw.AppendHeader(header)
	return tw
}
