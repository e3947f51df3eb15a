// Package commands implements caixactl, the maintenance command line for
// the ledger: inspecting days, running reports, repairing cached totals and
// exporting to the spreadsheet.
package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"caixa/internal/backend"
	"caixa/internal/cli"
	"caixa/internal/config"
	"caixa/internal/core"
	"caixa/internal/services"

	"github.com/spf13/cobra"
)

// app carries the state shared by every subcommand. The ledger is opened
// lazily so commands that do not touch the store (sheets-auth) work without one.
type app struct {
	backendType string
	dbPath      string
	dataDir     string
	logLevel    string

	cfg        *config.Config
	backendCfg backend.Config
	loc        *time.Location
	logger     *slog.Logger
	factory    backend.Factory

	res *backend.BackendResult
	now func() time.Time
}

// NewRootCommand creates the root CLI command with all subcommands registered.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&app{now: time.Now})
}

func newRootCommand(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "caixactl",
		Short: "Maintenance tool for the daily cash register ledger",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			return a.close()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&a.backendType, "backend", "", "data backend: sqlite or memory (default from DATA_BACKEND)")
	flags.StringVar(&a.dbPath, "db", "", "SQLite database path (default from SQLITE_DB_PATH)")
	flags.StringVar(&a.dataDir, "data-dir", "", "seed directory of the memory backend (default from DATA_DIR)")
	flags.StringVar(&a.logLevel, "log-level", "warn", "log level written to stderr")

	rootCmd.AddCommand(
		newDayCommand(a),
		newAddCommand(a),
		newBalanceCommand(a),
		newCloseCommand(a),
		newReportCommand(a),
		newReconcileCommand(a),
		newRefreshCacheCommand(a),
		newAuditCommand(a),
		newRolloverCommand(a),
		newCategoriesCommand(a),
		newExportCommand(a),
		newSchemaCommand(a),
		newSheetsAuthCommand(a),
	)

	return rootCmd
}

func (a *app) setup(cmd *cobra.Command) error {
	cli.LoadEnvFile()
	a.logger = cli.SetupLoggerTo(cmd.ErrOrStderr(), a.logLevel, os.Getenv("LOG_FORMAT"))

	cfg := config.Load()
	if a.backendType != "" {
		cfg.DataBackend = a.backendType
	}
	if a.dbPath != "" {
		cfg.SQLiteDBPath = a.dbPath
	}
	if a.dataDir != "" {
		cfg.DataDir = a.dataDir
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	loc, err := cfg.Location()
	if err != nil {
		return fmt.Errorf("timezone: %w", err)
	}
	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return err
	}

	a.cfg = cfg
	a.loc = loc
	a.backendCfg = backendCfg
	a.factory = backend.NewFactory(a.logger)
	return nil
}

// ledger opens the configured backend on first use.
func (a *app) ledger(ctx context.Context) (*services.LedgerService, error) {
	if a.res != nil {
		return a.res.Ledger, nil
	}
	res, err := a.factory.CreateBackend(ctx, a.backendCfg)
	if err != nil {
		return nil, err
	}
	a.res = res
	return res.Ledger, nil
}

func (a *app) close() error {
	if a.res == nil {
		return nil
	}
	err := a.res.Cleanup()
	a.res = nil
	return err
}

func (a *app) today() core.Date {
	return core.DateOf(a.now().In(a.loc))
}

// dateArg parses an optional positional date, defaulting to today.
func (a *app) dateArg(args []string) (core.Date, error) {
	if len(args) == 0 {
		return a.today(), nil
	}
	d, err := core.ParseDate(args[0])
	if err != nil {
		return core.Date{}, fmt.Errorf("invalid date %q, use YYYY-MM-DD", args[0])
	}
	return d, nil
}

// rangeFlags binds --from and --to. Empty values select the first of the
// current month through today.
type rangeFlags struct {
	from string
	to   string
}

func (r *rangeFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&r.from, "from", "", "first day, YYYY-MM-DD (default: first of the month)")
	cmd.Flags().StringVar(&r.to, "to", "", "last day, YYYY-MM-DD (default: today)")
}

func (r *rangeFlags) resolve(today core.Date) (core.Date, core.Date, error) {
	end := today
	if r.to != "" {
		d, err := core.ParseDate(r.to)
		if err != nil {
			return core.Date{}, core.Date{}, fmt.Errorf("invalid --to %q, use YYYY-MM-DD", r.to)
		}
		end = d
	}
	start := core.NewDate(end.Year(), int(end.Month()), 1)
	if r.from != "" {
		d, err := core.ParseDate(r.from)
		if err != nil {
			return core.Date{}, core.Date{}, fmt.Errorf("invalid --from %q, use YYYY-MM-DD", r.from)
		}
		start = d
	}
	if end.Before(start) {
		return core.Date{}, core.Date{}, fmt.Errorf("%s..%s: %w", start, end, core.ErrInvalidRange)
	}
	return start, end, nil
}

func printf(w io.Writer, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}
