package commands

import (
	"errors"
	"fmt"

	"caixa/internal/backend"
	"caixa/internal/scheduler"
	"caixa/internal/services"
	"caixa/internal/storage"

	"github.com/spf13/cobra"
)

func newReconcileCommand(a *app) *cobra.Command {
	var rng rangeFlags

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Carry opening balances forward through a date range",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			start, end, err := rng.resolve(a.today())
			if err != nil {
				return err
			}
			ledger, err := a.ledger(cmd.Context())
			if err != nil {
				return err
			}
			days, err := ledger.ReconcileRange(cmd.Context(), start, end)
			if err != nil {
				return err
			}
			printf(cmd.OutOrStdout(), "Reconciled %d days from %s to %s\n", len(days), start, end)
			return nil
		},
	}

	rng.bind(cmd)
	return cmd
}

func newRefreshCacheCommand(a *app) *cobra.Command {
	var rng rangeFlags

	cmd := &cobra.Command{
		Use:   "refresh-cache",
		Short: "Rebuild the cached per-kind totals of stored days",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			start, end, err := rng.resolve(a.today())
			if err != nil {
				return err
			}
			ledger, err := a.ledger(cmd.Context())
			if err != nil {
				return err
			}
			n, err := ledger.RefreshRange(cmd.Context(), start, end)
			if err != nil {
				return err
			}
			printf(cmd.OutOrStdout(), "Refreshed %d days\n", n)
			return nil
		},
	}

	rng.bind(cmd)
	return cmd
}

func newAuditCommand(a *app) *cobra.Command {
	var rng rangeFlags

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Repair days whose cached totals drifted from their transactions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			start, end, err := rng.resolve(a.today())
			if err != nil {
				return err
			}
			ledger, err := a.ledger(cmd.Context())
			if err != nil {
				return err
			}
			auditor := services.NewCacheAuditor(ledger, a.cfg.AuditorConfig())
			repaired, err := auditor.Audit(cmd.Context(), start, end)
			if err != nil {
				return err
			}
			printf(cmd.OutOrStdout(), "Repaired %d days\n", repaired)
			return nil
		},
	}

	rng.bind(cmd)
	return cmd
}

func newRolloverCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "rollover",
		Short: "Open today now instead of waiting for the worker schedule",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ledger, err := a.ledger(cmd.Context())
			if err != nil {
				return err
			}
			sched := scheduler.New(cmd.Context(), a.loc)
			job := scheduler.RolloverJob{
				Processor: services.NewRolloverProcessor(ledger, a.loc),
				Now:       a.now,
			}
			if err := sched.RunNow(job); err != nil {
				return err
			}
			printf(cmd.OutOrStdout(), "Rollover complete for %s\n", a.today())
			return nil
		},
	}
}

func newSchemaCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the applied SQLite migration version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if a.backendCfg.Type != backend.SQLiteBackend {
				return errors.New("schema requires the sqlite backend")
			}
			// opening the backend applies pending migrations
			if _, err := a.ledger(cmd.Context()); err != nil {
				return err
			}
			version, dirty, err := storage.SchemaVersion(storage.DSN(a.backendCfg.SQLiteDBPath))
			if err != nil {
				return fmt.Errorf("schema version: %w", err)
			}
			printf(cmd.OutOrStdout(), "version=%d dirty=%t\n", version, dirty)
			return nil
		},
	}
}
