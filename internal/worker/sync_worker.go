package worker

import (
	"context"
	"fmt"
	"log/slog"

	"caixa/internal/amqp"
	"caixa/internal/core"
	"caixa/internal/sheets"
)

// Ledger is the read side of services.LedgerService the worker needs.
type Ledger interface {
	DaySnapshot(ctx context.Context, date core.Date) (core.DayTotals, error)
	ListDays(ctx context.Context, start, end core.Date) ([]core.LedgerDay, error)
}

// SyncWorker mirrors ledger days into the spreadsheet
type SyncWorker struct {
	ledger Ledger
	sheets sheets.DaySummaryWriter
}

func NewSyncWorker(ledger Ledger, sheets sheets.DaySummaryWriter) *SyncWorker {
	return &SyncWorker{
		ledger: ledger,
		sheets: sheets,
	}
}

// HandleDayUpdated processes a single day updated message from AMQP. The
// message only names the date; the row is rebuilt from the current store.
func (w *SyncWorker) HandleDayUpdated(ctx context.Context, msg *amqp.DayUpdatedMessage) error {
	date, err := msg.LedgerDate()
	if err != nil {
		return fmt.Errorf("parse message date %q: %w", msg.Date, err)
	}

	slog.InfoContext(ctx, "Processing day updated message",
		"date", msg.Date,
		"reason", msg.Reason)

	return w.syncDay(ctx, date)
}

// StartupSyncCheck re-exports every stored day in [start, end]. It recovers
// from messages lost while the worker was down.
func (w *SyncWorker) StartupSyncCheck(ctx context.Context, start, end core.Date) error {
	days, err := w.ledger.ListDays(ctx, start, end)
	if err != nil {
		return fmt.Errorf("list days for startup check: %w", err)
	}

	if len(days) == 0 {
		slog.InfoContext(ctx, "No days to export on startup")
		return nil
	}

	successCount := 0
	errorCount := 0

	for _, d := range days {
		if err := w.syncDay(ctx, d.Date); err != nil {
			slog.ErrorContext(ctx, "Failed to export day during startup",
				"date", d.Date.String(), "error", err)
			errorCount++
			continue
		}
		successCount++
	}

	slog.InfoContext(ctx, "Startup sync completed",
		"total", len(days),
		"synced", successCount,
		"errors", errorCount)

	if errorCount > 0 {
		return fmt.Errorf("startup sync: %d of %d days failed", errorCount, len(days))
	}
	return nil
}

func (w *SyncWorker) syncDay(ctx context.Context, date core.Date) error {
	snap, err := w.ledger.DaySnapshot(ctx, date)
	if err != nil {
		return fmt.Errorf("summarize %s: %w", date, err)
	}

	ref, err := w.sheets.UpsertDay(ctx, snap)
	if err != nil {
		return fmt.Errorf("upsert %s to sheets: %w", date, err)
	}

	slog.InfoContext(ctx, "Successfully synced day",
		"date", date.String(),
		"sheets_ref", ref,
		"total_revenue", snap.Totals.TotalRevenue.StringFixed(2),
		"closed", snap.IsClosed)

	return nil
}
