package sheets

import (
	"context"

	"caixa/internal/core"
)

// Ports for outbound adapters.
type (
	// DaySummaryWriter keeps one spreadsheet row per ledger day.
	DaySummaryWriter interface {
		// UpsertDay writes the resolved totals of a day, replacing the row of
		// the same date when one exists.
		UpsertDay(ctx context.Context, d core.DayTotals) (rowRef string, err error)
	}

	// DaySummaryReader reads a previously exported day back.
	DaySummaryReader interface {
		ReadDay(ctx context.Context, date core.Date) (core.DayTotals, bool, error)
	}
)
