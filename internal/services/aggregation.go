package services

import (
	"context"
	"fmt"
	"log/slog"

	"caixa/internal/core"
)

// DefaultReportMaxDays bounds the size of a range report.
const DefaultReportMaxDays = 366

// Aggregator resolves day and range totals. Day totals come from the store's
// per-kind sums; range totals come from the cached per-day sums that
// RefreshCache keeps current after every transaction write.
type Aggregator struct {
	store      LedgerStore
	continuity *Continuity
	maxDays    int
}

func NewAggregator(store LedgerStore, continuity *Continuity, maxDays int) *Aggregator {
	if maxDays <= 0 {
		maxDays = DefaultReportMaxDays
	}
	return &Aggregator{store: store, continuity: continuity, maxDays: maxDays}
}

// SummarizeDay reconciles date and resolves its totals from live
// transaction sums.
func (a *Aggregator) SummarizeDay(ctx context.Context, date core.Date) (core.Totals, error) {
	snap, err := a.DaySnapshot(ctx, date)
	if err != nil {
		return core.Totals{}, err
	}
	return snap.Totals, nil
}

// DaySnapshot is SummarizeDay plus the day's closed flag, the shape exported
// to the spreadsheet.
func (a *Aggregator) DaySnapshot(ctx context.Context, date core.Date) (core.DayTotals, error) {
	day, err := a.continuity.ReconcileOpeningBalance(ctx, date)
	if err != nil {
		return core.DayTotals{}, err
	}
	sums, err := a.store.SumByKind(ctx, date)
	if err != nil {
		return core.DayTotals{}, fmt.Errorf("summarize %s: %w", date, err)
	}
	totals := core.ComputeTotals(day.OpeningBalance, day.ClosingBalance, sums)
	warnIfClamped(ctx, date, totals)
	return core.DayTotals{Date: date, IsClosed: day.IsClosed, Totals: totals}, nil
}

// RefreshCache recomputes the full per-kind sums of date and stores them in
// the day's cache fields.
func (a *Aggregator) RefreshCache(ctx context.Context, date core.Date) (core.LedgerDay, error) {
	if _, err := a.continuity.EnsureDay(ctx, date); err != nil {
		return core.LedgerDay{}, err
	}
	sums, err := a.store.SumByKind(ctx, date)
	if err != nil {
		return core.LedgerDay{}, fmt.Errorf("refresh cache of %s: %w", date, err)
	}
	if err := a.store.UpdateCachedTotals(ctx, date, sums); err != nil {
		return core.LedgerDay{}, fmt.Errorf("refresh cache of %s: %w", date, err)
	}
	slog.DebugContext(ctx, "Day cache refreshed",
		"date", date.String(),
		"card", sums.Card.StringFixed(2),
		"inflow", sums.Inflow.StringFixed(2),
		"outflow", sums.Outflow.StringFixed(2))
	return a.store.GetDay(ctx, date)
}

// SummarizeRange ensures and reconciles every day in [start, end] and sums
// their resolved totals. Each day is clamped before it is added.
func (a *Aggregator) SummarizeRange(ctx context.Context, start, end core.Date) (core.RangeTotals, error) {
	if end.Before(start) {
		return core.RangeTotals{}, fmt.Errorf("report %s..%s: start after end: %w", start, end, core.ErrInvalidRange)
	}
	if n := core.DaysBetween(start, end); n > a.maxDays {
		return core.RangeTotals{}, fmt.Errorf("report %s..%s: %d days exceeds limit of %d: %w",
			start, end, n, a.maxDays, core.ErrInvalidRange)
	}

	days, err := a.continuity.ReconcileRange(ctx, start, end)
	if err != nil {
		return core.RangeTotals{}, err
	}

	report := core.NewRangeTotals(start, end)
	for _, day := range days {
		totals := core.SummarizeCached(day)
		warnIfClamped(ctx, day.Date, totals)
		report.Add(totals)
		report.PerDay = append(report.PerDay, core.DayTotals{Date: day.Date, IsClosed: day.IsClosed, Totals: totals})
	}

	txs, err := a.store.ListTransactionsInRange(ctx, start, end)
	if err != nil {
		return core.RangeTotals{}, fmt.Errorf("report %s..%s: %w", start, end, err)
	}
	cats, err := a.store.ListCategories(ctx, "")
	if err != nil {
		return core.RangeTotals{}, fmt.Errorf("report %s..%s: %w", start, end, err)
	}
	names := make(map[int64]string, len(cats))
	for _, c := range cats {
		names[c.ID] = c.Name
	}
	report.ByCategory = core.GroupByCategory(txs, names)

	slog.InfoContext(ctx, "Range report computed",
		"start", start.String(),
		"end", end.String(),
		"days", report.Days,
		"total_revenue", report.TotalRevenue.StringFixed(2),
		"clamped_days", report.ClampedDays)

	return report, nil
}

func warnIfClamped(ctx context.Context, date core.Date, t core.Totals) {
	if !t.Clamped {
		return
	}
	slog.WarnContext(ctx, "Negative implied cash sale clamped to zero",
		"date", date.String(),
		"discrepancy", t.Discrepancy.StringFixed(2),
		"opening", t.Opening.StringFixed(2),
		"closing", t.Closing.StringFixed(2),
		"inflows", t.Inflows.StringFixed(2),
		"outflows", t.Outflows.StringFixed(2))
}
