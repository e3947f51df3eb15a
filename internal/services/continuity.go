package services

import (
	"context"
	"fmt"
	"log/slog"

	"caixa/internal/core"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"
)

// DefaultMaxLookback bounds the backward walk over consecutive closed days.
const DefaultMaxLookback = 62

// Continuity carries the physical cash balance from one business day to the
// next. It only ever walks backwards iteratively, never recursively, and
// writes a field only when its value actually changes.
type Continuity struct {
	store       DayStore
	seq         Sequencer
	maxLookback int
	group       singleflight.Group
}

func NewContinuity(store DayStore, seq Sequencer, maxLookback int) *Continuity {
	if seq == nil {
		seq = CalendarSequencer{}
	}
	if maxLookback <= 0 {
		maxLookback = DefaultMaxLookback
	}
	return &Continuity{store: store, seq: seq, maxLookback: maxLookback}
}

// Sequencer returns the day-sequencing policy in use.
func (c *Continuity) Sequencer() Sequencer {
	return c.seq
}

// EnsureDay returns the day for date, creating an empty one when absent.
func (c *Continuity) EnsureDay(ctx context.Context, date core.Date) (core.LedgerDay, error) {
	day, created, err := c.store.GetOrCreateDay(ctx, date)
	if err != nil {
		return core.LedgerDay{}, fmt.Errorf("ensure day %s: %w", date, err)
	}
	if created {
		slog.InfoContext(ctx, "Ledger day opened", "date", date.String())
	}
	return day, nil
}

// IsNonOperating reports whether balances pass through day unchanged.
func (c *Continuity) IsNonOperating(day core.LedgerDay) bool {
	return day.IsClosed || c.seq.IsNonOperating(day.Date)
}

// ReconcileOpeningBalance makes the opening balance of date equal to the
// closing balance of its effective predecessor and returns the updated day.
//
// Consecutive non-operating predecessors are walked back to the first
// operating anchor, then walked forward so each of them passes the anchor's
// closing balance through. A non-operating date has its closing forced to its
// opening. Calling it again on an unchanged chain performs no writes.
func (c *Continuity) ReconcileOpeningBalance(ctx context.Context, date core.Date) (core.LedgerDay, error) {
	v, err, shared := c.group.Do(date.String(), func() (any, error) {
		return c.reconcile(ctx, date)
	})
	if err != nil {
		return core.LedgerDay{}, err
	}
	if shared {
		slog.DebugContext(ctx, "Reconcile shared with concurrent caller", "date", date.String())
	}
	return v.(core.LedgerDay), nil
}

func (c *Continuity) reconcile(ctx context.Context, date core.Date) (core.LedgerDay, error) {
	day, err := c.EnsureDay(ctx, date)
	if err != nil {
		return core.LedgerDay{}, err
	}

	anchor, err := c.EnsureDay(ctx, c.seq.Previous(date))
	if err != nil {
		return core.LedgerDay{}, err
	}

	// newest first
	var closedRun []core.LedgerDay
	for c.IsNonOperating(anchor) {
		if len(closedRun) >= c.maxLookback {
			slog.WarnContext(ctx, "Lookback limit reached, using non-operating day as anchor",
				"date", date.String(),
				"anchor", anchor.Date.String(),
				"max_lookback", c.maxLookback)
			break
		}
		closedRun = append(closedRun, anchor)
		anchor, err = c.EnsureDay(ctx, c.seq.Previous(anchor.Date))
		if err != nil {
			return core.LedgerDay{}, err
		}
	}

	carry := anchor.ClosingBalance
	for i := len(closedRun) - 1; i >= 0; i-- {
		passed, err := c.passThrough(ctx, closedRun[i], carry)
		if err != nil {
			return core.LedgerDay{}, err
		}
		carry = passed.ClosingBalance
	}

	if !day.OpeningBalance.Equal(carry) {
		if err := c.store.SetOpeningBalance(ctx, date, carry); err != nil {
			return core.LedgerDay{}, fmt.Errorf("carry opening balance into %s: %w", date, err)
		}
		slog.InfoContext(ctx, "Opening balance carried forward",
			"date", date.String(),
			"from", day.OpeningBalance.StringFixed(2),
			"to", carry.StringFixed(2))
		day.OpeningBalance = carry
	}

	if c.IsNonOperating(day) {
		return c.forceClosing(ctx, day)
	}
	return day, nil
}

// passThrough sets a non-operating day's opening and closing to carry.
func (c *Continuity) passThrough(ctx context.Context, day core.LedgerDay, carry decimal.Decimal) (core.LedgerDay, error) {
	if !day.OpeningBalance.Equal(carry) {
		if err := c.store.SetOpeningBalance(ctx, day.Date, carry); err != nil {
			return core.LedgerDay{}, fmt.Errorf("pass balance through %s: %w", day.Date, err)
		}
		day.OpeningBalance = carry
	}
	return c.forceClosing(ctx, day)
}

// forceClosing makes a non-operating day's closing equal its opening.
func (c *Continuity) forceClosing(ctx context.Context, day core.LedgerDay) (core.LedgerDay, error) {
	if day.ClosingBalance.Equal(day.OpeningBalance) {
		return day, nil
	}
	if err := c.store.SetClosingBalance(ctx, day.Date, day.OpeningBalance); err != nil {
		return core.LedgerDay{}, fmt.Errorf("force closing balance of %s: %w", day.Date, err)
	}
	slog.InfoContext(ctx, "Closing balance forced on non-operating day",
		"date", day.Date.String(),
		"closing", day.OpeningBalance.StringFixed(2))
	day.ClosingBalance = day.OpeningBalance
	return day, nil
}

// ReconcileRange reconciles every calendar day in [start, end] in ascending
// order, so each day sees its predecessor's already reconciled closing.
func (c *Continuity) ReconcileRange(ctx context.Context, start, end core.Date) ([]core.LedgerDay, error) {
	if end.Before(start) {
		return nil, fmt.Errorf("reconcile %s..%s: %w", start, end, core.ErrInvalidRange)
	}
	days := make([]core.LedgerDay, 0, core.DaysBetween(start, end))
	for d := start; !d.After(end); d = d.AddDays(1) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		day, err := c.ReconcileOpeningBalance(ctx, d)
		if err != nil {
			return nil, err
		}
		days = append(days, day)
	}
	return days, nil
}
