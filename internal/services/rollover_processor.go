package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"caixa/internal/amqp"
	"caixa/internal/core"
)

// RolloverProcessor opens the new business day: it makes sure today exists
// with its opening balance carried from the last operating day, and tells
// consumers that yesterday is final.
type RolloverProcessor struct {
	ledger   *LedgerService
	location *time.Location
}

// NewRolloverProcessor creates a rollover processor that resolves "today" in loc.
func NewRolloverProcessor(ledger *LedgerService, loc *time.Location) *RolloverProcessor {
	if loc == nil {
		loc = time.Local
	}
	return &RolloverProcessor{ledger: ledger, location: loc}
}

// Run performs the rollover for the day containing now and returns the
// reconciled day.
func (p *RolloverProcessor) Run(ctx context.Context, now time.Time) (core.LedgerDay, error) {
	if p.ledger == nil {
		return core.LedgerDay{}, fmt.Errorf("processor not properly initialized")
	}

	today := core.DateOf(now.In(p.location))
	day, err := p.ledger.ReconcileOpeningBalance(ctx, today)
	if err != nil {
		return core.LedgerDay{}, fmt.Errorf("rollover %s: %w", today, err)
	}

	yesterday := p.ledger.Sequencer().Previous(today)
	if _, err := p.ledger.RefreshCache(ctx, yesterday); err != nil {
		slog.ErrorContext(ctx, "Failed to refresh cache of previous day",
			"date", yesterday.String(),
			"error", err)
	}
	p.ledger.publish(ctx, yesterday, amqp.ReasonRollover)

	slog.InfoContext(ctx, "Rollover complete",
		"date", today.String(),
		"opening", day.OpeningBalance.StringFixed(2),
		"previous", yesterday.String(),
		"non_operating", p.ledger.IsNonOperating(day))

	return day, nil
}
