package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"caixa/internal/amqp"
	"caixa/internal/core"

	"github.com/shopspring/decimal"
)

// DayPublisher announces ledger day changes to other processes.
// *amqp.Client implements it.
type DayPublisher interface {
	PublishDayUpdated(ctx context.Context, date core.Date, reason string) error
}

// Options tunes the ledger engines. Zero values select the defaults.
type Options struct {
	Sequencer     Sequencer
	MaxLookback   int
	ReportMaxDays int
}

// LedgerService orchestrates ledger operations across the store and AMQP.
// Every transaction write refreshes the cached totals of the affected days
// before it returns; the AMQP publish that follows is best effort.
type LedgerService struct {
	*Continuity
	*Aggregator

	store     LedgerStore
	publisher DayPublisher
}

// DayView is everything the day page needs.
type DayView struct {
	Day          core.LedgerDay
	Totals       core.Totals
	Transactions []core.Transaction
	Categories   []core.Category
	Previous     core.Date
	Next         core.Date
	NonOperating bool
}

func NewLedgerService(store LedgerStore, publisher DayPublisher, opts Options) *LedgerService {
	continuity := NewContinuity(store, opts.Sequencer, opts.MaxLookback)
	return &LedgerService{
		Continuity: continuity,
		Aggregator: NewAggregator(store, continuity, opts.ReportMaxDays),
		store:      store,
		publisher:  publisher,
	}
}

// Store exposes the underlying store, e.g. for readiness checks.
func (s *LedgerService) Store() LedgerStore {
	return s.store
}

// RecordTransaction validates and saves a transaction, then refreshes its day.
func (s *LedgerService) RecordTransaction(ctx context.Context, tx core.Transaction) (core.Transaction, error) {
	tx = normalizeTransaction(tx)
	if err := tx.Validate(); err != nil {
		return core.Transaction{}, err
	}
	if err := s.checkCategory(ctx, tx); err != nil {
		return core.Transaction{}, err
	}
	if _, err := s.EnsureDay(ctx, tx.Date); err != nil {
		return core.Transaction{}, err
	}

	saved, err := s.store.CreateTransaction(ctx, tx)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("save transaction: %w", err)
	}
	if _, err := s.RefreshCache(ctx, saved.Date); err != nil {
		return saved, err
	}

	s.publish(ctx, saved.Date, amqp.ReasonTransaction)
	return saved, nil
}

// UpdateTransaction rewrites a transaction. When it moves to another date
// both days are refreshed.
func (s *LedgerService) UpdateTransaction(ctx context.Context, tx core.Transaction) (core.Transaction, error) {
	old, err := s.store.GetTransaction(ctx, tx.ID)
	if err != nil {
		return core.Transaction{}, err
	}

	tx = normalizeTransaction(tx)
	if err := tx.Validate(); err != nil {
		return core.Transaction{}, err
	}
	if err := s.checkCategory(ctx, tx); err != nil {
		return core.Transaction{}, err
	}
	if err := s.store.UpdateTransaction(ctx, tx); err != nil {
		return core.Transaction{}, fmt.Errorf("update transaction: %w", err)
	}

	for _, d := range affectedDates(old.Date, tx.Date) {
		if _, err := s.RefreshCache(ctx, d); err != nil {
			return core.Transaction{}, err
		}
		s.publish(ctx, d, amqp.ReasonTransaction)
	}
	return s.store.GetTransaction(ctx, tx.ID)
}

// DeleteTransaction removes a transaction and returns it, so callers know
// which day it belonged to.
func (s *LedgerService) DeleteTransaction(ctx context.Context, id int64) (core.Transaction, error) {
	tx, err := s.store.GetTransaction(ctx, id)
	if err != nil {
		return core.Transaction{}, err
	}
	if err := s.store.DeleteTransaction(ctx, id); err != nil {
		return core.Transaction{}, fmt.Errorf("delete transaction: %w", err)
	}
	if _, err := s.RefreshCache(ctx, tx.Date); err != nil {
		return tx, err
	}

	s.publish(ctx, tx.Date, amqp.ReasonTransaction)
	return tx, nil
}

// GetTransaction returns a single transaction.
func (s *LedgerService) GetTransaction(ctx context.Context, id int64) (core.Transaction, error) {
	return s.store.GetTransaction(ctx, id)
}

// SetClosingBalance stores the physically counted cash of date. The store
// accepts any value; rejecting negative input is the caller's concern. On a
// non-operating day the count is overridden by the pass-through rule.
func (s *LedgerService) SetClosingBalance(ctx context.Context, date core.Date, amount decimal.Decimal) (core.LedgerDay, error) {
	day, err := s.EnsureDay(ctx, date)
	if err != nil {
		return core.LedgerDay{}, err
	}
	amount = core.RoundAmount(amount)
	if !day.ClosingBalance.Equal(amount) {
		if err := s.store.SetClosingBalance(ctx, date, amount); err != nil {
			return core.LedgerDay{}, fmt.Errorf("set closing balance: %w", err)
		}
		slog.InfoContext(ctx, "Closing balance recorded",
			"date", date.String(),
			"closing", amount.StringFixed(2))
	}

	day, err = s.ReconcileOpeningBalance(ctx, date)
	if err != nil {
		return core.LedgerDay{}, err
	}
	if s.IsNonOperating(day) && !day.ClosingBalance.Equal(amount) {
		slog.InfoContext(ctx, "Closing balance overridden on non-operating day",
			"date", date.String(),
			"requested", amount.StringFixed(2),
			"closing", day.ClosingBalance.StringFixed(2))
	}

	s.publishWithSuccessor(ctx, date, amqp.ReasonBalance)
	return day, nil
}

// SetClosed flags or unflags date as non-operating and reconciles it.
func (s *LedgerService) SetClosed(ctx context.Context, date core.Date, closed bool) (core.LedgerDay, error) {
	day, err := s.EnsureDay(ctx, date)
	if err != nil {
		return core.LedgerDay{}, err
	}
	if day.IsClosed != closed {
		if err := s.store.SetClosed(ctx, date, closed); err != nil {
			return core.LedgerDay{}, fmt.Errorf("set closed: %w", err)
		}
		slog.InfoContext(ctx, "Day closed flag changed", "date", date.String(), "closed", closed)
	}

	day, err = s.ReconcileOpeningBalance(ctx, date)
	if err != nil {
		return core.LedgerDay{}, err
	}
	s.publishWithSuccessor(ctx, date, amqp.ReasonClosed)
	return day, nil
}

// DayView reconciles date and gathers its totals, transactions and
// navigation. The caller always supplies the date; there is no implicit today.
func (s *LedgerService) DayView(ctx context.Context, date core.Date) (DayView, error) {
	day, err := s.ReconcileOpeningBalance(ctx, date)
	if err != nil {
		return DayView{}, err
	}
	txs, err := s.store.ListTransactions(ctx, date)
	if err != nil {
		return DayView{}, fmt.Errorf("list transactions: %w", err)
	}
	cats, err := s.store.ListCategories(ctx, "")
	if err != nil {
		return DayView{}, fmt.Errorf("list categories: %w", err)
	}

	totals := core.SummarizeTransactions(day, txs)
	warnIfClamped(ctx, date, totals)

	seq := s.Sequencer()
	return DayView{
		Day:          day,
		Totals:       totals,
		Transactions: txs,
		Categories:   cats,
		Previous:     seq.Previous(date),
		Next:         seq.Next(date),
		NonOperating: s.IsNonOperating(day),
	}, nil
}

// DeleteDay removes date and all of its transactions.
func (s *LedgerService) DeleteDay(ctx context.Context, date core.Date) error {
	if err := s.store.DeleteDay(ctx, date); err != nil {
		return err
	}
	s.publish(ctx, date, amqp.ReasonTransaction)
	return nil
}

// ListDays returns the stored days in [start, end].
func (s *LedgerService) ListDays(ctx context.Context, start, end core.Date) ([]core.LedgerDay, error) {
	if end.Before(start) {
		return nil, core.ErrInvalidRange
	}
	return s.store.ListDays(ctx, start, end)
}

// RefreshRange rebuilds the cached totals of every stored day in [start, end].
func (s *LedgerService) RefreshRange(ctx context.Context, start, end core.Date) (int, error) {
	days, err := s.ListDays(ctx, start, end)
	if err != nil {
		return 0, err
	}
	for _, d := range days {
		if _, err := s.RefreshCache(ctx, d.Date); err != nil {
			return 0, err
		}
	}
	return len(days), nil
}

// CreateCategory validates and stores a category.
func (s *LedgerService) CreateCategory(ctx context.Context, name string, kind core.TransactionKind) (core.Category, error) {
	c := core.Category{Name: strings.TrimSpace(name), Kind: kind}
	if err := c.Validate(); err != nil {
		return core.Category{}, err
	}
	return s.store.CreateCategory(ctx, c)
}

// ListCategories returns all categories, or those of kind when non-empty.
func (s *LedgerService) ListCategories(ctx context.Context, kind core.TransactionKind) ([]core.Category, error) {
	return s.store.ListCategories(ctx, kind)
}

// DeleteCategory removes a category. A category still referenced by
// transactions is left in place and reported as not deleted, without error.
func (s *LedgerService) DeleteCategory(ctx context.Context, id int64) (bool, error) {
	err := s.store.DeleteCategory(ctx, id)
	if errors.Is(err, core.ErrCategoryInUse) {
		slog.InfoContext(ctx, "Category kept, still referenced by transactions", "category_id", id)
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *LedgerService) checkCategory(ctx context.Context, tx core.Transaction) error {
	if tx.CategoryID == nil {
		return nil
	}
	c, err := s.store.GetCategory(ctx, *tx.CategoryID)
	if err != nil {
		return err
	}
	if c.Kind != tx.Kind {
		return fmt.Errorf("category %q is for %s: %w", c.Name, c.Kind, core.ErrCategoryKindMismatch)
	}
	return nil
}

func (s *LedgerService) publish(ctx context.Context, date core.Date, reason string) {
	if s.publisher == nil {
		slog.DebugContext(ctx, "AMQP publisher not available, skipping day updated message")
		return
	}
	if err := s.publisher.PublishDayUpdated(ctx, date, reason); err != nil {
		// Don't fail the request - the write is already committed
		slog.ErrorContext(ctx, "Failed to publish day updated message",
			"date", date.String(),
			"reason", reason,
			"error", err)
	}
}

// publishWithSuccessor also announces the next operating day, whose opening
// balance follows date's closing.
func (s *LedgerService) publishWithSuccessor(ctx context.Context, date core.Date, reason string) {
	s.publish(ctx, date, reason)
	s.publish(ctx, s.Sequencer().Next(date), reason)
}

// Close closes the store and the publisher when it holds a connection.
func (s *LedgerService) Close() error {
	var errs []error

	if s.store != nil {
		if err := s.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}

	if c, ok := s.publisher.(io.Closer); ok && c != nil {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close ledger service: %w", errors.Join(errs...))
	}
	return nil
}

func normalizeTransaction(tx core.Transaction) core.Transaction {
	tx.Amount = core.RoundAmount(tx.Amount)
	tx.Description = strings.TrimSpace(tx.Description)
	return tx
}

func affectedDates(old, current core.Date) []core.Date {
	if old.Equal(current) {
		return []core.Date{current}
	}
	return []core.Date{old, current}
}
