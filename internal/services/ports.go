package services

import (
	"context"

	"caixa/internal/core"

	"github.com/shopspring/decimal"
)

// Ports for the ledger persistence adapters (storage.SQLiteRepository and
// memory.Store). Lookups of a missing row return core.ErrNotFound.
type (
	DayStore interface {
		GetDay(ctx context.Context, date core.Date) (core.LedgerDay, error)
		// GetOrCreateDay returns the day for date, inserting an empty one when
		// absent. created reports whether this call inserted it.
		GetOrCreateDay(ctx context.Context, date core.Date) (day core.LedgerDay, created bool, err error)
		SetOpeningBalance(ctx context.Context, date core.Date, amount decimal.Decimal) error
		SetClosingBalance(ctx context.Context, date core.Date, amount decimal.Decimal) error
		SetClosed(ctx context.Context, date core.Date, closed bool) error
		UpdateCachedTotals(ctx context.Context, date core.Date, sums core.KindSums) error
		// ListDays returns the stored days in [start, end] in ascending order.
		ListDays(ctx context.Context, start, end core.Date) ([]core.LedgerDay, error)
		// DeleteDay removes the day and, by cascade, its transactions.
		DeleteDay(ctx context.Context, date core.Date) error
	}

	TransactionStore interface {
		CreateTransaction(ctx context.Context, tx core.Transaction) (core.Transaction, error)
		GetTransaction(ctx context.Context, id int64) (core.Transaction, error)
		UpdateTransaction(ctx context.Context, tx core.Transaction) error
		DeleteTransaction(ctx context.Context, id int64) error
		ListTransactions(ctx context.Context, date core.Date) ([]core.Transaction, error)
		ListTransactionsInRange(ctx context.Context, start, end core.Date) ([]core.Transaction, error)
		// SumByKind is the pre-aggregated per-kind sum of a day's transactions.
		SumByKind(ctx context.Context, date core.Date) (core.KindSums, error)
	}

	CategoryStore interface {
		CreateCategory(ctx context.Context, c core.Category) (core.Category, error)
		GetCategory(ctx context.Context, id int64) (core.Category, error)
		// ListCategories returns all categories, or those of kind when it is non-empty.
		ListCategories(ctx context.Context, kind core.TransactionKind) ([]core.Category, error)
		// DeleteCategory fails with core.ErrCategoryInUse while transactions reference it.
		DeleteCategory(ctx context.Context, id int64) error
	}

	LedgerStore interface {
		DayStore
		TransactionStore
		CategoryStore
		Close() error
	}
)
