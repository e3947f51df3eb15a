package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"caixa/internal/core"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const dayColumns = `date, opening_balance_cents, closing_balance_cents, is_closed,
	cached_card_cents, cached_outflow_cents, cached_inflow_cents, created_at`

const txColumns = `id, day_date, kind, amount_cents, category_id, description, created_at`

// timestampLayout is fixed width so stored timestamps sort lexically.
const timestampLayout = "2006-01-02T15:04:05.000000Z07:00"

// SQLiteRepository persists ledger days, transactions and categories.
type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

// DSN builds the connection string used for dbPath: foreign keys are enforced
// on every connection, otherwise the cascade and restrict rules are inert.
func DSN(dbPath string) string {
	return "file:" + dbPath + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	dsn := DSN(dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// SQLite allows a single writer; one connection avoids SQLITE_BUSY churn
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dsn); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db, now: time.Now}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping is used by the readiness probe.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepository) timestamp() string {
	return r.now().UTC().Format(timestampLayout)
}

// GetDay implements services.DayStore
func (r *SQLiteRepository) GetDay(ctx context.Context, date core.Date) (core.LedgerDay, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+dayColumns+` FROM ledger_days WHERE date = ?`, date.String())
	day, err := scanDay(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.LedgerDay{}, fmt.Errorf("day %s: %w", date, core.ErrNotFound)
	}
	if err != nil {
		return core.LedgerDay{}, fmt.Errorf("get day %s: %w", date, err)
	}
	return day, nil
}

// GetOrCreateDay implements services.DayStore. The insert is a no-op on
// conflict, so two concurrent callers end up reading the same row.
func (r *SQLiteRepository) GetOrCreateDay(ctx context.Context, date core.Date) (core.LedgerDay, bool, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO ledger_days (date, created_at) VALUES (?, ?) ON CONFLICT(date) DO NOTHING`,
		date.String(), r.timestamp())
	if err != nil {
		return core.LedgerDay{}, false, fmt.Errorf("insert day %s: %w", date, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return core.LedgerDay{}, false, fmt.Errorf("insert day %s: %w", date, err)
	}
	created := n > 0
	if created {
		slog.DebugContext(ctx, "Ledger day created", "date", date.String())
	}

	day, err := r.GetDay(ctx, date)
	if err != nil {
		return core.LedgerDay{}, false, err
	}
	return day, created, nil
}

// SetOpeningBalance implements services.DayStore
func (r *SQLiteRepository) SetOpeningBalance(ctx context.Context, date core.Date, amount decimal.Decimal) error {
	return r.updateDay(ctx, date, "set opening balance",
		`UPDATE ledger_days SET opening_balance_cents = ? WHERE date = ?`, core.ToCents(amount), date.String())
}

// SetClosingBalance implements services.DayStore
func (r *SQLiteRepository) SetClosingBalance(ctx context.Context, date core.Date, amount decimal.Decimal) error {
	return r.updateDay(ctx, date, "set closing balance",
		`UPDATE ledger_days SET closing_balance_cents = ? WHERE date = ?`, core.ToCents(amount), date.String())
}

// SetClosed implements services.DayStore
func (r *SQLiteRepository) SetClosed(ctx context.Context, date core.Date, closed bool) error {
	return r.updateDay(ctx, date, "set closed flag",
		`UPDATE ledger_days SET is_closed = ? WHERE date = ?`, boolToInt(closed), date.String())
}

// UpdateCachedTotals implements services.DayStore
func (r *SQLiteRepository) UpdateCachedTotals(ctx context.Context, date core.Date, sums core.KindSums) error {
	return r.updateDay(ctx, date, "update cached totals",
		`UPDATE ledger_days SET cached_card_cents = ?, cached_outflow_cents = ?, cached_inflow_cents = ? WHERE date = ?`,
		core.ToCents(sums.Card), core.ToCents(sums.Outflow), core.ToCents(sums.Inflow), date.String())
}

func (r *SQLiteRepository) updateDay(ctx context.Context, date core.Date, op, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s for %s: %w", op, date, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s for %s: %w", op, date, err)
	}
	if n == 0 {
		return fmt.Errorf("%s for %s: %w", op, date, core.ErrNotFound)
	}
	return nil
}

// ListDays implements services.DayStore
func (r *SQLiteRepository) ListDays(ctx context.Context, start, end core.Date) ([]core.LedgerDay, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+dayColumns+` FROM ledger_days WHERE date BETWEEN ? AND ? ORDER BY date`,
		start.String(), end.String())
	if err != nil {
		return nil, fmt.Errorf("list days: %w", err)
	}
	defer rows.Close()

	var days []core.LedgerDay
	for rows.Next() {
		day, err := scanDay(rows)
		if err != nil {
			return nil, fmt.Errorf("scan day: %w", err)
		}
		days = append(days, day)
	}
	return days, rows.Err()
}

// DeleteDay implements services.DayStore
func (r *SQLiteRepository) DeleteDay(ctx context.Context, date core.Date) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM ledger_days WHERE date = ?`, date.String())
	if err != nil {
		return fmt.Errorf("delete day %s: %w", date, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("delete day %s: %w", date, core.ErrNotFound)
	}
	slog.InfoContext(ctx, "Ledger day deleted", "date", date.String())
	return nil
}

// CreateTransaction implements services.TransactionStore. The owning day is
// created in the same SQL transaction when missing.
func (r *SQLiteRepository) CreateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	sqlTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("begin: %w", err)
	}
	defer sqlTx.Rollback()

	ts := r.timestamp()
	if _, err := sqlTx.ExecContext(ctx,
		`INSERT INTO ledger_days (date, created_at) VALUES (?, ?) ON CONFLICT(date) DO NOTHING`,
		t.Date.String(), ts); err != nil {
		return core.Transaction{}, fmt.Errorf("ensure day %s: %w", t.Date, err)
	}

	res, err := sqlTx.ExecContext(ctx,
		`INSERT INTO transactions (day_date, kind, amount_cents, category_id, description, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		t.Date.String(), string(t.Kind), core.ToCents(t.Amount), nullableID(t.CategoryID), t.Description, ts)
	if err != nil {
		if isConstraint(err, sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY) {
			return core.Transaction{}, fmt.Errorf("create transaction: category: %w", core.ErrNotFound)
		}
		return core.Transaction{}, fmt.Errorf("create transaction: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return core.Transaction{}, fmt.Errorf("create transaction: %w", err)
	}
	if err := sqlTx.Commit(); err != nil {
		return core.Transaction{}, fmt.Errorf("commit: %w", err)
	}

	slog.InfoContext(ctx, "Transaction saved to SQLite",
		"id", id,
		"date", t.Date.String(),
		"kind", string(t.Kind),
		"amount_cents", core.ToCents(t.Amount))

	return r.GetTransaction(ctx, id)
}

// GetTransaction implements services.TransactionStore
func (r *SQLiteRepository) GetTransaction(ctx context.Context, id int64) (core.Transaction, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+txColumns+` FROM transactions WHERE id = ?`, id)
	t, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, fmt.Errorf("transaction %d: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction %d: %w", id, err)
	}
	return t, nil
}

// UpdateTransaction implements services.TransactionStore. Moving a
// transaction to another date creates that day when missing.
func (r *SQLiteRepository) UpdateTransaction(ctx context.Context, t core.Transaction) error {
	sqlTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer sqlTx.Rollback()

	if _, err := sqlTx.ExecContext(ctx,
		`INSERT INTO ledger_days (date, created_at) VALUES (?, ?) ON CONFLICT(date) DO NOTHING`,
		t.Date.String(), r.timestamp()); err != nil {
		return fmt.Errorf("ensure day %s: %w", t.Date, err)
	}

	res, err := sqlTx.ExecContext(ctx,
		`UPDATE transactions SET day_date = ?, kind = ?, amount_cents = ?, category_id = ?, description = ? WHERE id = ?`,
		t.Date.String(), string(t.Kind), core.ToCents(t.Amount), nullableID(t.CategoryID), t.Description, t.ID)
	if err != nil {
		if isConstraint(err, sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY) {
			return fmt.Errorf("update transaction %d: category: %w", t.ID, core.ErrNotFound)
		}
		return fmt.Errorf("update transaction %d: %w", t.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update transaction %d: %w", t.ID, core.ErrNotFound)
	}
	return sqlTx.Commit()
}

// DeleteTransaction implements services.TransactionStore
func (r *SQLiteRepository) DeleteTransaction(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM transactions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete transaction %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("delete transaction %d: %w", id, core.ErrNotFound)
	}
	slog.InfoContext(ctx, "Transaction deleted", "id", id)
	return nil
}

// ListTransactions implements services.TransactionStore
func (r *SQLiteRepository) ListTransactions(ctx context.Context, date core.Date) ([]core.Transaction, error) {
	return r.queryTransactions(ctx,
		`SELECT `+txColumns+` FROM transactions WHERE day_date = ? ORDER BY id`, date.String())
}

// ListTransactionsInRange implements services.TransactionStore
func (r *SQLiteRepository) ListTransactionsInRange(ctx context.Context, start, end core.Date) ([]core.Transaction, error) {
	return r.queryTransactions(ctx,
		`SELECT `+txColumns+` FROM transactions WHERE day_date BETWEEN ? AND ? ORDER BY day_date, id`,
		start.String(), end.String())
}

func (r *SQLiteRepository) queryTransactions(ctx context.Context, query string, args ...any) ([]core.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var out []core.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// SumByKind implements services.TransactionStore
func (r *SQLiteRepository) SumByKind(ctx context.Context, date core.Date) (core.KindSums, error) {
	sums := core.KindSums{Card: decimal.Zero, Inflow: decimal.Zero, Outflow: decimal.Zero}

	rows, err := r.db.QueryContext(ctx,
		`SELECT kind, COALESCE(SUM(amount_cents), 0) FROM transactions WHERE day_date = ? GROUP BY kind`,
		date.String())
	if err != nil {
		return sums, fmt.Errorf("sum transactions for %s: %w", date, err)
	}
	defer rows.Close()

	for rows.Next() {
		var kind string
		var cents int64
		if err := rows.Scan(&kind, &cents); err != nil {
			return sums, fmt.Errorf("scan sum: %w", err)
		}
		switch core.TransactionKind(kind) {
		case core.CardSale:
			sums.Card = core.FromCents(cents)
		case core.CashInflow:
			sums.Inflow = core.FromCents(cents)
		case core.CashOutflow:
			sums.Outflow = core.FromCents(cents)
		}
	}
	return sums, rows.Err()
}

// CreateCategory implements services.CategoryStore
func (r *SQLiteRepository) CreateCategory(ctx context.Context, c core.Category) (core.Category, error) {
	name := strings.TrimSpace(c.Name)
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO categories (name, kind, created_at) VALUES (?, ?, ?)`,
		name, string(c.Kind), r.timestamp())
	if err != nil {
		if isConstraint(err, sqlite3.SQLITE_CONSTRAINT_UNIQUE) {
			return core.Category{}, fmt.Errorf("create category %q: %w", name, core.ErrCategoryExists)
		}
		return core.Category{}, fmt.Errorf("create category: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return core.Category{}, fmt.Errorf("create category: %w", err)
	}

	slog.InfoContext(ctx, "Category created", "id", id, "name", name, "kind", string(c.Kind))
	return core.Category{ID: id, Name: name, Kind: c.Kind}, nil
}

// GetCategory implements services.CategoryStore
func (r *SQLiteRepository) GetCategory(ctx context.Context, id int64) (core.Category, error) {
	var c core.Category
	var kind string
	err := r.db.QueryRowContext(ctx, `SELECT id, name, kind FROM categories WHERE id = ?`, id).
		Scan(&c.ID, &c.Name, &kind)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Category{}, fmt.Errorf("category %d: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.Category{}, fmt.Errorf("get category %d: %w", id, err)
	}
	c.Kind = core.TransactionKind(kind)
	return c, nil
}

// ListCategories implements services.CategoryStore
func (r *SQLiteRepository) ListCategories(ctx context.Context, kind core.TransactionKind) ([]core.Category, error) {
	query := `SELECT id, name, kind FROM categories ORDER BY kind, name`
	var args []any
	if kind != "" {
		query = `SELECT id, name, kind FROM categories WHERE kind = ? ORDER BY name`
		args = append(args, string(kind))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var out []core.Category
	for rows.Next() {
		var c core.Category
		var k string
		if err := rows.Scan(&c.ID, &c.Name, &k); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		c.Kind = core.TransactionKind(k)
		out = append(out, c)
	}
	return out, rows.Err()
}

// DeleteCategory implements services.CategoryStore. The ON DELETE RESTRICT
// foreign key refuses the delete while transactions point at the category.
func (r *SQLiteRepository) DeleteCategory(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM categories WHERE id = ?`, id)
	if err != nil {
		if isConstraint(err, sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY) {
			return fmt.Errorf("delete category %d: %w", id, core.ErrCategoryInUse)
		}
		return fmt.Errorf("delete category %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("delete category %d: %w", id, core.ErrNotFound)
	}
	slog.InfoContext(ctx, "Category deleted", "id", id)
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDay(s rowScanner) (core.LedgerDay, error) {
	var (
		date, createdAt                        string
		opening, closing, card, outflow, inflw int64
		closed                                 int64
	)
	if err := s.Scan(&date, &opening, &closing, &closed, &card, &outflow, &inflw, &createdAt); err != nil {
		return core.LedgerDay{}, err
	}
	d, err := core.ParseDate(date)
	if err != nil {
		return core.LedgerDay{}, fmt.Errorf("parse day date %q: %w", date, err)
	}
	return core.LedgerDay{
		Date:               d,
		OpeningBalance:     core.FromCents(opening),
		ClosingBalance:     core.FromCents(closing),
		IsClosed:           closed != 0,
		CachedCardTotal:    core.FromCents(card),
		CachedOutflowTotal: core.FromCents(outflow),
		CachedInflowTotal:  core.FromCents(inflw),
		CreatedAt:          parseTimestamp(createdAt),
	}, nil
}

func scanTransaction(s rowScanner) (core.Transaction, error) {
	var (
		t                     core.Transaction
		date, kind, createdAt string
		cents                 int64
		categoryID            sql.NullInt64
	)
	if err := s.Scan(&t.ID, &date, &kind, &cents, &categoryID, &t.Description, &createdAt); err != nil {
		return core.Transaction{}, err
	}
	d, err := core.ParseDate(date)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("parse transaction date %q: %w", date, err)
	}
	t.Date = d
	t.Kind = core.TransactionKind(kind)
	t.Amount = core.FromCents(cents)
	if categoryID.Valid {
		id := categoryID.Int64
		t.CategoryID = &id
	}
	t.CreatedAt = parseTimestamp(createdAt)
	return t, nil
}

func parseTimestamp(s string) time.Time {
	t, err := time.Parse(timestampLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nullableID(id *int64) any {
	if id == nil {
		return nil
	}
	return *id
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// isConstraint reports whether err is a SQLite error with the given extended code.
func isConstraint(err error, code int) bool {
	var se interface{ Code() int }
	return errors.As(err, &se) && se.Code() == code
}
