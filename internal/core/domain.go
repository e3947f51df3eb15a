package core

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the ISO layout used for dates in URLs, JSON and storage.
const DateLayout = "2006-01-02"

const (
	CardSale    TransactionKind = "CARD_SALE"
	CashInflow  TransactionKind = "CASH_INFLOW"
	CashOutflow TransactionKind = "CASH_OUTFLOW"
)

type (
	TransactionKind string

	Date struct {
		time.Time
	}

	// LedgerDay is one business date's till record. The cached totals are a
	// materialized view of the day's transactions, refreshed after every write.
	LedgerDay struct {
		Date               Date
		OpeningBalance     decimal.Decimal
		ClosingBalance     decimal.Decimal // physically counted cash at end of day
		IsClosed           bool            // non-operating day, balances pass through
		CachedCardTotal    decimal.Decimal
		CachedOutflowTotal decimal.Decimal
		CachedInflowTotal  decimal.Decimal
		CreatedAt          time.Time
	}

	Transaction struct {
		ID          int64
		Date        Date
		Kind        TransactionKind
		Amount      decimal.Decimal
		CategoryID  *int64
		Description string
		CreatedAt   time.Time
	}

	Category struct {
		ID   int64
		Name string
		Kind TransactionKind
	}
)

var (
	ErrInvalidDay           = errors.New("invalid day")
	ErrInvalidMonth         = errors.New("invalid month")
	ErrInvalidAmount        = errors.New("invalid amount")
	ErrInvalidKind          = errors.New("invalid transaction kind")
	ErrEmptyName            = errors.New("empty name")
	ErrDescriptionTooLong   = errors.New("description too long (max 200 characters)")
	ErrInvalidRange         = errors.New("invalid date range")
	ErrNotFound             = errors.New("not found")
	ErrCategoryInUse        = errors.New("category is referenced by transactions")
	ErrCategoryExists       = errors.New("category already exists")
	ErrCategoryKindMismatch = errors.New("category kind does not match transaction kind")
)

// Kinds returns the stored transaction kinds in display order.
func Kinds() []TransactionKind {
	return []TransactionKind{CardSale, CashInflow, CashOutflow}
}

func (k TransactionKind) IsValid() bool {
	switch k {
	case CardSale, CashInflow, CashOutflow:
		return true
	default:
		return false
	}
}

// Label returns the Portuguese label shown in the UI.
func (k TransactionKind) Label() string {
	switch k {
	case CardSale:
		return "Vendas no Cartão/Pix"
	case CashInflow:
		return "Entrada em Dinheiro"
	case CashOutflow:
		return "Saída em Dinheiro"
	default:
		return string(k)
	}
}

func (d Date) Validate() error {
	if d.IsZero() {
		return errors.New("date cannot be zero")
	}
	_, month, day := d.Date()
	if day < 1 || day > 31 {
		return ErrInvalidDay
	}
	if month < 1 || month > 12 {
		return ErrInvalidMonth
	}
	return nil
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar date in t's location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return NewDate(y, int(m), d)
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, err
	}
	return Date{Time: t}, nil
}

// AddDays returns the date n calendar days later (or earlier for negative n).
func (d Date) AddDays(n int) Date {
	return Date{Time: d.Time.AddDate(0, 0, n)}
}

func (d Date) Before(o Date) bool { return d.Time.Before(o.Time) }
func (d Date) After(o Date) bool { return d.Time.After(o.Time) }
func (d Date) Equal(o Date) bool { return d.Time.Equal(o.Time) }

func (d Date) String() string {
	return d.Format(DateLayout)
}

// DaysBetween counts the calendar days in [start, end], inclusive.
func DaysBetween(start, end Date) int {
	if end.Before(start) {
		return 0
	}
	return int(end.Sub(start.Time).Hours()/24) + 1
}

// NewLedgerDay returns an empty day: zero balances, not closed.
func NewLedgerDay(d Date) LedgerDay {
	return LedgerDay{
		Date:               d,
		OpeningBalance:     decimal.Zero,
		ClosingBalance:     decimal.Zero,
		CachedCardTotal:    decimal.Zero,
		CachedOutflowTotal: decimal.Zero,
		CachedInflowTotal:  decimal.Zero,
	}
}

func (t Transaction) Validate() error {
	if err := t.Date.Validate(); err != nil {
		return err
	}
	if !t.Kind.IsValid() {
		return ErrInvalidKind
	}
	if !t.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	if len(t.Description) > 200 {
		return ErrDescriptionTooLong
	}
	return nil
}

func (c Category) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return ErrEmptyName
	}
	if len(c.Name) > 100 {
		return errors.New("name too long (max 100 characters)")
	}
	if !c.Kind.IsValid() {
		return ErrInvalidKind
	}
	return nil
}
