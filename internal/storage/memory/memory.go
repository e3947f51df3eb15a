package memory

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"caixa/internal/core"

	"github.com/shopspring/decimal"
)

// Store keeps the whole ledger in process memory. It mirrors the SQLite
// repository's rules: cascading day deletes and restricted category deletes.
type Store struct {
	mu        sync.Mutex
	days      map[string]core.LedgerDay
	txs       map[int64]core.Transaction
	cats      map[int64]core.Category
	nextTxID  int64
	nextCatID int64
	now       func() time.Time
}

func New(cats []core.Category) *Store {
	s := &Store{
		days: make(map[string]core.LedgerDay),
		txs:  make(map[int64]core.Transaction),
		cats: make(map[int64]core.Category),
		now:  time.Now,
	}
	for _, c := range dedupeCategories(cats) {
		s.nextCatID++
		c.ID = s.nextCatID
		s.cats[c.ID] = c
	}
	return s
}

// NewFromFiles seeds categories from base/seed_categories.txt, one
// "KIND: Name" per line. Blank lines and # comments are ignored.
func NewFromFiles(base string) *Store {
	var cats []core.Category
	for _, line := range readLines(filepath.Join(base, "seed_categories.txt")) {
		kind, name, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		c := core.Category{Name: strings.TrimSpace(name), Kind: core.TransactionKind(strings.TrimSpace(kind))}
		if c.Validate() != nil {
			continue
		}
		cats = append(cats, c)
	}
	return New(cats)
}

func (s *Store) Close() error { return nil }

// GetDay implements services.DayStore
func (s *Store) GetDay(_ context.Context, date core.Date) (core.LedgerDay, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	day, ok := s.days[date.String()]
	if !ok {
		return core.LedgerDay{}, fmt.Errorf("day %s: %w", date, core.ErrNotFound)
	}
	return day, nil
}

// GetOrCreateDay implements services.DayStore
func (s *Store) GetOrCreateDay(_ context.Context, date core.Date) (core.LedgerDay, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	day, created := s.ensureDayLocked(date)
	return day, created, nil
}

func (s *Store) ensureDayLocked(date core.Date) (core.LedgerDay, bool) {
	if day, ok := s.days[date.String()]; ok {
		return day, false
	}
	day := core.NewLedgerDay(date)
	day.CreatedAt = s.now().UTC()
	s.days[date.String()] = day
	return day, true
}

// SetOpeningBalance implements services.DayStore
func (s *Store) SetOpeningBalance(_ context.Context, date core.Date, amount decimal.Decimal) error {
	return s.updateDay(date, func(d *core.LedgerDay) { d.OpeningBalance = core.RoundAmount(amount) })
}

// SetClosingBalance implements services.DayStore
func (s *Store) SetClosingBalance(_ context.Context, date core.Date, amount decimal.Decimal) error {
	return s.updateDay(date, func(d *core.LedgerDay) { d.ClosingBalance = core.RoundAmount(amount) })
}

// SetClosed implements services.DayStore
func (s *Store) SetClosed(_ context.Context, date core.Date, closed bool) error {
	return s.updateDay(date, func(d *core.LedgerDay) { d.IsClosed = closed })
}

// UpdateCachedTotals implements services.DayStore
func (s *Store) UpdateCachedTotals(_ context.Context, date core.Date, sums core.KindSums) error {
	return s.updateDay(date, func(d *core.LedgerDay) {
		d.CachedCardTotal = core.RoundAmount(sums.Card)
		d.CachedInflowTotal = core.RoundAmount(sums.Inflow)
		d.CachedOutflowTotal = core.RoundAmount(sums.Outflow)
	})
}

func (s *Store) updateDay(date core.Date, fn func(*core.LedgerDay)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	day, ok := s.days[date.String()]
	if !ok {
		return fmt.Errorf("day %s: %w", date, core.ErrNotFound)
	}
	fn(&day)
	s.days[date.String()] = day
	return nil
}

// ListDays implements services.DayStore
func (s *Store) ListDays(_ context.Context, start, end core.Date) ([]core.LedgerDay, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.LedgerDay
	for _, day := range s.days {
		if day.Date.Before(start) || day.Date.After(end) {
			continue
		}
		out = append(out, day)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

// DeleteDay implements services.DayStore
func (s *Store) DeleteDay(_ context.Context, date core.Date) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.days[date.String()]; !ok {
		return fmt.Errorf("day %s: %w", date, core.ErrNotFound)
	}
	delete(s.days, date.String())
	for id, tx := range s.txs {
		if tx.Date.Equal(date) {
			delete(s.txs, id)
		}
	}
	return nil
}

// CreateTransaction implements services.TransactionStore
func (s *Store) CreateTransaction(_ context.Context, t core.Transaction) (core.Transaction, error) {
	if err := t.Validate(); err != nil {
		return core.Transaction{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.CategoryID != nil {
		if _, ok := s.cats[*t.CategoryID]; !ok {
			return core.Transaction{}, fmt.Errorf("category %d: %w", *t.CategoryID, core.ErrNotFound)
		}
	}
	s.ensureDayLocked(t.Date)
	s.nextTxID++
	t.ID = s.nextTxID
	t.Amount = core.RoundAmount(t.Amount)
	t.CreatedAt = s.now().UTC()
	s.txs[t.ID] = t
	return t, nil
}

// GetTransaction implements services.TransactionStore
func (s *Store) GetTransaction(_ context.Context, id int64) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.txs[id]
	if !ok {
		return core.Transaction{}, fmt.Errorf("transaction %d: %w", id, core.ErrNotFound)
	}
	return t, nil
}

// UpdateTransaction implements services.TransactionStore
func (s *Store) UpdateTransaction(_ context.Context, t core.Transaction) error {
	if err := t.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.txs[t.ID]
	if !ok {
		return fmt.Errorf("transaction %d: %w", t.ID, core.ErrNotFound)
	}
	if t.CategoryID != nil {
		if _, ok := s.cats[*t.CategoryID]; !ok {
			return fmt.Errorf("category %d: %w", *t.CategoryID, core.ErrNotFound)
		}
	}
	s.ensureDayLocked(t.Date)
	t.Amount = core.RoundAmount(t.Amount)
	t.CreatedAt = old.CreatedAt
	s.txs[t.ID] = t
	return nil
}

// DeleteTransaction implements services.TransactionStore
func (s *Store) DeleteTransaction(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.txs[id]; !ok {
		return fmt.Errorf("transaction %d: %w", id, core.ErrNotFound)
	}
	delete(s.txs, id)
	return nil
}

// ListTransactions implements services.TransactionStore
func (s *Store) ListTransactions(ctx context.Context, date core.Date) ([]core.Transaction, error) {
	return s.ListTransactionsInRange(ctx, date, date)
}

// ListTransactionsInRange implements services.TransactionStore
func (s *Store) ListTransactionsInRange(_ context.Context, start, end core.Date) ([]core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Transaction
	for _, t := range s.txs {
		if t.Date.Before(start) || t.Date.After(end) {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// SumByKind implements services.TransactionStore
func (s *Store) SumByKind(ctx context.Context, date core.Date) (core.KindSums, error) {
	txs, err := s.ListTransactions(ctx, date)
	if err != nil {
		return core.KindSums{}, err
	}
	return core.SumByKind(txs), nil
}

// CreateCategory implements services.CategoryStore
func (s *Store) CreateCategory(_ context.Context, c core.Category) (core.Category, error) {
	c.Name = strings.TrimSpace(c.Name)
	if err := c.Validate(); err != nil {
		return core.Category{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.cats {
		if existing.Name == c.Name && existing.Kind == c.Kind {
			return core.Category{}, fmt.Errorf("category %q: %w", c.Name, core.ErrCategoryExists)
		}
	}
	s.nextCatID++
	c.ID = s.nextCatID
	s.cats[c.ID] = c
	return c, nil
}

// GetCategory implements services.CategoryStore
func (s *Store) GetCategory(_ context.Context, id int64) (core.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cats[id]
	if !ok {
		return core.Category{}, fmt.Errorf("category %d: %w", id, core.ErrNotFound)
	}
	return c, nil
}

// ListCategories implements services.CategoryStore
func (s *Store) ListCategories(_ context.Context, kind core.TransactionKind) ([]core.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Category
	for _, c := range s.cats {
		if kind != "" && c.Kind != kind {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

// DeleteCategory implements services.CategoryStore
func (s *Store) DeleteCategory(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.cats[id]; !ok {
		return fmt.Errorf("category %d: %w", id, core.ErrNotFound)
	}
	for _, t := range s.txs {
		if t.CategoryID != nil && *t.CategoryID == id {
			return fmt.Errorf("category %d: %w", id, core.ErrCategoryInUse)
		}
	}
	delete(s.cats, id)
	return nil
}

func readLines(path string) []string {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()
	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out
}

func dedupeCategories(in []core.Category) []core.Category {
	type key struct {
		name string
		kind core.TransactionKind
	}
	seen := map[key]struct{}{}
	out := make([]core.Category, 0, len(in))
	for _, c := range in {
		c.Name = strings.TrimSpace(c.Name)
		if c.Name == "" {
			continue
		}
		k := key{c.Name, c.Kind}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, c)
	}
	// Preserve input order for ID assignment.
	return out
}
