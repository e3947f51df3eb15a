package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"caixa/internal/core"
	"caixa/internal/storage/memory"

	"github.com/shopspring/decimal"
)

// countingStore counts balance and flag writes so tests can assert that a
// reconciliation on an unchanged chain is a no-op.
type countingStore struct {
	*memory.Store
	writes atomic.Int64
}

func newCountingStore(cats ...core.Category) *countingStore {
	return &countingStore{Store: memory.New(cats)}
}

func (s *countingStore) SetOpeningBalance(ctx context.Context, date core.Date, amount decimal.Decimal) error {
	s.writes.Add(1)
	return s.Store.SetOpeningBalance(ctx, date, amount)
}

func (s *countingStore) SetClosingBalance(ctx context.Context, date core.Date, amount decimal.Decimal) error {
	s.writes.Add(1)
	return s.Store.SetClosingBalance(ctx, date, amount)
}

func (s *countingStore) SetClosed(ctx context.Context, date core.Date, closed bool) error {
	s.writes.Add(1)
	return s.Store.SetClosed(ctx, date, closed)
}

type published struct {
	date   string
	reason string
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []published
	err  error
}

func (p *fakePublisher) PublishDayUpdated(_ context.Context, date core.Date, reason string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, published{date: date.String(), reason: reason})
	return p.err
}

func (p *fakePublisher) reasonsFor(date string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, m := range p.msgs {
		if m.date == date {
			out = append(out, m.reason)
		}
	}
	return out
}

var errBrokerDown = errors.New("broker down")

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func mustDate(s string) core.Date {
	d, err := core.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func newTestLedger(t *testing.T, opts Options, cats ...core.Category) (*LedgerService, *countingStore, *fakePublisher) {
	t.Helper()
	store := newCountingStore(cats...)
	pub := &fakePublisher{}
	return NewLedgerService(store, pub, opts), store, pub
}

func record(t *testing.T, s *LedgerService, date string, kind core.TransactionKind, amount string) core.Transaction {
	t.Helper()
	tx, err := s.RecordTransaction(context.Background(), core.Transaction{
		Date:        mustDate(date),
		Kind:        kind,
		Amount:      dec(amount),
		Description: string(kind),
	})
	if err != nil {
		t.Fatalf("record %s %s on %s: %v", kind, amount, date, err)
	}
	return tx
}
