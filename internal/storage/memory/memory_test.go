package memory

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"caixa/internal/core"

	"github.com/shopspring/decimal"
)

func TestMemoryStoreDaysAndTransactions(t *testing.T) {
	ctx := context.Background()
	s := New(nil)
	d := core.NewDate(2024, 5, 10)

	if _, err := s.GetDay(ctx, d); err == nil {
		t.Fatalf("expected not found before creation")
	}

	_, err := s.CreateTransaction(ctx, core.Transaction{Date: d, Kind: core.CardSale, Amount: decimal.RequireFromString("50")})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, created, _ := s.GetOrCreateDay(ctx, d); created {
		t.Fatalf("day should have been created with its first transaction")
	}

	sums, err := s.SumByKind(ctx, d)
	if err != nil || sums.Card.StringFixed(2) != "50.00" {
		t.Fatalf("unexpected sums: %+v err=%v", sums, err)
	}

	if err := s.DeleteDay(ctx, d); err != nil {
		t.Fatalf("delete day: %v", err)
	}
	txs, _ := s.ListTransactions(ctx, d)
	if len(txs) != 0 {
		t.Fatalf("expected cascade delete, got %d transactions", len(txs))
	}
}

func TestMemoryStoreCategoryGuard(t *testing.T) {
	ctx := context.Background()
	s := New([]core.Category{{Name: "Fornecedor", Kind: core.CashOutflow}})
	cats, _ := s.ListCategories(ctx, core.CashOutflow)
	if len(cats) != 1 {
		t.Fatalf("expected seeded category, got %v", cats)
	}
	id := cats[0].ID

	tx, err := s.CreateTransaction(ctx, core.Transaction{
		Date: core.NewDate(2024, 5, 10), Kind: core.CashOutflow, Amount: decimal.RequireFromString("3"), CategoryID: &id,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.DeleteCategory(ctx, id); err == nil {
		t.Fatalf("expected ErrCategoryInUse")
	}
	if err := s.DeleteTransaction(ctx, tx.ID); err != nil {
		t.Fatalf("delete tx: %v", err)
	}
	if err := s.DeleteCategory(ctx, id); err != nil {
		t.Fatalf("delete category: %v", err)
	}
}

func TestNewFromFilesSeedsAndDedupe(t *testing.T) {
	dir := t.TempDir()
	// No file -> empty store
	s := NewFromFiles(dir)
	cats, _ := s.ListCategories(context.Background(), "")
	if len(cats) != 0 {
		t.Fatalf("expected no categories when file missing, got %v", cats)
	}

	content := "# header\nCASH_OUTFLOW: Fornecedor\nCASH_OUTFLOW: Fornecedor\n\nCASH_INFLOW: Troco\nbogus line\nOTHER: Nope\n"
	if err := os.WriteFile(filepath.Join(dir, "seed_categories.txt"), []byte(content), 0o644); err != nil {
		t.Fatalf("write seed: %v", err)
	}

	s = NewFromFiles(dir)
	cats, _ = s.ListCategories(context.Background(), "")
	if len(cats) != 2 {
		t.Fatalf("unexpected cats: %v", cats)
	}
	if cats[0].Kind != core.CashInflow || cats[0].Name != "Troco" {
		t.Fatalf("unexpected order: %v", cats)
	}
}
