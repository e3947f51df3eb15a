package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeTotalsFormula(t *testing.T) {
	tests := []struct {
		name        string
		opening     string
		closing     string
		card        string
		inflow      string
		outflow     string
		wantImplied string
		wantRevenue string
		wantClamped bool
	}{
		{
			name:    "reference day",
			opening: "100", inflow: "20", outflow: "30", closing: "250", card: "75",
			wantImplied: "160.00", wantRevenue: "235.00",
		},
		{
			name:    "negative implied is clamped",
			opening: "10", inflow: "0", outflow: "5", closing: "3", card: "0",
			wantImplied: "0.00", wantRevenue: "0.00", wantClamped: true,
		},
		{
			name:    "empty day",
			opening: "0", inflow: "0", outflow: "0", closing: "0", card: "0",
			wantImplied: "0.00", wantRevenue: "0.00",
		},
		{
			name:    "inflows never count as revenue",
			opening: "0", inflow: "500", outflow: "0", closing: "500", card: "40",
			wantImplied: "0.00", wantRevenue: "40.00",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeTotals(mustDecimal(t, tt.opening), mustDecimal(t, tt.closing), KindSums{
				Card:    mustDecimal(t, tt.card),
				Inflow:  mustDecimal(t, tt.inflow),
				Outflow: mustDecimal(t, tt.outflow),
			})
			assert.Equal(t, tt.wantImplied, got.ImpliedSale.StringFixed(2))
			assert.Equal(t, tt.wantRevenue, got.TotalRevenue.StringFixed(2))
			assert.Equal(t, tt.wantClamped, got.Clamped)
			assert.False(t, got.ImpliedSale.IsNegative())
		})
	}
}

func TestComputeTotalsDiscrepancy(t *testing.T) {
	got := ComputeTotals(mustDecimal(t, "10"), mustDecimal(t, "3"), KindSums{
		Card: mustDecimal(t, "0"), Inflow: mustDecimal(t, "0"), Outflow: mustDecimal(t, "5"),
	})
	require.True(t, got.Clamped)
	assert.Equal(t, "-2.00", got.Discrepancy.StringFixed(2))
	assert.Equal(t, "10.00", got.CashAvailable.StringFixed(2))
}

func TestCachedAndScannedTotalsAgree(t *testing.T) {
	d := NewDate(2024, 5, 10)
	txs := []Transaction{
		{Date: d, Kind: CardSale, Amount: mustDecimal(t, "50")},
		{Date: d, Kind: CashInflow, Amount: mustDecimal(t, "20")},
		{Date: d, Kind: CashOutflow, Amount: mustDecimal(t, "10")},
	}
	day := NewLedgerDay(d)
	day.OpeningBalance = mustDecimal(t, "100")
	day.ClosingBalance = mustDecimal(t, "180")

	sums := SumByKind(txs)
	day.CachedCardTotal = sums.Card
	day.CachedInflowTotal = sums.Inflow
	day.CachedOutflowTotal = sums.Outflow

	assert.Equal(t, SummarizeTransactions(day, txs), SummarizeCached(day))
	assert.Equal(t, "70.00", SummarizeCached(day).ImpliedSale.StringFixed(2))
}

func TestRangeTotalsAdd(t *testing.T) {
	r := NewRangeTotals(NewDate(2024, 1, 1), NewDate(2024, 1, 2))
	require.Equal(t, 2, r.Days)

	r.Add(ComputeTotals(mustDecimal(t, "100"), mustDecimal(t, "250"), KindSums{
		Card: mustDecimal(t, "75"), Inflow: mustDecimal(t, "20"), Outflow: mustDecimal(t, "30"),
	}))
	r.Add(ComputeTotals(mustDecimal(t, "10"), mustDecimal(t, "3"), KindSums{
		Card: mustDecimal(t, "0"), Inflow: mustDecimal(t, "0"), Outflow: mustDecimal(t, "5"),
	}))

	assert.Equal(t, "75.00", r.Card.StringFixed(2))
	assert.Equal(t, "160.00", r.ImpliedSale.StringFixed(2))
	assert.Equal(t, "235.00", r.TotalRevenue.StringFixed(2))
	assert.Equal(t, "35.00", r.Outflows.StringFixed(2))
	assert.Equal(t, "200.00", r.NetResult.StringFixed(2))
	assert.Equal(t, 1, r.ClampedDays)
}

func TestGroupByCategory(t *testing.T) {
	d := NewDate(2024, 5, 10)
	fornecedor := int64(1)
	missing := int64(99)
	txs := []Transaction{
		{Date: d, Kind: CashOutflow, Amount: mustDecimal(t, "10"), CategoryID: &fornecedor},
		{Date: d, Kind: CashOutflow, Amount: mustDecimal(t, "15"), CategoryID: &fornecedor},
		{Date: d, Kind: CashOutflow, Amount: mustDecimal(t, "4")},
		{Date: d, Kind: CashOutflow, Amount: mustDecimal(t, "1"), CategoryID: &missing},
		{Date: d, Kind: CardSale, Amount: mustDecimal(t, "7")},
	}

	got := GroupByCategory(txs, map[int64]string{fornecedor: "Fornecedor"})
	require.Len(t, got, 3)

	assert.Equal(t, CardSale, got[0].Kind)
	assert.Equal(t, UncategorizedLabel, got[0].Name)

	assert.Equal(t, "Fornecedor", got[1].Name)
	assert.Equal(t, "25.00", got[1].Amount.StringFixed(2))
	assert.Equal(t, 2, got[1].Count)

	assert.Equal(t, UncategorizedLabel, got[2].Name)
	assert.Equal(t, "5.00", got[2].Amount.StringFixed(2))
}
