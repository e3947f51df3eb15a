package core

import (
	"sort"

	"github.com/shopspring/decimal"
)

// UncategorizedLabel groups transactions without a category in reports.
const UncategorizedLabel = "Sem categoria"

type (
	// KindSums holds the per-kind sums of a day's transactions.
	KindSums struct {
		Card    decimal.Decimal
		Inflow  decimal.Decimal
		Outflow decimal.Decimal
	}

	// Totals is the resolved summary of one day.
	Totals struct {
		Opening       decimal.Decimal
		Closing       decimal.Decimal
		Card          decimal.Decimal
		Inflows       decimal.Decimal
		Outflows      decimal.Decimal
		CashAvailable decimal.Decimal
		ImpliedSale   decimal.Decimal
		TotalRevenue  decimal.Decimal
		// Clamped reports that the raw implied sale was negative and was
		// replaced by zero; Discrepancy keeps the raw (negative) value.
		Clamped     bool
		Discrepancy decimal.Decimal
	}

	// CategoryAmount represents an amount aggregated by category name.
	CategoryAmount struct {
		Name   string
		Kind   TransactionKind
		Amount decimal.Decimal
		Count  int
	}

	// DayTotals is one resolved day inside a range report.
	DayTotals struct {
		Date     Date
		IsClosed bool
		Totals   Totals
	}

	// RangeTotals is the summary of an inclusive date range.
	RangeTotals struct {
		Start        Date
		End          Date
		Days         int
		Card         decimal.Decimal
		ImpliedSale  decimal.Decimal
		Inflows      decimal.Decimal
		Outflows     decimal.Decimal
		TotalRevenue decimal.Decimal
		NetResult    decimal.Decimal
		ClampedDays  int
		PerDay       []DayTotals
		ByCategory   []CategoryAmount
	}
)

// ComputeTotals applies the day formula:
//
//	cash_available = opening + inflows
//	implied_sale   = max(0, (outflows + closing) - cash_available)
//	total_revenue  = card + implied_sale
//
// Inflows are supplies put into the till and never count as revenue.
func ComputeTotals(opening, closing decimal.Decimal, sums KindSums) Totals {
	available := opening.Add(sums.Inflow)
	raw := sums.Outflow.Add(closing).Sub(available)

	t := Totals{
		Opening:       RoundAmount(opening),
		Closing:       RoundAmount(closing),
		Card:          RoundAmount(sums.Card),
		Inflows:       RoundAmount(sums.Inflow),
		Outflows:      RoundAmount(sums.Outflow),
		CashAvailable: RoundAmount(available),
		ImpliedSale:   RoundAmount(raw),
		Discrepancy:   decimal.Zero,
	}
	if raw.IsNegative() {
		t.Clamped = true
		t.Discrepancy = RoundAmount(raw)
		t.ImpliedSale = decimal.Zero
	}
	t.TotalRevenue = t.Card.Add(t.ImpliedSale)
	return t
}

// SumByKind scans transactions and adds their amounts per kind.
func SumByKind(txs []Transaction) KindSums {
	sums := KindSums{Card: decimal.Zero, Inflow: decimal.Zero, Outflow: decimal.Zero}
	for _, tx := range txs {
		switch tx.Kind {
		case CardSale:
			sums.Card = sums.Card.Add(tx.Amount)
		case CashInflow:
			sums.Inflow = sums.Inflow.Add(tx.Amount)
		case CashOutflow:
			sums.Outflow = sums.Outflow.Add(tx.Amount)
		}
	}
	return sums
}

// SummarizeTransactions resolves a day from an in-memory list of its transactions.
func SummarizeTransactions(day LedgerDay, txs []Transaction) Totals {
	return ComputeTotals(day.OpeningBalance, day.ClosingBalance, SumByKind(txs))
}

// SummarizeCached resolves a day from its cached per-kind totals only.
func SummarizeCached(day LedgerDay) Totals {
	return ComputeTotals(day.OpeningBalance, day.ClosingBalance, day.CachedSums())
}

// CachedSums returns the day's cached totals as KindSums.
func (d LedgerDay) CachedSums() KindSums {
	return KindSums{
		Card:    d.CachedCardTotal,
		Inflow:  d.CachedInflowTotal,
		Outflow: d.CachedOutflowTotal,
	}
}

// NewRangeTotals returns zeroed range totals for [start, end].
func NewRangeTotals(start, end Date) RangeTotals {
	return RangeTotals{
		Start:        start,
		End:          end,
		Days:         DaysBetween(start, end),
		Card:         decimal.Zero,
		ImpliedSale:  decimal.Zero,
		Inflows:      decimal.Zero,
		Outflows:     decimal.Zero,
		TotalRevenue: decimal.Zero,
		NetResult:    decimal.Zero,
	}
}

// Add accumulates one resolved day. The per-day clamp has already been
// applied, so a negative day never offsets a positive one.
func (r *RangeTotals) Add(t Totals) {
	r.Card = r.Card.Add(t.Card)
	r.ImpliedSale = r.ImpliedSale.Add(t.ImpliedSale)
	r.Inflows = r.Inflows.Add(t.Inflows)
	r.Outflows = r.Outflows.Add(t.Outflows)
	r.TotalRevenue = r.TotalRevenue.Add(t.TotalRevenue)
	// every outflow is treated as a real expense
	r.NetResult = r.TotalRevenue.Sub(r.Outflows)
	if t.Clamped {
		r.ClampedDays++
	}
}

// GroupByCategory aggregates transactions per (category, kind). Names are
// resolved through the given lookup; missing categories fall under
// UncategorizedLabel. Results are sorted by kind, then by amount descending.
func GroupByCategory(txs []Transaction, names map[int64]string) []CategoryAmount {
	type key struct {
		name string
		kind TransactionKind
	}
	acc := make(map[key]*CategoryAmount)
	for _, tx := range txs {
		name := UncategorizedLabel
		if tx.CategoryID != nil {
			if n, ok := names[*tx.CategoryID]; ok {
				name = n
			}
		}
		k := key{name: name, kind: tx.Kind}
		ca, ok := acc[k]
		if !ok {
			ca = &CategoryAmount{Name: name, Kind: tx.Kind, Amount: decimal.Zero}
			acc[k] = ca
		}
		ca.Amount = ca.Amount.Add(tx.Amount)
		ca.Count++
	}

	out := make([]CategoryAmount, 0, len(acc))
	for _, ca := range acc {
		out = append(out, *ca)
	}
	order := map[TransactionKind]int{CardSale: 0, CashInflow: 1, CashOutflow: 2}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return order[out[i].Kind] < order[out[j].Kind]
		}
		if c := out[i].Amount.Cmp(out[j].Amount); c != 0 {
			return c > 0
		}
		return out[i].Name < out[j].Name
	})
	return out
}
