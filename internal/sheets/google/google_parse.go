package google

import (
	"fmt"
	"strings"
	"time"

	"caixa/internal/core"

	"github.com/shopspring/decimal"
)

// Columns A..J of an exported day.
var header = []string{
	"Data", "Início", "Sobrou", "Cartão", "Suprimentos", "Saídas",
	"Dinheiro", "Total", "Fechado", "Atualizado",
}

const lastColumn = "J"

// formatRow renders a day in header order. Amounts go out as numbers so the
// sheet can sum them.
func formatRow(d core.DayTotals, updated time.Time) []any {
	closed := "Não"
	if d.IsClosed {
		closed = "Sim"
	}
	t := d.Totals
	return []any{
		d.Date.String(),
		t.Opening.InexactFloat64(),
		t.Closing.InexactFloat64(),
		t.Card.InexactFloat64(),
		t.Inflows.InexactFloat64(),
		t.Outflows.InexactFloat64(),
		t.ImpliedSale.InexactFloat64(),
		t.TotalRevenue.InexactFloat64(),
		closed,
		updated.UTC().Format(time.RFC3339),
	}
}

// parseRow reverses formatRow. Derived fields are recomputed from the stored
// inputs rather than trusted.
func parseRow(row []any) (core.DayTotals, error) {
	cols := toStrings(row)
	if len(cols) < 9 {
		return core.DayTotals{}, fmt.Errorf("expected %d columns, got %d", len(header), len(cols))
	}
	date, err := core.ParseDate(cols[0])
	if err != nil {
		return core.DayTotals{}, fmt.Errorf("date %q: %w", cols[0], err)
	}

	amounts := make([]decimal.Decimal, 5)
	for i := range amounts {
		v, err := parseCell(cols[i+1])
		if err != nil {
			return core.DayTotals{}, fmt.Errorf("column %s: %w", header[i+1], err)
		}
		amounts[i] = v
	}

	totals := core.ComputeTotals(amounts[0], amounts[1], core.KindSums{
		Card:    amounts[2],
		Inflow:  amounts[3],
		Outflow: amounts[4],
	})
	return core.DayTotals{
		Date:     date,
		IsClosed: strings.EqualFold(cols[8], "Sim"),
		Totals:   totals,
	}, nil
}

// parseCell accepts numbers as the API returns them, plus comma decimals
// typed by hand. Empty cells are zero.
func parseCell(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, nil
	}
	s = strings.TrimPrefix(s, "R$")
	s = strings.TrimSpace(s)
	if strings.Contains(s, ",") {
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, err
	}
	return core.RoundAmount(d), nil
}

// findDateRow returns the 0-based index of the row whose first cell is date.
func findDateRow(values [][]any, date core.Date) int {
	want := date.String()
	for i, row := range values {
		if len(row) == 0 {
			continue
		}
		if strings.TrimSpace(fmt.Sprint(row[0])) == want {
			return i
		}
	}
	return -1
}

func toStrings(in []any) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}

func toAny(in []string) []any {
	out := make([]any, len(in))
	for i, v := range in {
		out[i] = v
	}
	return out
}
