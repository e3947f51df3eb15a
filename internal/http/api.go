package http

import (
	"net/http"

	"caixa/internal/core"
	applog "caixa/internal/log"
	"caixa/internal/services"

	"github.com/shopspring/decimal"
)

// amountJSON encodes a decimal as a bare JSON number with two decimals.
type amountJSON decimal.Decimal

func (a amountJSON) MarshalJSON() ([]byte, error) {
	return []byte(decimal.Decimal(a).StringFixed(core.AmountPlaces)), nil
}

type totalsJSON struct {
	Card          amountJSON `json:"card"`
	CashFromSales amountJSON `json:"cash_from_sales"`
	Withdrawals   amountJSON `json:"withdrawals"`
	Supplies      amountJSON `json:"supplies"`
	Overall       amountJSON `json:"overall"`
	CashAvailable amountJSON `json:"cash_available"`
	Clamped       bool       `json:"clamped"`
	Discrepancy   amountJSON `json:"discrepancy"`
}

type balancesJSON struct {
	Opening amountJSON `json:"opening"`
	Closing amountJSON `json:"closing"`
}

type navJSON struct {
	Previous string `json:"previous"`
	Next     string `json:"next"`
}

type transactionJSON struct {
	ID          int64      `json:"id"`
	Date        string     `json:"date"`
	Kind        string     `json:"kind"`
	KindLabel   string     `json:"kind_label"`
	Amount      amountJSON `json:"amount"`
	CategoryID  *int64     `json:"category_id"`
	Category    string     `json:"category"`
	Description string     `json:"description"`
}

type dayJSON struct {
	Date         string            `json:"date"`
	DateLabel    string            `json:"date_label"`
	Weekday      string            `json:"weekday"`
	Closed       bool              `json:"closed"`
	NonOperating bool              `json:"non_operating"`
	Nav          navJSON           `json:"nav"`
	Balances     balancesJSON      `json:"balances"`
	Totals       totalsJSON        `json:"totals"`
	Formula      string            `json:"formula"`
	Transactions []transactionJSON `json:"transactions"`
}

type reportTotalsJSON struct {
	Card          amountJSON `json:"card"`
	CashFromSales amountJSON `json:"cash_from_sales"`
	Withdrawals   amountJSON `json:"withdrawals"`
	Supplies      amountJSON `json:"supplies"`
	Overall       amountJSON `json:"overall"`
	NetResult     amountJSON `json:"net_result"`
}

type reportDayJSON struct {
	Date     string       `json:"date"`
	Closed   bool         `json:"closed"`
	Balances balancesJSON `json:"balances"`
	Totals   totalsJSON   `json:"totals"`
}

type categoryAmountJSON struct {
	Name   string     `json:"name"`
	Kind   string     `json:"kind"`
	Amount amountJSON `json:"amount"`
	Count  int        `json:"count"`
}

type reportJSON struct {
	Start       string               `json:"start"`
	End         string               `json:"end"`
	Days        int                  `json:"days"`
	ClampedDays int                  `json:"clamped_days"`
	Totals      reportTotalsJSON     `json:"totals"`
	PerDay      []reportDayJSON      `json:"per_day"`
	ByCategory  []categoryAmountJSON `json:"by_category"`
}

func newTotalsJSON(t core.Totals) totalsJSON {
	return totalsJSON{
		Card:          amountJSON(t.Card),
		CashFromSales: amountJSON(t.ImpliedSale),
		Withdrawals:   amountJSON(t.Outflows),
		Supplies:      amountJSON(t.Inflows),
		Overall:       amountJSON(t.TotalRevenue),
		CashAvailable: amountJSON(t.CashAvailable),
		Clamped:       t.Clamped,
		Discrepancy:   amountJSON(t.Discrepancy),
	}
}

func newTransactionJSON(tx core.Transaction, names map[int64]string) transactionJSON {
	out := transactionJSON{
		ID:          tx.ID,
		Date:        tx.Date.String(),
		Kind:        string(tx.Kind),
		KindLabel:   tx.Kind.Label(),
		Amount:      amountJSON(tx.Amount),
		CategoryID:  tx.CategoryID,
		Description: tx.Description,
	}
	if tx.CategoryID != nil {
		out.Category = names[*tx.CategoryID]
	}
	return out
}

func newDayJSON(v services.DayView) dayJSON {
	names := make(map[int64]string, len(v.Categories))
	for _, c := range v.Categories {
		names[c.ID] = c.Name
	}
	txs := make([]transactionJSON, 0, len(v.Transactions))
	for _, tx := range v.Transactions {
		txs = append(txs, newTransactionJSON(tx, names))
	}
	date := v.Day.Date
	return dayJSON{
		Date:         date.String(),
		DateLabel:    formatDateBR(date),
		Weekday:      weekdaysPT[date.Weekday()],
		Closed:       v.Day.IsClosed,
		NonOperating: v.NonOperating,
		Nav:          navJSON{Previous: v.Previous.String(), Next: v.Next.String()},
		Balances: balancesJSON{
			Opening: amountJSON(v.Totals.Opening),
			Closing: amountJSON(v.Totals.Closing),
		},
		Totals:       newTotalsJSON(v.Totals),
		Formula:      formulaText(v.Totals),
		Transactions: txs,
	}
}

func newReportJSON(rt core.RangeTotals) reportJSON {
	out := reportJSON{
		Start:       rt.Start.String(),
		End:         rt.End.String(),
		Days:        rt.Days,
		ClampedDays: rt.ClampedDays,
		Totals: reportTotalsJSON{
			Card:          amountJSON(rt.Card),
			CashFromSales: amountJSON(rt.ImpliedSale),
			Withdrawals:   amountJSON(rt.Outflows),
			Supplies:      amountJSON(rt.Inflows),
			Overall:       amountJSON(rt.TotalRevenue),
			NetResult:     amountJSON(rt.NetResult),
		},
		PerDay:     make([]reportDayJSON, 0, len(rt.PerDay)),
		ByCategory: make([]categoryAmountJSON, 0, len(rt.ByCategory)),
	}
	for _, d := range rt.PerDay {
		out.PerDay = append(out.PerDay, reportDayJSON{
			Date:     d.Date.String(),
			Closed:   d.IsClosed,
			Balances: balancesJSON{Opening: amountJSON(d.Totals.Opening), Closing: amountJSON(d.Totals.Closing)},
			Totals:   newTotalsJSON(d.Totals),
		})
	}
	for _, c := range rt.ByCategory {
		out.ByCategory = append(out.ByCategory, categoryAmountJSON{
			Name:   c.Name,
			Kind:   string(c.Kind),
			Amount: amountJSON(c.Amount),
			Count:  c.Count,
		})
	}
	return out
}

// handleAPIDay serves the data the day page script swaps in when the user
// navigates between days.
func (s *Server) handleAPIDay(w http.ResponseWriter, r *http.Request) {
	date, err := PathDate(r)
	if err != nil {
		s.failJSON(w, r, err, applog.OpRead)
		return
	}
	view, err := s.ledger.DayView(r.Context(), date)
	if err != nil {
		s.failJSON(w, r, err, applog.OpRead)
		return
	}
	NewResponse().JSON(newDayJSON(view)).Write(w)
}

func (s *Server) handleAPIReport(w http.ResponseWriter, r *http.Request) {
	params, err := ParseRangeParams(r.URL.Query(), s.today())
	if err != nil {
		s.failJSON(w, r, err, applog.OpReport)
		return
	}
	report, err := s.ledger.SummarizeRange(r.Context(), params.Start, params.End)
	if err != nil {
		s.failJSON(w, r, err, applog.OpReport)
		return
	}
	NewResponse().JSON(newReportJSON(report)).Write(w)
}
