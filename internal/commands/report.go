package commands

import (
	"encoding/json"
	"text/tabwriter"

	"caixa/internal/core"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

type reportTotals struct {
	Card        string `json:"card"`
	CashSales   string `json:"cash_from_sales"`
	Supplies    string `json:"supplies"`
	Withdrawals string `json:"withdrawals"`
	Overall     string `json:"overall"`
	NetResult   string `json:"net_result"`
}

type reportDay struct {
	Date    string `json:"date"`
	Closed  bool   `json:"closed"`
	Clamped bool   `json:"clamped"`
	Opening string `json:"opening"`
	Closing string `json:"closing"`
	Card    string `json:"card"`
	Cash    string `json:"cash_from_sales"`
	Overall string `json:"overall"`
}

type reportCategory struct {
	Name   string `json:"name"`
	Kind   string `json:"kind"`
	Amount string `json:"amount"`
	Count  int    `json:"count"`
}

type reportOutput struct {
	Start       string           `json:"start"`
	End         string           `json:"end"`
	Days        int              `json:"days"`
	ClampedDays int              `json:"clamped_days"`
	Totals      reportTotals     `json:"totals"`
	PerDay      []reportDay      `json:"per_day"`
	ByCategory  []reportCategory `json:"by_category"`
}

func fixed(d decimal.Decimal) string {
	return d.StringFixed(core.AmountPlaces)
}

func newReportOutput(r core.RangeTotals) reportOutput {
	out := reportOutput{
		Start:       r.Start.String(),
		End:         r.End.String(),
		Days:        r.Days,
		ClampedDays: r.ClampedDays,
		Totals: reportTotals{
			Card:        fixed(r.Card),
			CashSales:   fixed(r.ImpliedSale),
			Supplies:    fixed(r.Inflows),
			Withdrawals: fixed(r.Outflows),
			Overall:     fixed(r.TotalRevenue),
			NetResult:   fixed(r.NetResult),
		},
		PerDay:     make([]reportDay, 0, len(r.PerDay)),
		ByCategory: make([]reportCategory, 0, len(r.ByCategory)),
	}
	for _, d := range r.PerDay {
		out.PerDay = append(out.PerDay, reportDay{
			Date:    d.Date.String(),
			Closed:  d.IsClosed,
			Clamped: d.Totals.Clamped,
			Opening: fixed(d.Totals.Opening),
			Closing: fixed(d.Totals.Closing),
			Card:    fixed(d.Totals.Card),
			Cash:    fixed(d.Totals.ImpliedSale),
			Overall: fixed(d.Totals.TotalRevenue),
		})
	}
	for _, c := range r.ByCategory {
		out.ByCategory = append(out.ByCategory, reportCategory{
			Name:   c.Name,
			Kind:   string(c.Kind),
			Amount: fixed(c.Amount),
			Count:  c.Count,
		})
	}
	return out
}

func newReportCommand(a *app) *cobra.Command {
	var (
		rng    rangeFlags
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Summarize a date range",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			start, end, err := rng.resolve(a.today())
			if err != nil {
				return err
			}
			ledger, err := a.ledger(cmd.Context())
			if err != nil {
				return err
			}
			report, err := ledger.SummarizeRange(cmd.Context(), start, end)
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(newReportOutput(report))
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			printf(tw, "Período\t%s a %s (%d dias)\n", start, end, report.Days)
			printf(tw, "Cartão/Pix\t%s\n", core.FormatBRL(report.Card))
			printf(tw, "Vendas em dinheiro\t%s\n", core.FormatBRL(report.ImpliedSale))
			printf(tw, "Suprimentos\t%s\n", core.FormatBRL(report.Inflows))
			printf(tw, "Saídas\t%s\n", core.FormatBRL(report.Outflows))
			printf(tw, "Total\t%s\n", core.FormatBRL(report.TotalRevenue))
			printf(tw, "Resultado\t%s\n", core.FormatBRL(report.NetResult))
			if report.ClampedDays > 0 {
				printf(tw, "Dias com diferença\t%d\n", report.ClampedDays)
			}
			if len(report.ByCategory) > 0 {
				printf(tw, "\nCATEGORIA\tTIPO\tVALOR\tQTD\n")
				for _, c := range report.ByCategory {
					printf(tw, "%s\t%s\t%s\t%d\n", c.Name, c.Kind, core.FormatBRL(c.Amount), c.Count)
				}
			}
			return tw.Flush()
		},
	}

	rng.bind(cmd)
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the report as JSON")
	return cmd
}
