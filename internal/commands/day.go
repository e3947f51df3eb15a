package commands

import (
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"

	"caixa/internal/core"

	"github.com/spf13/cobra"
)

func newDayCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "day [date]",
		Short: "Show the reconciled totals and transactions of a day",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			date, err := a.dateArg(args)
			if err != nil {
				return err
			}
			ledger, err := a.ledger(cmd.Context())
			if err != nil {
				return err
			}
			view, err := ledger.DayView(cmd.Context(), date)
			if err != nil {
				return err
			}

			names := make(map[int64]string, len(view.Categories))
			for _, c := range view.Categories {
				names[c.ID] = c.Name
			}

			t := view.Totals
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			printf(tw, "Dia\t%s\n", date)
			if view.NonOperating {
				printf(tw, "Situação\tfechado\n")
			}
			printf(tw, "Saldo inicial\t%s\n", core.FormatBRL(t.Opening))
			printf(tw, "Saldo final\t%s\n", core.FormatBRL(t.Closing))
			printf(tw, "Cartão/Pix\t%s\n", core.FormatBRL(t.Card))
			printf(tw, "Suprimentos\t%s\n", core.FormatBRL(t.Inflows))
			printf(tw, "Saídas\t%s\n", core.FormatBRL(t.Outflows))
			printf(tw, "Vendas em dinheiro\t%s\n", core.FormatBRL(t.ImpliedSale))
			printf(tw, "Total\t%s\n", core.FormatBRL(t.TotalRevenue))
			if t.Clamped {
				printf(tw, "Diferença\t%s\n", core.FormatBRL(t.Discrepancy))
			}
			if err := tw.Flush(); err != nil {
				return err
			}

			if len(view.Transactions) == 0 {
				return nil
			}
			printf(cmd.OutOrStdout(), "\n")
			tw = tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			printf(tw, "ID\tTIPO\tVALOR\tCATEGORIA\tDESCRIÇÃO\n")
			for _, tx := range view.Transactions {
				category := ""
				if tx.CategoryID != nil {
					category = names[*tx.CategoryID]
				}
				printf(tw, "%d\t%s\t%s\t%s\t%s\n", tx.ID, tx.Kind, tx.Amount.StringFixed(core.AmountPlaces), category, tx.Description)
			}
			return tw.Flush()
		},
	}
}

func newAddCommand(a *app) *cobra.Command {
	var (
		kind        string
		amount      string
		categoryID  int64
		description string
	)

	cmd := &cobra.Command{
		Use:   "add [date]",
		Short: "Record a transaction",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			date, err := a.dateArg(args)
			if err != nil {
				return err
			}
			value, err := core.ParseAmount(amount)
			if err != nil {
				return fmt.Errorf("invalid --amount %q: %w", amount, err)
			}
			tx := core.Transaction{
				Date:        date,
				Kind:        core.TransactionKind(strings.ToUpper(strings.TrimSpace(kind))),
				Amount:      value,
				Description: description,
			}
			if categoryID > 0 {
				tx.CategoryID = &categoryID
			}

			ledger, err := a.ledger(cmd.Context())
			if err != nil {
				return err
			}
			saved, err := ledger.RecordTransaction(cmd.Context(), tx)
			if err != nil {
				return err
			}
			printf(cmd.OutOrStdout(), "Recorded transaction %d on %s\n", saved.ID, saved.Date)
			return nil
		},
	}

	cmd.Flags().StringVar(&kind, "kind", "", "CARD_SALE, CASH_INFLOW or CASH_OUTFLOW")
	cmd.Flags().StringVar(&amount, "amount", "", "positive amount, e.g. 12,50")
	cmd.Flags().Int64Var(&categoryID, "category", 0, "category id")
	cmd.Flags().StringVar(&description, "description", "", "free text")
	_ = cmd.MarkFlagRequired("kind")
	_ = cmd.MarkFlagRequired("amount")

	return cmd
}

func newBalanceCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "balance <date> <amount>",
		Short: "Set the counted closing balance of a day",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			date, err := a.dateArg(args[:1])
			if err != nil {
				return err
			}
			value, err := core.ParseBalance(args[1])
			if err != nil {
				return fmt.Errorf("invalid balance %q: %w", args[1], err)
			}
			ledger, err := a.ledger(cmd.Context())
			if err != nil {
				return err
			}
			day, err := ledger.SetClosingBalance(cmd.Context(), date, value)
			if err != nil {
				return err
			}
			printf(cmd.OutOrStdout(), "Closing balance of %s: %s\n", date, core.FormatBRL(day.ClosingBalance))
			return nil
		},
	}
}

func newCloseCommand(a *app) *cobra.Command {
	var reopen bool

	cmd := &cobra.Command{
		Use:   "close [date]",
		Short: "Mark a day as non-operating",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			date, err := a.dateArg(args)
			if err != nil {
				return err
			}
			ledger, err := a.ledger(cmd.Context())
			if err != nil {
				return err
			}
			day, err := ledger.SetClosed(cmd.Context(), date, !reopen)
			if err != nil {
				return err
			}
			printf(cmd.OutOrStdout(), "%s closed=%s opening=%s closing=%s\n",
				date, strconv.FormatBool(day.IsClosed),
				core.FormatBRL(day.OpeningBalance), core.FormatBRL(day.ClosingBalance))
			return nil
		},
	}

	cmd.Flags().BoolVar(&reopen, "reopen", false, "clear the non-operating flag instead")
	return cmd
}
