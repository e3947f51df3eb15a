package commands

import (
	"fmt"
	"os"
	"text/tabwriter"

	"caixa/internal/core"
	gsheet "caixa/internal/sheets/google"
	"caixa/internal/sheets/memory"
	"caixa/internal/worker"

	"github.com/spf13/cobra"
)

func newExportCommand(a *app) *cobra.Command {
	var rng rangeFlags

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the day summaries of a range to the spreadsheet",
		Long: "Write one row per stored day to the spreadsheet named by GOOGLE_SPREADSHEET_ID.\n" +
			"Without a spreadsheet the rows are printed instead.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			start, end, err := rng.resolve(a.today())
			if err != nil {
				return err
			}
			ledger, err := a.ledger(cmd.Context())
			if err != nil {
				return err
			}
			exporter, err := a.factory.CreateExporter(cmd.Context(), a.backendCfg)
			if err != nil {
				return err
			}

			if err := worker.NewSyncWorker(ledger, exporter).StartupSyncCheck(cmd.Context(), start, end); err != nil {
				return err
			}

			days, err := ledger.ListDays(cmd.Context(), start, end)
			if err != nil {
				return err
			}
			missing := 0
			for _, d := range days {
				if _, ok, err := exporter.ReadDay(cmd.Context(), d.Date); err != nil {
					return err
				} else if !ok {
					missing++
				}
			}
			if missing > 0 {
				return fmt.Errorf("%d of %d days missing from the spreadsheet after export", missing, len(days))
			}

			if sheet, ok := exporter.(*memory.Sheet); ok {
				return printRows(cmd, sheet.Rows())
			}
			printf(cmd.OutOrStdout(), "Exported %d days\n", len(days))
			return nil
		},
	}

	rng.bind(cmd)
	return cmd
}

func printRows(cmd *cobra.Command, rows []core.DayTotals) error {
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	printf(tw, "DATA\tINÍCIO\tSOBRA\tCARTÃO\tDINHEIRO\tTOTAL\n")
	for _, r := range rows {
		t := r.Totals
		printf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", r.Date,
			fixed(t.Opening), fixed(t.Closing), fixed(t.Card), fixed(t.ImpliedSale), fixed(t.TotalRevenue))
	}
	return tw.Flush()
}

func newSheetsAuthCommand(a *app) *cobra.Command {
	var (
		port      string
		tokenFile string
	)

	cmd := &cobra.Command{
		Use:   "sheets-auth",
		Short: "Authorize spreadsheet export with a Google user account",
		Long: "Run the OAuth consent flow with the client in GOOGLE_OAUTH_CLIENT_JSON or\n" +
			"GOOGLE_OAUTH_CLIENT_FILE and store the token for GOOGLE_OAUTH_TOKEN_FILE.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := gsheet.OAuthConfigFromEnv()
			if err != nil {
				return err
			}
			tok, err := gsheet.Authorize(cmd.Context(), cfg, port, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			if err := gsheet.SaveToken(tokenFile, tok); err != nil {
				return err
			}
			printf(cmd.OutOrStdout(), "Token saved to %s. Set GOOGLE_OAUTH_TOKEN_FILE=%s to use it.\n", tokenFile, tokenFile)
			return nil
		},
	}

	defaultPort := os.Getenv("OAUTH_REDIRECT_PORT")
	if defaultPort == "" {
		defaultPort = "8085"
	}
	cmd.Flags().StringVar(&port, "port", defaultPort, "local callback port registered with the OAuth client")
	cmd.Flags().StringVar(&tokenFile, "token-file", gsheet.TokenFileFromEnv(), "where to write the token")
	return cmd
}
