package commands

import (
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"

	"caixa/internal/core"

	"github.com/spf13/cobra"
)

func newCategoriesCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "categories",
		Short: "Manage transaction categories",
	}
	cmd.AddCommand(
		newCategoriesListCommand(a),
		newCategoriesAddCommand(a),
		newCategoriesDeleteCommand(a),
	)
	return cmd
}

func parseKindFlag(s string) (core.TransactionKind, error) {
	k := core.TransactionKind(strings.ToUpper(strings.TrimSpace(s)))
	if k != "" && !k.IsValid() {
		return "", fmt.Errorf("%w: %q", core.ErrInvalidKind, s)
	}
	return k, nil
}

func newCategoriesListCommand(a *app) *cobra.Command {
	var kind string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List categories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			k, err := parseKindFlag(kind)
			if err != nil {
				return err
			}
			ledger, err := a.ledger(cmd.Context())
			if err != nil {
				return err
			}
			cats, err := ledger.ListCategories(cmd.Context(), k)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			printf(tw, "ID\tTIPO\tNOME\n")
			for _, c := range cats {
				printf(tw, "%d\t%s\t%s\n", c.ID, c.Kind, c.Name)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVar(&kind, "kind", "", "only list categories of this kind")
	return cmd
}

func newCategoriesAddCommand(a *app) *cobra.Command {
	var kind string

	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Create a category",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := parseKindFlag(kind)
			if err != nil {
				return err
			}
			ledger, err := a.ledger(cmd.Context())
			if err != nil {
				return err
			}
			c, err := ledger.CreateCategory(cmd.Context(), args[0], k)
			if err != nil {
				return err
			}
			printf(cmd.OutOrStdout(), "Created category %d %s (%s)\n", c.ID, c.Name, c.Kind)
			return nil
		},
	}

	cmd.Flags().StringVar(&kind, "kind", "", "CARD_SALE, CASH_INFLOW or CASH_OUTFLOW")
	_ = cmd.MarkFlagRequired("kind")
	return cmd
}

func newCategoriesDeleteCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a category that no transaction references",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || id <= 0 {
				return fmt.Errorf("invalid category id %q", args[0])
			}
			ledger, err := a.ledger(cmd.Context())
			if err != nil {
				return err
			}
			deleted, err := ledger.DeleteCategory(cmd.Context(), id)
			if err != nil {
				return err
			}
			if !deleted {
				printf(cmd.OutOrStdout(), "Category %d is in use and was kept\n", id)
				return nil
			}
			printf(cmd.OutOrStdout(), "Deleted category %d\n", id)
			return nil
		},
	}
}
