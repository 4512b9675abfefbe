package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/libraryhub/backend/internal/circulation"
	"github.com/libraryhub/backend/internal/config"
	"github.com/libraryhub/backend/internal/store/postgres"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func newOverdueCommand() *cobra.Command {
	var asOf string

	cmd := &cobra.Command{
		Use:   "overdue",
		Short: "List unreturned loans past their due date with the fine accrued so far",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			at := time.Now()
			if asOf != "" {
				parsed, err := time.Parse(time.RFC3339, asOf)
				if err != nil {
					return errors.Wrap(err, "Invalid --as-of, want RFC 3339")
				}
				at = parsed
			}

			cfg, err := config.LoadCirculationConfig()
			if err != nil {
				return errors.Wrap(err, "Invalid circulation config")
			}

			ctx := cmd.Context()
			db, err := openDatabase(ctx)
			if err != nil {
				return err
			}
			defer db.Close()

			loans, err := postgres.NewStore(db).OverdueLoans(ctx, at)
			if err != nil {
				return errors.Wrap(err, "Cannot list overdue loans")
			}

			return printOverdue(cmd.OutOrStdout(), circulation.Accrue(loans, at, cfg.FineRate))
		},
	}

	cmd.Flags().StringVar(&asOf, "as-of", "", "report time in RFC 3339 (default now)")
	return cmd
}

func printOverdue(out io.Writer, items []circulation.OverdueItem) error {
	if len(items) == 0 {
		_, err := fmt.Fprintln(out, "No overdue loans.")
		return err
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "LOAN\tMEMBER\tBOOK\tDUE\tDAYS\tFINE")
	for _, item := range items {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%s\n",
			item.TransactionID, item.Username, item.Title,
			item.DueDate.Format("2006-01-02"), item.OverdueDays, item.FineAccrued)
	}
	return w.Flush()
}
