package main

import (
	"fmt"

	"github.com/libraryhub/backend/internal/database"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func newMigrateCommand() *cobra.Command {
	var statusOnly bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Bring the schema up to the current version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, err := openDatabase(ctx)
			if err != nil {
				return err
			}
			defer db.Close()

			current, err := database.CurrentVersion(ctx, db)
			if err != nil {
				return errors.Wrap(err, "Cannot read schema version")
			}
			if statusOnly {
				fmt.Fprintf(cmd.OutOrStdout(), "Schema version %d (latest %d)\n", current, database.SchemaVersion)
				return nil
			}

			if err := database.Migrate(ctx, db); err != nil {
				return errors.Wrap(err, "Migration failed")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Schema at version %d\n", database.SchemaVersion)
			return nil
		},
	}

	cmd.Flags().BoolVar(&statusOnly, "status", false, "only print the recorded schema version")
	return cmd
}
