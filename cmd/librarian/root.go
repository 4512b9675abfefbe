package main

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/libraryhub/backend/internal/config"
	"github.com/libraryhub/backend/internal/database"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "librarian",
		Short:         "Administer the library circulation database",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			config.Load()
		},
	}

	root.AddCommand(newMigrateCommand(), newUserCommand(), newOverdueCommand())
	return root
}

func openDatabase(ctx context.Context) (*sqlx.DB, error) {
	db, err := database.InitDB(ctx, database.GetConfig())
	if err != nil {
		return nil, errors.Wrap(err, "Database unavailable")
	}
	return db, nil
}
