package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ignite/mailcraft/internal/config"
	"github.com/ignite/mailcraft/internal/repository/postgres"
)

type loadFunc func() (*config.Config, error)

func migrateCmd(load loadFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if cfg.Database.Memory {
				return errors.New("nothing to migrate: database.memory is set")
			}
			db, err := postgres.Open(cmd.Context(), cfg.Database)
			if err != nil {
				return err
			}
			defer db.Close()

			n, err := postgres.Migrate(cmd.Context(), db)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "applied %d migration(s)\n", n)
			return nil
		},
	}
}
