package cmd

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/joy095/dispatch/config"
	"github.com/joy095/dispatch/config/db"
	"github.com/joy095/dispatch/repository/postgres"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the postgres schema",
	RunE: func(cmd *cobra.Command, _ []string) error {
		settings, err := config.Load()
		if err != nil {
			return err
		}
		if settings.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required")
		}

		pool, err := db.Connect(cmd.Context(), settings.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close(pool)
		return postgres.Migrate(cmd.Context(), pool)
	},
}
