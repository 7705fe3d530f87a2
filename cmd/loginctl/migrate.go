package main

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/spf13/cobra"

	"github.com/BradenHooton/loginpopup/internal/database"
)

var migrateCmd = &cobra.Command{
	Use:       "migrate [up|down|status]",
	Short:     "Apply, roll back or list database migrations",
	Args:      cobra.ExactValidArgs(1),
	ValidArgs: []string{"up", "down", "status"},
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		db, err := sql.Open("postgres", cfg.Database.URL())
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()

		if err := database.Migrate(cmd.Context(), db, args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "migrate %s: done\n", args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
