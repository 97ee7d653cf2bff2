package main

import (
	"os"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/MrEthical07/sessionkit/refresh/pgledger"
)

// NewMigrateCmd creates the migrate subcommand.
func NewMigrateCmd() *cobra.Command {
	var databaseURL string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the Postgres refresh ledger schema",
		PersistentPreRunE: func(*cobra.Command, []string) error {
			if databaseURL == "" {
				databaseURL = os.Getenv("DATABASE_URL")
			}
			if databaseURL == "" {
				return oops.Code("CONFIG_INVALID").Errorf("--database-url or DATABASE_URL is required")
			}
			return nil
		},
	}
	cmd.PersistentFlags().StringVar(&databaseURL, "database-url", "", "postgres connection URL (default $DATABASE_URL)")

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(databaseURL, func(m *pgledger.Migrator) error {
				if err := m.Up(); err != nil {
					return err
				}
				return printVersion(cmd, m)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Drop the ledger schema and every stored refresh token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(databaseURL, func(m *pgledger.Migrator) error {
				if err := m.Down(); err != nil {
					return err
				}
				cmd.Println("ledger schema dropped")
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show the applied schema version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(databaseURL, func(m *pgledger.Migrator) error {
				return printVersion(cmd, m)
			})
		},
	})

	return cmd
}

func withMigrator(databaseURL string, fn func(*pgledger.Migrator) error) (err error) {
	m, err := pgledger.NewMigrator(databaseURL)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := m.Close(); err == nil {
			err = closeErr
		}
	}()
	return fn(m)
}

func printVersion(cmd *cobra.Command, m *pgledger.Migrator) error {
	version, dirty, err := m.Version()
	if err != nil {
		return err
	}
	cmd.Printf("schema version %d (dirty=%t)\n", version, dirty)
	return nil
}
