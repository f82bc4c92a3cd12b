package handlers

import (
	"clarity/internal/config"
	"clarity/internal/persistence"
	"fmt"

	"github.com/spf13/cobra"
)

// NewMigrateCmd creates the database migration command group.
// Migrations apply to the Postgres backend; SQLite initializes its own
// schema on open.
func NewMigrateCmd() *cobra.Command {
	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage Postgres schema migrations",
	}

	migrateCmd.AddCommand(newMigrateUpCmd())
	migrateCmd.AddCommand(newMigrateStatusCmd())

	return migrateCmd
}

func openPostgres() (*persistence.PostgresDB, error) {
	cfg := config.Get()
	if cfg.Database.Driver != "postgres" {
		return nil, fmt.Errorf("migrations require database.driver=postgres (sqlite manages its own schema)")
	}
	return persistence.NewPostgresDB(cfg.Database.URL)
}

func newMigrateUpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openPostgres()
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			return persistence.NewMigrationManager(db).Migrate(cmd.Context())
		},
	}
}

func newMigrateStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openPostgres()
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			status, err := persistence.NewMigrationManager(db).Status(cmd.Context())
			if err != nil {
				return err
			}

			for _, s := range status {
				state := "pending"
				if s.Applied {
					state = "applied"
				}
				fmt.Printf("%03d  %-30s  %s\n", s.Version, s.Description, state)
			}
			return nil
		},
	}
}
