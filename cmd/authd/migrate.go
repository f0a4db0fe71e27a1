package main

import (
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/mikepodsy/my-finance-app/internal/config"
	"github.com/mikepodsy/my-finance-app/internal/database"
)

// NewMigrateCmd creates the migrate subcommand.
func NewMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		Long:  `Apply all pending migrations to the configured SQL database.`,
		RunE:  runMigrate,
	}
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return oops.Code("CONFIG_INVALID").Wrap(err)
	}
	if cfg.Database.Driver == "memory" {
		return oops.Code("CONFIG_INVALID").Errorf("the memory driver has no schema to migrate")
	}

	ctx := cmd.Context()

	cmd.Println("Connecting to database...")
	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").With("operation", "connect to database").Wrap(err)
	}
	defer db.Close()

	cmd.Println("Running migrations...")
	if err := database.RunMigrations(ctx, db, cfg.Database.Driver); err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "run migrations").Wrap(err)
	}

	v, err := database.SchemaVersion(ctx, db, cfg.Database.Driver)
	if err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "read schema version").Wrap(err)
	}
	cmd.Printf("Migrations completed successfully (schema version %d)\n", v)
	return nil
}
