package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"geuebt/internal/config"
	"geuebt/internal/infra/persistence/postgres"
	"geuebt/internal/infra/persistence/sqlite"
)

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply schema migrations to the configured SQL store",
		Long: `Apply every pending goose migration for the sqlite or postgres storage
driver and print the resulting schema version. Other drivers are schemaless.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := root.load(cmd)
			if err != nil {
				return err
			}
			version, err := migrateStore(cmd.Context(), cfg.Storage)
			if err != nil {
				return err
			}
			logger.Debug("migrations applied", "driver", cfg.Storage.Driver, "version", version)
			return printMigration(cmd.OutOrStdout(), cfg.Storage.Driver, version)
		},
	}
}

// migrateStore opens the store, which applies pending migrations, and reads
// back the schema version. It returns -1 for schemaless drivers.
func migrateStore(ctx context.Context, cfg config.Storage) (int64, error) {
	switch cfg.Driver {
	case config.StorageSQLite:
		store, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return 0, err
		}
		defer func() { _ = store.Close() }()
		return sqlite.Version(store.DB())
	case config.StoragePostgres:
		store, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return 0, err
		}
		defer func() { _ = store.Close() }()
		return postgres.Version(store.DB())
	default:
		return -1, nil
	}
}

func printMigration(w io.Writer, driver string, version int64) error {
	if version < 0 {
		_, err := fmt.Fprintf(w, "storage driver %q has no schema migrations\n", driver)
		return err
	}
	_, err := fmt.Fprintf(w, "%s schema at version %d\n", driver, version)
	return err
}
