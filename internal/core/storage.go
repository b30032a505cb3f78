package core

import (
	"context"
	"fmt"

	"geuebt/internal/config"
	"geuebt/internal/infra/persistence/badgerstore"
	"geuebt/internal/infra/persistence/memory"
	"geuebt/internal/infra/persistence/mongostore"
	"geuebt/internal/infra/persistence/postgres"
	"geuebt/internal/infra/persistence/sqlite"
	"geuebt/pkg/domain"
)

// OpenDocumentStore constructs the backend selected by cfg.Driver.
func OpenDocumentStore(ctx context.Context, cfg config.Storage) (domain.DocumentStore, error) {
	switch cfg.Driver {
	case config.StorageMemory:
		return memory.NewStore(), nil
	case "", config.StorageSQLite:
		return sqlite.Open(ctx, cfg.SQLitePath)
	case config.StoragePostgres:
		return postgres.Open(ctx, cfg.PostgresDSN)
	case config.StorageBadger:
		return badgerstore.Open(cfg.BadgerDir)
	case config.StorageMongo:
		return mongostore.Open(ctx, cfg.MongoURI, cfg.MongoDatabase)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
