package core

import (
	"context"
	"path/filepath"
	"testing"

	"geuebt/internal/config"
	"geuebt/internal/infra/persistence/badgerstore"
	"geuebt/internal/infra/persistence/memory"
	"geuebt/internal/infra/persistence/sqlite"
)

func TestOpenDocumentStoreDrivers(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	store, err := OpenDocumentStore(ctx, config.Storage{Driver: config.StorageMemory})
	if err != nil {
		t.Fatalf("memory: %v", err)
	}
	if _, ok := store.(*memory.Store); !ok {
		t.Fatalf("expected memory store, got %T", store)
	}
	_ = store.Close()

	store, err = OpenDocumentStore(ctx, config.Storage{Driver: config.StorageSQLite, SQLitePath: filepath.Join(dir, "r.db")})
	if err != nil {
		t.Fatalf("sqlite: %v", err)
	}
	if _, ok := store.(*sqlite.Store); !ok {
		t.Fatalf("expected sqlite store, got %T", store)
	}
	_ = store.Close()

	store, err = OpenDocumentStore(ctx, config.Storage{Driver: config.StorageBadger, BadgerDir: filepath.Join(dir, "kv")})
	if err != nil {
		t.Fatalf("badger: %v", err)
	}
	if _, ok := store.(*badgerstore.Store); !ok {
		t.Fatalf("expected badger store, got %T", store)
	}
	_ = store.Close()

	if _, err := OpenDocumentStore(ctx, config.Storage{Driver: "cassandra"}); err == nil {
		t.Fatalf("expected unknown driver error")
	}
}
