package storage

import (
	"io"
	"log/slog"
	"testing"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	return newTestDBAt(t, t.TempDir())
}

func newTestDBAt(t *testing.T, dataDir string) *DB {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	db, err := Open(dataDir, logger)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOpenRunsMigrations(t *testing.T) {
	db := newTestDB(t)

	var version int
	if err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version); err != nil {
		t.Fatalf("query schema_migrations: %v", err)
	}
	if version != 1 {
		t.Errorf("schema version = %d, want 1", version)
	}
}

func TestOpenIsIdempotent(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	dir := t.TempDir()

	db1, err := Open(dir, logger)
	if err != nil {
		t.Fatalf("first Open: %v", err)
	}
	db1.Close()

	db2, err := Open(dir, logger)
	if err != nil {
		t.Fatalf("second Open: %v", err)
	}
	defer db2.Close()

	if err := db2.Ping(); err != nil {
		t.Errorf("Ping: %v", err)
	}
}
