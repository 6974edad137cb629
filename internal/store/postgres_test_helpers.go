package store

import (
	"context"
	"database/sql"
	"os"
	"testing"

	_ "github.com/lib/pq"

	"github.com/r3e-collective/ticketflow/internal/platform/migrations"
)

func newTestStore(t *testing.T) (*PostgresStore, context.Context) {
	t.Helper()
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set; skipping postgres integration test")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}

	if err := migrations.Apply(context.Background(), db); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	if err := resetTables(db); err != nil {
		t.Fatalf("reset tables: %v", err)
	}

	t.Cleanup(func() {
		_ = resetTables(db)
		_ = db.Close()
	})

	return NewPostgresStore(db), context.Background()
}

func resetTables(db *sql.DB) error {
	_, err := db.Exec(`TRUNCATE tickets RESTART IDENTITY CASCADE`)
	return err
}
