package sqlite_test

import (
	"context"
	"database/sql"
	"strings"
	"testing"

	"github.com/BrandonDHaskell/Portunus/edge/internal/db"
)

// openTestDB returns a private in-memory database with the production
// schema. Closed when the test finishes.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	// Subtest names contain '/', which the sqlite URI would treat as a path.
	name := "test_" + strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	conn, err := db.OpenMemory(context.Background(), name)
	if err != nil {
		t.Fatalf("openTestDB: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// newTestWriter returns a db.Worker backed by conn, closed with the test.
func newTestWriter(t *testing.T, conn *sql.DB) *db.Worker {
	t.Helper()

	w := db.NewWorker(conn)
	t.Cleanup(w.Close)
	return w
}
