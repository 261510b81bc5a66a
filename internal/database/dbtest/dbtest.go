// Package dbtest opens throwaway in-memory databases for tests.
package dbtest

import (
	"database/sql"
	"testing"

	"github.com/isdelr/chirp-be/internal/database"
)

// Open returns a migrated in-memory database that is closed when the test ends.
// The pool is pinned to a single connection because every new SQLite
// connection to :memory: would otherwise see its own empty database.
func Open(t testing.TB) *sql.DB {
	t.Helper()

	db, err := database.New(":memory:")
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate database: %v", err)
	}
	return db
}
