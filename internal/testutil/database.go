package testutil

import (
	"testing"

	"myvc/internal/database"
	"myvc/internal/vc"
)

// NewTestDatabase creates a new in-memory SQLite command journal with the
// schema applied. The database is closed when the test completes.
func NewTestDatabase(t *testing.T, clock vc.Clock) vc.Database {
	t.Helper()

	db, err := database.NewSQLiteDatabase(":memory:", clock)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() {
		db.Close()
	})
	return db
}
