package testutil

import (
	"testing"

	"dt-go/internal/config"
	"dt-go/internal/database"
)

// NewTestDatabase creates a new in-memory SQLite history database with
// migrations applied. The database is automatically closed when the test completes.
func NewTestDatabase(t *testing.T) *database.SQLiteDatabase {
	t.Helper()

	db, err := database.NewDatabaseFromConfig(config.HistoryConfig{Type: "memory"}, FixedClock())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})

	return db
}
