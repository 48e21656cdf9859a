package database

import (
	"fmt"
	"os"
	"path/filepath"

	"dt-go/internal/config"
	"dt-go/internal/dt"
)

// HistoryFile is the name of the history database within the data dir.
const HistoryFile = "history.db"

// NewDatabaseFromConfig creates a HistoryStore implementation based on the history config type.
// It returns nil without error when history is disabled.
func NewDatabaseFromConfig(cfg config.HistoryConfig, clock dt.Clock) (*SQLiteDatabase, error) {
	switch cfg.Type {
	case "sqlite":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for sqlite history")
		}
		if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
			return nil, fmt.Errorf("creating data dir: %w", err)
		}
		return NewSQLiteDatabase(filepath.Join(cfg.DataDir, HistoryFile), clock)
	case "memory":
		return NewSQLiteDatabase(":memory:", clock)
	case "none", "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown history type: %s", cfg.Type)
	}
}
