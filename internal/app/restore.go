package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"dt-go/internal/config"
	"dt-go/internal/database"
	"dt-go/internal/dt"
	"dt-go/internal/vault"
)

// RestoreHistory replaces the local history database with the archived
// snapshot. v may be nil, in which case the archive is built from config.
// It returns the version of the restored snapshot.
func RestoreHistory(ctx context.Context, cfg *config.Config, v dt.Vault) (int64, error) {
	if cfg.History.Type != "sqlite" {
		return 0, fmt.Errorf("history type %q cannot be restored", cfg.History.Type)
	}
	if v == nil {
		var err error
		v, err = vault.NewVaultFromConfig(ctx, cfg.Archive)
		if err != nil {
			return 0, fmt.Errorf("creating vault: %w", err)
		}
		if v == nil {
			return 0, errors.New("no archive configured")
		}
	}

	version, err := v.GetMetadataVersion(ArchiveNamespace, ArchiveName)
	if err != nil {
		return 0, fmt.Errorf("checking archived history version: %w", err)
	}
	if version == 0 {
		return 0, errors.New("the archive holds no history")
	}

	if err := os.MkdirAll(cfg.History.DataDir, 0755); err != nil {
		return 0, fmt.Errorf("creating data dir: %w", err)
	}
	dest := filepath.Join(cfg.History.DataDir, database.HistoryFile)
	tmp, err := os.CreateTemp(cfg.History.DataDir, "history-restore-*.db")
	if err != nil {
		return 0, fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := v.GetMetadata(ArchiveNamespace, ArchiveName, tmp); err != nil {
		tmp.Close()
		return 0, fmt.Errorf("downloading history: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("writing history: %w", err)
	}

	db, err := database.NewSQLiteDatabase(tmp.Name(), dt.RealClock{})
	if err != nil {
		return 0, fmt.Errorf("archived history is not usable: %w", err)
	}
	db.Close()

	if err := os.Rename(tmp.Name(), dest); err != nil {
		return 0, fmt.Errorf("replacing history: %w", err)
	}
	return version, nil
}
