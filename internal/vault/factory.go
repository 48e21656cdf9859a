package vault

import (
	"context"
	"fmt"

	"dt-go/internal/config"
	"dt-go/internal/dt"
)

// NewVaultFromConfig creates a Vault implementation based on the vault config type.
// It returns nil without error when archiving is disabled.
func NewVaultFromConfig(ctx context.Context, cfg config.VaultConfig) (dt.Vault, error) {
	switch cfg.Type {
	case "memory":
		return NewMemoryVault(cfg.Name), nil
	case "s3":
		v, err := NewS3Vault(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return v, nil
	case "filesystem":
		if cfg.FSVaultRoot == "" {
			return nil, fmt.Errorf("filesystem vault requires fs_vault_root to be set")
		}
		v, err := NewFileSystemVault(cfg.Name, cfg.FSVaultRoot)
		if err != nil {
			return nil, err
		}
		return v, nil
	case "none", "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown vault type: %s", cfg.Type)
	}
}
