package vault

import (
	"context"
	"path/filepath"
	"testing"

	"dt-go/internal/config"
)

func TestNewVaultFromConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.VaultConfig
		wantErr bool
		wantNil bool
	}{
		{
			name:    "memory vault",
			cfg:     config.VaultConfig{Type: "memory", Name: "test-memory"},
			wantErr: false,
			wantNil: false,
		},
		{
			name: "filesystem vault",
			cfg: config.VaultConfig{
				Type:        "filesystem",
				Name:        "test-fs",
				FSVaultRoot: filepath.Join(t.TempDir(), "vault"),
			},
			wantErr: false,
			wantNil: false,
		},
		{
			name:    "filesystem vault without root",
			cfg:     config.VaultConfig{Type: "filesystem", Name: "test-fs"},
			wantErr: true,
			wantNil: true,
		},
		{
			name:    "s3 vault without bucket",
			cfg:     config.VaultConfig{Type: "s3", Name: "test-s3"},
			wantErr: true,
			wantNil: true,
		},
		{
			name: "s3 vault with static credentials",
			cfg: config.VaultConfig{
				Type:        "s3",
				Name:        "test-s3",
				S3Bucket:    "dt-archive",
				S3Region:    "us-east-1",
				S3Endpoint:  "http://localhost:9000",
				S3AccessKey: "minio",
				S3SecretKey: "minio123",
			},
			wantErr: false,
			wantNil: false,
		},
		{
			name:    "archiving disabled",
			cfg:     config.VaultConfig{Type: "none"},
			wantErr: false,
			wantNil: true,
		},
		{
			name:    "unknown vault type",
			cfg:     config.VaultConfig{Type: "unknown", Name: "test-unknown"},
			wantErr: true,
			wantNil: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewVaultFromConfig(context.Background(), tt.cfg)

			if (err != nil) != tt.wantErr {
				t.Errorf("NewVaultFromConfig() error = %v, wantErr %v", err, tt.wantErr)
				return
			}

			if (got == nil) != tt.wantNil {
				t.Errorf("NewVaultFromConfig() = %v, wantNil %v", got, tt.wantNil)
			}
		})
	}
}
