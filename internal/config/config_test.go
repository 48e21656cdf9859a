package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func sampleConfig() *Config {
	return &Config{
		LogDir:  "/home/user/.local/share/dt/log",
		History: HistoryConfig{Type: "sqlite", DataDir: "/home/user/.local/share/dt/db"},
		Archive: VaultConfig{Type: "filesystem", Name: "local", FSVaultRoot: "/backup/vault"},
		Tasks: map[string]TaskConfig{
			"build": {Command: "npm run build", Dir: "web"},
		},
		Deployments: []Deployment{
			{
				Name:         "production",
				BuildTask:    "build",
				LocalDir:     "build",
				RemoteDir:    "/var/www/proj",
				ReleaseCount: 3,
				CheckGit:     true,
				GitBranch:    "main",
				User:         "deploy",
				Targets: []TargetOverride{
					{Remote: ptr("web01")},
					{Remote: ptr("web02"), Port: ptr(2222)},
				},
			},
		},
	}
}

func TestManager_ReadWrite_RoundTrip(t *testing.T) {
	for _, format := range []Format{FormatTOML, FormatYAML} {
		original := sampleConfig()

		var buf bytes.Buffer
		m := &Manager{Format: format}

		if err := m.Write(&buf, original); err != nil {
			t.Fatalf("Write() error = %v", err)
		}

		got, err := m.Read(&buf)
		if err != nil {
			t.Fatalf("Read() error = %v", err)
		}

		if got.LogDir != original.LogDir {
			t.Errorf("LogDir = %q, want %q", got.LogDir, original.LogDir)
		}
		if got.History.Type != "sqlite" {
			t.Errorf("History.Type = %q, want %q", got.History.Type, "sqlite")
		}
		if got.Archive.FSVaultRoot != "/backup/vault" {
			t.Errorf("Archive.FSVaultRoot = %q, want %q", got.Archive.FSVaultRoot, "/backup/vault")
		}
		if got.Tasks["build"].Command != "npm run build" {
			t.Errorf("Tasks[build].Command = %q, want %q", got.Tasks["build"].Command, "npm run build")
		}
		if len(got.Deployments) != 1 {
			t.Fatalf("len(Deployments) = %d, want 1", len(got.Deployments))
		}
		d := got.Deployments[0]
		if d.ReleaseCount != 3 {
			t.Errorf("ReleaseCount = %d, want 3", d.ReleaseCount)
		}
		if len(d.Targets) != 2 {
			t.Fatalf("len(Targets) = %d, want 2", len(d.Targets))
		}
		if d.Targets[0].Remote == nil || *d.Targets[0].Remote != "web01" {
			t.Errorf("Targets[0].Remote = %v, want web01", d.Targets[0].Remote)
		}
		if d.Targets[0].Port != nil {
			t.Errorf("Targets[0].Port = %v, want nil", *d.Targets[0].Port)
		}
		if d.Targets[1].Port == nil || *d.Targets[1].Port != 2222 {
			t.Errorf("Targets[1].Port = %v, want 2222", d.Targets[1].Port)
		}
	}
}

func TestFormatForPath(t *testing.T) {
	tests := []struct {
		path string
		want Format
	}{
		{path: "dt.toml", want: FormatTOML},
		{path: "deploy.yml", want: FormatYAML},
		{path: "deploy.YAML", want: FormatYAML},
		{path: "dtconfig", want: FormatTOML},
	}
	for _, tt := range tests {
		if got := FormatForPath(tt.path); got != tt.want {
			t.Errorf("FormatForPath(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestNewConfig(t *testing.T) {
	cfg := NewConfig("/data/dt")

	if cfg.LogDir != "/data/dt/log" {
		t.Errorf("LogDir = %q, want %q", cfg.LogDir, "/data/dt/log")
	}
	if cfg.History.DataDir != "/data/dt/db" {
		t.Errorf("History.DataDir = %q, want %q", cfg.History.DataDir, "/data/dt/db")
	}
	if cfg.Secrets.IdentityPath != "/data/dt/keys/dt.key" {
		t.Errorf("Secrets.IdentityPath = %q, want %q", cfg.Secrets.IdentityPath, "/data/dt/keys/dt.key")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("starter config does not validate: %v", err)
	}
}

func TestConfig_Deployment(t *testing.T) {
	cfg := sampleConfig()

	d, err := cfg.Deployment("production")
	if err != nil {
		t.Fatalf("Deployment() error = %v", err)
	}
	if d.Strategy != DefaultStrategy {
		t.Errorf("Strategy = %q, want %q", d.Strategy, DefaultStrategy)
	}
	if d.ReleaseCount != 3 {
		t.Errorf("ReleaseCount = %d, want explicit 3", d.ReleaseCount)
	}
	if d.ReleaseDir != DefaultReleaseDir || d.PublicDir != DefaultPublicDir {
		t.Errorf("dirs = %q/%q, want defaults", d.ReleaseDir, d.PublicDir)
	}
	if d.Port != DefaultPort {
		t.Errorf("Port = %d, want %d", d.Port, DefaultPort)
	}

	// Defaults are applied to a copy.
	if cfg.Deployments[0].Strategy != "" {
		t.Error("Deployment() mutated the stored deployment")
	}

	if _, err := cfg.Deployment("staging"); err == nil {
		t.Error("Deployment() expected error for unknown name")
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{
			name:    "relative remote dir",
			mutate:  func(c *Config) { c.Deployments[0].RemoteDir = "var/www" },
			wantErr: "RemoteDir",
		},
		{
			name:    "check git without branch",
			mutate:  func(c *Config) { c.Deployments[0].GitBranch = "" },
			wantErr: "GitBranch",
		},
		{
			name:    "unknown strategy",
			mutate:  func(c *Config) { c.Deployments[0].Strategy = "blue-green" },
			wantErr: "Strategy",
		},
		{
			name:    "unknown task",
			mutate:  func(c *Config) { c.Deployments[0].PostDeployTask = "notify" },
			wantErr: `unknown task "notify"`,
		},
		{
			name: "duplicate deployment",
			mutate: func(c *Config) {
				c.Deployments = append(c.Deployments, c.Deployments[0])
			},
			wantErr: "duplicate deployment",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := sampleConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestInit(t *testing.T) {
	t.Run("creates config file", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "dt.toml")

		if err := Init(path, NewConfig(dir)); err != nil {
			t.Fatalf("Init() error = %v", err)
		}

		cfg, err := ReadFromFile(path)
		if err != nil {
			t.Fatalf("ReadFromFile() error = %v", err)
		}
		if len(cfg.Deployments) != 1 {
			t.Errorf("len(Deployments) = %d, want 1", len(cfg.Deployments))
		}
	})

	t.Run("writes yaml for .yml paths", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "deploy.yml")

		if err := Init(path, NewConfig(dir)); err != nil {
			t.Fatalf("Init() error = %v", err)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("reading config: %v", err)
		}
		if !strings.Contains(string(data), "deployments:") {
			t.Errorf("expected yaml output, got:\n%s", data)
		}
	})

	t.Run("fails if file already exists", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "dt.toml")

		if err := Init(path, NewConfig(dir)); err != nil {
			t.Fatalf("first Init() error = %v", err)
		}
		if err := Init(path, NewConfig(dir)); err == nil {
			t.Error("second Init() expected error, got nil")
		}
	})
}

func TestReadFromFile_Missing(t *testing.T) {
	_, err := ReadFromFile(filepath.Join(t.TempDir(), "nope.toml"))
	if err == nil {
		t.Error("ReadFromFile() expected error for missing file")
	}
}
