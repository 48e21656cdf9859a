package app

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultPaths_FromEnv(t *testing.T) {
	t.Setenv(EnvConfigPath, "/etc/dt/deploy.yml")
	t.Setenv(EnvHome, "/srv/dt")

	got, err := DefaultPaths()
	if err != nil {
		t.Fatalf("DefaultPaths() error = %v", err)
	}
	want := Paths{
		ConfigPath: "/etc/dt/deploy.yml",
		BaseDir:    "/srv/dt",
		LogDir:     "/srv/dt/log",
		HistoryDir: "/srv/dt/db",
	}
	if got != want {
		t.Errorf("DefaultPaths() = %+v, want %+v", got, want)
	}
}

func TestDefaultPaths_HomeFallback(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv(EnvConfigPath, "")
	t.Setenv(EnvHome, "")

	got, err := DefaultPaths()
	if err != nil {
		t.Fatalf("DefaultPaths() error = %v", err)
	}
	if want := filepath.Join(home, ".config", "dt.toml"); got.ConfigPath != want {
		t.Errorf("ConfigPath = %q, want %q", got.ConfigPath, want)
	}
	if want := filepath.Join(home, ".local", "share", "dt", "log"); got.LogDir != want {
		t.Errorf("LogDir = %q, want %q", got.LogDir, want)
	}

	t.Run("prefers an existing yaml config", func(t *testing.T) {
		dir := filepath.Join(home, ".config")
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(dir, "dt.yml"), []byte("deployments: []\n"), 0o644); err != nil {
			t.Fatal(err)
		}

		got, err := DefaultPaths()
		if err != nil {
			t.Fatalf("DefaultPaths() error = %v", err)
		}
		if want := filepath.Join(dir, "dt.yml"); got.ConfigPath != want {
			t.Errorf("ConfigPath = %q, want %q", got.ConfigPath, want)
		}
	})
}
