package app

import (
	"fmt"
	"os"
	"path/filepath"
)

// Environment variables that override the default locations.
const (
	EnvConfigPath = "DT_CONFIG_PATH"
	EnvHome       = "DT_HOME"
)

// configNames are tried in order under ~/.config when EnvConfigPath is unset.
// The first one that exists wins; otherwise the first is used.
var configNames = []string{"dt.toml", "dt.yaml", "dt.yml"}

// Paths holds the locations dt reads its config from and keeps its data in.
type Paths struct {
	ConfigPath string
	BaseDir    string
	LogDir     string
	HistoryDir string
}

// DefaultPaths resolves Paths from DT_CONFIG_PATH and DT_HOME, falling back to
// ~/.config/dt.toml and ~/.local/share/dt.
func DefaultPaths() (Paths, error) {
	configPath, err := configPath()
	if err != nil {
		return Paths{}, err
	}
	baseDir, err := baseDir()
	if err != nil {
		return Paths{}, err
	}
	return Paths{
		ConfigPath: configPath,
		BaseDir:    baseDir,
		LogDir:     filepath.Join(baseDir, "log"),
		HistoryDir: filepath.Join(baseDir, "db"),
	}, nil
}

func configPath() (string, error) {
	if path := os.Getenv(EnvConfigPath); path != "" {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".config")
	for _, name := range configNames {
		if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
			return filepath.Join(dir, name), nil
		}
	}
	return filepath.Join(dir, configNames[0]), nil
}

func baseDir() (string, error) {
	if path := os.Getenv(EnvHome); path != "" {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".local", "share", "dt"), nil
}
