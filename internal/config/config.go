package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Defaults applied to a Deployment when the corresponding option is unset.
const (
	DefaultStrategy     = "releases"
	DefaultTransport    = "ssh"
	DefaultPort         = 22
	DefaultReleaseCount = 5
	DefaultReleaseDir   = "releases"
	DefaultPublicDir    = "current"
)

// Config represents the main configuration for dt.
type Config struct {
	LogDir      string                `toml:"log_dir" yaml:"log_dir"`
	History     HistoryConfig         `toml:"history" yaml:"history"`
	Archive     VaultConfig           `toml:"archive" yaml:"archive"`
	Secrets     SecretsConfig         `toml:"secrets" yaml:"secrets"`
	Tasks       map[string]TaskConfig `toml:"tasks" yaml:"tasks" validate:"dive"`
	Deployments []Deployment          `toml:"deployments" yaml:"deployments" validate:"dive"`
}

// HistoryConfig represents configuration for the deploy history database.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type HistoryConfig struct {
	Type    string `toml:"type" yaml:"type" validate:"omitempty,oneof=sqlite memory none"`
	DataDir string `toml:"data_dir,omitempty" yaml:"data_dir,omitempty"` // only used for type=sqlite
}

// VaultConfig represents configuration for the archive that receives history snapshots.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type VaultConfig struct {
	Type string `toml:"type" yaml:"type" validate:"omitempty,oneof=none memory filesystem s3"`
	Name string `toml:"name" yaml:"name"`

	// S3-specific fields (only used when Type == "s3")
	S3Bucket    string `toml:"s3_bucket,omitempty" yaml:"s3_bucket,omitempty"`
	S3Prefix    string `toml:"s3_prefix,omitempty" yaml:"s3_prefix,omitempty"`
	S3Region    string `toml:"s3_region,omitempty" yaml:"s3_region,omitempty"`
	S3Endpoint  string `toml:"s3_endpoint,omitempty" yaml:"s3_endpoint,omitempty"`
	S3AccessKey string `toml:"s3_access_key,omitempty" yaml:"s3_access_key,omitempty"`
	S3SecretKey string `toml:"s3_secret_key,omitempty" yaml:"s3_secret_key,omitempty"`

	// FileSystem-specific fields (only used when Type == "filesystem")
	FSVaultRoot string `toml:"fs_vault_root,omitempty" yaml:"fs_vault_root,omitempty"`
}

// SecretsConfig points at the age identity used to decrypt password_age values.
type SecretsConfig struct {
	IdentityPath string `toml:"identity_path" yaml:"identity_path"`
}

// TaskConfig is a named local shell command usable as a build or post-deploy task.
type TaskConfig struct {
	Command string `toml:"command" yaml:"command" validate:"required"`
	Dir     string `toml:"dir,omitempty" yaml:"dir,omitempty"`
}

// Deployment holds the base options of one named deployment. Every target
// listed in Targets inherits these options and may override any of the
// connection or path settings.
type Deployment struct {
	Name           string `toml:"name" yaml:"name" validate:"required"`
	Strategy       string `toml:"strategy" yaml:"strategy" validate:"omitempty,oneof=releases branches"`
	BuildTask      string `toml:"build_task" yaml:"build_task"`
	PostDeployTask string `toml:"post_deploy_task" yaml:"post_deploy_task"`

	LocalDir     string   `toml:"local_dir" yaml:"local_dir" validate:"required"`
	RemoteDir    string   `toml:"remote_dir" yaml:"remote_dir" validate:"required,startswith=/"`
	ReleaseCount int      `toml:"release_count" yaml:"release_count" validate:"gte=0"`
	ReleaseDir   string   `toml:"release_dir" yaml:"release_dir"`
	PublicDir    string   `toml:"public_dir" yaml:"public_dir"`
	BaseDomain   string   `toml:"base_domain" yaml:"base_domain"`
	Excludes     []string `toml:"excludes" yaml:"excludes"`

	CheckGit  bool   `toml:"check_git" yaml:"check_git"`
	GitBranch string `toml:"git_branch" yaml:"git_branch" validate:"required_if=CheckGit true"`
	Parallel  int    `toml:"parallel" yaml:"parallel" validate:"gte=0"`

	Transport    string   `toml:"transport" yaml:"transport" validate:"omitempty,oneof=ssh local"`
	Remote       string   `toml:"remote" yaml:"remote"`
	User         string   `toml:"user" yaml:"user"`
	Port         int      `toml:"port" yaml:"port" validate:"gte=0,lte=65535"`
	Password     string   `toml:"password" yaml:"password"`
	PasswordAge  string   `toml:"password_age" yaml:"password_age"`
	AskPassword  bool     `toml:"ask_password" yaml:"ask_password"`
	Keys         []string `toml:"keys" yaml:"keys"`
	ForwardAgent bool     `toml:"forward_agent" yaml:"forward_agent"`
	KnownHosts   string   `toml:"known_hosts" yaml:"known_hosts"`

	Targets []TargetOverride `toml:"targets" yaml:"targets"`
}

// TargetOverride holds the per-target options. A nil field inherits the
// deployment's value.
type TargetOverride struct {
	Transport    *string   `toml:"transport,omitempty" yaml:"transport,omitempty"`
	Remote       *string   `toml:"remote,omitempty" yaml:"remote,omitempty"`
	User         *string   `toml:"user,omitempty" yaml:"user,omitempty"`
	Port         *int      `toml:"port,omitempty" yaml:"port,omitempty"`
	Password     *string   `toml:"password,omitempty" yaml:"password,omitempty"`
	PasswordAge  *string   `toml:"password_age,omitempty" yaml:"password_age,omitempty"`
	AskPassword  *bool     `toml:"ask_password,omitempty" yaml:"ask_password,omitempty"`
	Keys         *[]string `toml:"keys,omitempty" yaml:"keys,omitempty"`
	ForwardAgent *bool     `toml:"forward_agent,omitempty" yaml:"forward_agent,omitempty"`
	KnownHosts   *string   `toml:"known_hosts,omitempty" yaml:"known_hosts,omitempty"`

	LocalDir     *string   `toml:"local_dir,omitempty" yaml:"local_dir,omitempty"`
	RemoteDir    *string   `toml:"remote_dir,omitempty" yaml:"remote_dir,omitempty"`
	ReleaseCount *int      `toml:"release_count,omitempty" yaml:"release_count,omitempty"`
	ReleaseDir   *string   `toml:"release_dir,omitempty" yaml:"release_dir,omitempty"`
	PublicDir    *string   `toml:"public_dir,omitempty" yaml:"public_dir,omitempty"`
	BaseDomain   *string   `toml:"base_domain,omitempty" yaml:"base_domain,omitempty"`
	Excludes     *[]string `toml:"excludes,omitempty" yaml:"excludes,omitempty"`
}

// NewConfig creates a new Config with default history and log locations under baseDir.
func NewConfig(baseDir string) *Config {
	return &Config{
		LogDir: filepath.Join(baseDir, "log"),
		History: HistoryConfig{
			Type:    "sqlite",
			DataDir: filepath.Join(baseDir, "db"),
		},
		Archive: VaultConfig{Type: "none"},
		Secrets: SecretsConfig{
			IdentityPath: filepath.Join(baseDir, "keys", "dt.key"),
		},
		Tasks: map[string]TaskConfig{
			"build": {Command: "make build"},
		},
		Deployments: []Deployment{
			{
				Name:      "production",
				BuildTask: "build",
				LocalDir:  "build",
				RemoteDir: "/var/www/app",
				CheckGit:  true,
				GitBranch: "main",
				Targets: []TargetOverride{
					{Remote: ptr("web01")},
					{Remote: ptr("web02")},
				},
			},
		},
	}
}

func ptr[T any](v T) *T { return &v }

// Deployment returns the deployment with the given name, with defaults applied.
func (c *Config) Deployment(name string) (*Deployment, error) {
	for i := range c.Deployments {
		if c.Deployments[i].Name == name {
			d := c.Deployments[i]
			d.ApplyDefaults()
			return &d, nil
		}
	}
	return nil, fmt.Errorf("no deployment named %q", name)
}

// ApplyDefaults fills unset options with their default values.
func (d *Deployment) ApplyDefaults() {
	if d.Strategy == "" {
		d.Strategy = DefaultStrategy
	}
	if d.Transport == "" {
		d.Transport = DefaultTransport
	}
	if d.Port == 0 {
		d.Port = DefaultPort
	}
	if d.ReleaseCount == 0 {
		d.ReleaseCount = DefaultReleaseCount
	}
	if d.ReleaseDir == "" {
		d.ReleaseDir = DefaultReleaseDir
	}
	if d.PublicDir == "" {
		d.PublicDir = DefaultPublicDir
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the struct-level constraints of the whole config.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	seen := make(map[string]bool, len(c.Deployments))
	for _, d := range c.Deployments {
		if seen[d.Name] {
			return fmt.Errorf("invalid config: duplicate deployment %q", d.Name)
		}
		seen[d.Name] = true
		for _, task := range []string{d.BuildTask, d.PostDeployTask} {
			if task == "" {
				continue
			}
			if _, ok := c.Tasks[task]; !ok {
				return fmt.Errorf("invalid config: deployment %q references unknown task %q", d.Name, task)
			}
		}
	}
	return nil
}

// Format identifies the encoding of a config file.
type Format int

const (
	FormatTOML Format = iota
	FormatYAML
)

// FormatForPath picks the config format from the file extension. Anything
// that is not .yml or .yaml is read as TOML.
func FormatForPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yml", ".yaml":
		return FormatYAML
	default:
		return FormatTOML
	}
}

// Manager handles reading and writing configuration.
type Manager struct {
	Format Format
}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	switch m.Format {
	case FormatYAML:
		if err := yaml.NewDecoder(r).Decode(&cfg); err != nil && err != io.EOF {
			return nil, fmt.Errorf("failed to decode config: %w", err)
		}
	default:
		if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
			return nil, fmt.Errorf("failed to decode config: %w", err)
		}
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	switch m.Format {
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(cfg); err != nil {
			return fmt.Errorf("failed to encode config: %w", err)
		}
		if err := enc.Close(); err != nil {
			return fmt.Errorf("failed to encode config: %w", err)
		}
	default:
		if err := toml.NewEncoder(w).Encode(cfg); err != nil {
			return fmt.Errorf("failed to encode config: %w", err)
		}
	}
	return nil
}

// ReadFromFile reads and validates a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{Format: FormatForPath(path)}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

// writeToFile writes a Config to the specified file path.
func writeToFile(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{Format: FormatForPath(path)}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init initializes a new config file at the specified path with the provided Config.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
