package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultDataDir holds the maintenance record, the state database and
	// the backups root
	DefaultDataDir = "/var/lib/refit"

	// DefaultRetention is the number of backups kept
	DefaultRetention = 5

	// VersionMarkerFile is the plain-text version marker at the install root
	VersionMarkerFile = "VERSION"
)

// Config is the refit configuration file
type Config struct {
	// InstallRoot overrides install root detection when set
	InstallRoot string `yaml:"installRoot,omitempty"`
	DataDir     string `yaml:"dataDir"`
	// BackupsDir defaults to <dataDir>/backups
	BackupsDir string `yaml:"backupsDir,omitempty"`
	Retention  int    `yaml:"retention"`

	ServiceName string `yaml:"serviceName"`
	// SystemdUnit is the unit restarted by the service-manager strategy
	SystemdUnit string `yaml:"systemdUnit,omitempty"`
	// PIDFile names the process signalled by the signal-self strategy;
	// refit's own process is signalled when empty
	PIDFile string `yaml:"pidFile,omitempty"`

	Release     ReleaseConfig     `yaml:"release"`
	Apply       ApplyConfig       `yaml:"apply"`
	Maintenance MaintenanceConfig `yaml:"maintenance"`
	Server      ServerConfig      `yaml:"server"`

	// HealthURL is probed after a restart when set
	HealthURL     string        `yaml:"healthUrl,omitempty"`
	HealthTimeout time.Duration `yaml:"healthTimeout"`

	// HostLockName names the machine-wide update mutex; empty disables it
	HostLockName string `yaml:"hostLockName,omitempty"`
}

// ReleaseConfig configures the release feed
type ReleaseConfig struct {
	Owner      string `yaml:"owner"`
	Repository string `yaml:"repository"`
	// APIBaseURL overrides the GitHub API endpoint (GitHub Enterprise, tests)
	APIBaseURL string `yaml:"apiBaseUrl,omitempty"`
	// TokenEnv names the environment variable holding an API token
	TokenEnv        string        `yaml:"tokenEnv,omitempty"`
	CheckTimeout    time.Duration `yaml:"checkTimeout"`
	DownloadTimeout time.Duration `yaml:"downloadTimeout"`
	// Schedule is a cron spec for background checks; "@never" disables them
	Schedule string `yaml:"schedule"`
}

// ApplyConfig configures file replacement and backups
type ApplyConfig struct {
	// Preserve lists install-root-relative paths kept across an update
	Preserve []string `yaml:"preserve"`
	// Exclude lists names skipped when taking a backup
	Exclude []string `yaml:"exclude"`
	// Required lists install-root-relative files whose absence marks the
	// installation as broken (standalone repair mode)
	Required []string `yaml:"required,omitempty"`
	// DependencyManifest is read by the compatibility checker
	DependencyManifest string `yaml:"dependencyManifest"`
	// ExtensionsDir holds local extension modules
	ExtensionsDir string `yaml:"extensionsDir"`
}

// MaintenanceConfig holds defaults for the maintenance gate
type MaintenanceConfig struct {
	Title       string   `yaml:"title"`
	Message     string   `yaml:"message"`
	AllowList   []string `yaml:"allowList"`
	TrustProxy  bool     `yaml:"trustProxy"`
	BypassPaths []string `yaml:"bypassPaths"`
	// EstimatedMinutes is used when the orchestrator enables the gate
	EstimatedMinutes int `yaml:"estimatedMinutes"`
}

// ServerConfig configures the HTTP surface of `refit serve`
type ServerConfig struct {
	Addr string `yaml:"addr"`
	// UpstreamURL is proxied behind the maintenance gate when set
	UpstreamURL string `yaml:"upstreamUrl,omitempty"`
	// ChecksPerMinute limits the check endpoint
	ChecksPerMinute int `yaml:"checksPerMinute"`
}

// Default returns a Config with sensible defaults
func Default() *Config {
	return &Config{
		DataDir:     DefaultDataDir,
		Retention:   DefaultRetention,
		ServiceName: "app",
		Release: ReleaseConfig{
			CheckTimeout:    15 * time.Second,
			DownloadTimeout: 5 * time.Minute,
			Schedule:        "@every 6h",
			TokenEnv:        "GITHUB_TOKEN",
		},
		Apply: ApplyConfig{
			Preserve: []string{
				"data", "certs", "logs", ".git", "backups", ".env",
				"config.yaml", VersionMarkerFile,
			},
			Exclude: []string{
				".git", "__pycache__", ".cache", ".pytest_cache", "node_modules/.cache",
				"backups", "logs", "tmp", "*.log", "*.tmp", "*.pyc",
			},
			DependencyManifest: "requirements.txt",
			ExtensionsDir:      "plugins",
		},
		Maintenance: MaintenanceConfig{
			Title:            "Under maintenance",
			Message:          "The service is being updated and will be back shortly.",
			AllowList:        []string{"127.0.0.1", "::1"},
			BypassPaths:      []string{"/healthz", "/readyz", "/livez", "/metrics", "/api/update", "/api/maintenance"},
			EstimatedMinutes: 10,
		},
		Server: ServerConfig{
			Addr:            "127.0.0.1:8470",
			ChecksPerMinute: 6,
		},
		HealthTimeout: 30 * time.Second,
		HostLockName:  "refit-update",
	}
}

// Load reads a YAML configuration file on top of the defaults. A missing
// file is not an error when path is empty.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for invalid values
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("dataDir is required")
	}
	if c.Retention < 1 {
		return fmt.Errorf("retention must be at least 1, got %d", c.Retention)
	}
	if c.Release.CheckTimeout <= 0 {
		return fmt.Errorf("release.checkTimeout must be positive")
	}
	if c.Release.DownloadTimeout <= 0 {
		return fmt.Errorf("release.downloadTimeout must be positive")
	}
	if c.InstallRoot != "" && !filepath.IsAbs(c.InstallRoot) {
		return fmt.Errorf("installRoot must be absolute: %s", c.InstallRoot)
	}
	return nil
}

// BackupsPath returns the backups root
func (c *Config) BackupsPath() string {
	if c.BackupsDir != "" {
		return c.BackupsDir
	}
	return filepath.Join(c.DataDir, "backups")
}

// MaintenancePath returns the maintenance record path
func (c *Config) MaintenancePath() string {
	return filepath.Join(c.DataDir, "maintenance.json")
}

// StatePath returns the bbolt state database path
func (c *Config) StatePath() string {
	return filepath.Join(c.DataDir, "refit.db")
}
