// ABOUTME: Configuration loading and parsing for broodpress
// ABOUTME: Supports YAML files with environment variable expansion, defaults and env overrides

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variables read by broodpress.
const (
	EnvConfigPath   = "BROODPRESS_CONFIG"
	EnvAuthDisabled = "BROODPRESS_AUTH_DISABLED"
	EnvDBPath       = "BROODPRESS_DB_PATH"
)

// Config represents the complete broodpress configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ServerConfig holds the HTTP listener configuration
type ServerConfig struct {
	HTTPAddr        string        `yaml:"http_addr"`
	ShutdownTimeout time.Duration `yaml:"-"`

	// Raw string value for YAML unmarshaling
	ShutdownTimeoutRaw string `yaml:"shutdown_timeout"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// AuthConfig holds API key authentication configuration
type AuthConfig struct {
	// Disabled turns off every authentication and permission check.
	// Meant for local development only.
	Disabled    bool   `yaml:"disabled"`
	TokenPrefix string `yaml:"token_prefix"`
	HealthPath  string `yaml:"health_path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig holds metrics endpoint configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Default returns the configuration used when no file sets a value.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPAddr:           "localhost:8080",
			ShutdownTimeout:    10 * time.Second,
			ShutdownTimeoutRaw: "10s",
		},
		Database: DatabaseConfig{
			Path: filepath.Join(DataDir(), "broodpress.db"),
		},
		Auth: AuthConfig{
			TokenPrefix: "bp",
			HealthPath:  "/health",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded, unset fields
// keep their defaults, and BROODPRESS_* overrides are applied last.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	return Parse(data)
}

// LoadOrDefault loads path if it exists and otherwise returns the defaults
// with environment overrides applied.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := Default()
		if err := cfg.finish(); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	return Load(path)
}

// Parse parses YAML configuration content.
func Parse(data []byte) (*Config, error) {
	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expandedData), cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.finish(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// finish applies overrides, parses durations and validates.
func (c *Config) finish() error {
	if err := applyEnvOverrides(c); err != nil {
		return fmt.Errorf("applying environment overrides: %w", err)
	}

	if err := parseDurations(c); err != nil {
		return fmt.Errorf("parsing durations: %w", err)
	}

	c.Database.Path = expandHome(c.Database.Path)

	if err := c.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}
	return nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// applyEnvOverrides lets BROODPRESS_AUTH_DISABLED and BROODPRESS_DB_PATH win
// over the file.
func applyEnvOverrides(c *Config) error {
	if v := strings.TrimSpace(os.Getenv(EnvAuthDisabled)); v != "" {
		disabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s=%q is not a boolean", EnvAuthDisabled, v)
		}
		c.Auth.Disabled = disabled
	}
	if v := os.Getenv(EnvDBPath); v != "" {
		c.Database.Path = v
	}
	return nil
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if c.Auth.TokenPrefix == "" {
		return fmt.Errorf("auth.token_prefix is required")
	}
	if strings.ContainsAny(c.Auth.TokenPrefix, "_ \t") {
		return fmt.Errorf("auth.token_prefix %q must not contain underscores or whitespace", c.Auth.TokenPrefix)
	}

	if !strings.HasPrefix(c.Auth.HealthPath, "/") {
		return fmt.Errorf("auth.health_path must start with /")
	}

	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with / when metrics are enabled")
	}

	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be \"text\" or \"json\", got %q", c.Logging.Format)
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	if cfg.Server.ShutdownTimeoutRaw != "" {
		d, err := time.ParseDuration(cfg.Server.ShutdownTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing shutdown_timeout %q: %w", cfg.Server.ShutdownTimeoutRaw, err)
		}
		cfg.Server.ShutdownTimeout = d
	}
	return nil
}

// expandHome replaces a leading "~/" with the user's home directory.
func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}

// Path returns the path to the config file.
// Priority: BROODPRESS_CONFIG env var > XDG_CONFIG_HOME/broodpress/config.yaml > ~/.config/broodpress/config.yaml
func Path() string {
	if envPath := os.Getenv(EnvConfigPath); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "config.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "broodpress", "config.yaml")
}

// DataDir returns the broodpress data directory.
// Priority: XDG_DATA_HOME/broodpress > ~/.local/share/broodpress
func DataDir() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "broodpress")
}

// Marshal renders the config as YAML, as written by "broodpress init".
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}
