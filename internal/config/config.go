// ABOUTME: Configuration loading and parsing for muster-gateway.
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing.

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete muster-gateway configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Storage  StorageConfig  `yaml:"storage"`
	Sessions SessionsConfig `yaml:"sessions"`
	Auth     AuthConfig     `yaml:"auth"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig holds server address configuration.
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// StorageConfig holds blob store configuration.
type StorageConfig struct {
	// UploadDir is where uploaded blobs are written.
	UploadDir string `yaml:"upload_dir"`
	// IndexPath is the SQLite upload metadata index.
	IndexPath string `yaml:"index_path"`
}

// SessionsConfig holds session lifecycle tuning.
type SessionsConfig struct {
	TTL           time.Duration `yaml:"-"`
	SweepInterval time.Duration `yaml:"-"`
	TokenLen      int           `yaml:"token_len"`

	// Raw string values for YAML unmarshaling
	TTLRaw           string `yaml:"ttl"`
	SweepIntervalRaw string `yaml:"sweep_interval"`
}

// AuthConfig holds controller authentication configuration. When
// AdminSecret is empty the /admin routes are unauthenticated.
type AuthConfig struct {
	AdminSecret string `yaml:"admin_secret"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads a configuration file from the given path and returns a
// parsed Config. Environment variables in the format ${VAR_NAME} are
// expanded. Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding
// environment variable values. Unset variables become empty strings.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// parseDurations converts raw duration strings into time.Duration fields.
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Sessions.TTLRaw != "" {
		if cfg.Sessions.TTL, err = time.ParseDuration(cfg.Sessions.TTLRaw); err != nil {
			return fmt.Errorf("sessions.ttl: %w", err)
		}
	}
	if cfg.Sessions.SweepIntervalRaw != "" {
		if cfg.Sessions.SweepInterval, err = time.ParseDuration(cfg.Sessions.SweepIntervalRaw); err != nil {
			return fmt.Errorf("sessions.sweep_interval: %w", err)
		}
	}
	return nil
}

// Validate checks required fields and applies defaults.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = ":8080"
	}
	if c.Storage.UploadDir == "" {
		c.Storage.UploadDir = "uploads"
	}
	if c.Storage.IndexPath == "" {
		c.Storage.IndexPath = "uploads/index.db"
	}
	if c.Sessions.TTL == 0 {
		c.Sessions.TTL = 60 * time.Second
	}
	if c.Sessions.TTL < 0 {
		return fmt.Errorf("sessions.ttl must be positive, got %s", c.Sessions.TTL)
	}
	if c.Sessions.SweepInterval < 0 {
		return fmt.Errorf("sessions.sweep_interval must not be negative, got %s", c.Sessions.SweepInterval)
	}
	if c.Sessions.TokenLen < 0 {
		return fmt.Errorf("sessions.token_len must not be negative, got %d", c.Sessions.TokenLen)
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	return nil
}

// DefaultConfig is the commented configuration written by
// `muster-gateway init`.
const DefaultConfig = `# muster-gateway configuration

server:
  http_addr: ":8080"

storage:
  # Uploaded blobs are written here; the index tracks upload metadata.
  upload_dir: "uploads"
  index_path: "uploads/index.db"

sessions:
  # Sessions idle longer than ttl are evicted.
  ttl: "60s"
  # Optional background eviction cadence. Sessions are always swept
  # lazily on listing; leave this at 0s to rely on the lazy sweep alone.
  sweep_interval: "0s"
  # Length in hex characters of session and command identifiers.
  token_len: 8

auth:
  # Uncomment to require bearer tokens (minted with: muster-gateway token)
  # on the /admin routes. Must be at least 32 bytes.
  # admin_secret: "${MUSTER_ADMIN_SECRET}"

logging:
  level: "info"   # debug, info, warn, error
  format: "text"  # text or json
`
