// ABOUTME: Configuration loading and parsing for toolhub
// ABOUTME: Supports YAML or TOML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/2389/toolhub/internal/auth"
	"github.com/2389/toolhub/internal/capability"
)

// Defaults applied when a value is absent.
const (
	DefaultHeartbeatInterval = 30 * time.Second
	DefaultCallTimeout       = 30 * time.Second
)

// Config represents the complete toolhub configuration
type Config struct {
	Server     ServerConfig     `yaml:"server" toml:"server"`
	Database   DatabaseConfig   `yaml:"database" toml:"database"`
	Auth       AuthConfig       `yaml:"auth" toml:"auth"`
	Sessions   SessionsConfig   `yaml:"sessions" toml:"sessions"`
	Tools      ToolsConfig      `yaml:"tools" toml:"tools"`
	Capability CapabilityConfig `yaml:"capability" toml:"capability"`
	Logging    LoggingConfig    `yaml:"logging" toml:"logging"`
}

// ServerConfig holds the HTTP listener configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr" toml:"http_addr"`
	// BasePath prefixes the MCP endpoints, e.g. "/v1" gives /v1/sse and /v1/mcp.
	BasePath string `yaml:"base_path" toml:"base_path"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	JWTSecret string         `yaml:"jwt_secret" toml:"jwt_secret"`
	APIKeys   []APIKeyConfig `yaml:"api_keys" toml:"api_keys"`
}

// APIKeyConfig is one static API key. Only the bcrypt hash is stored.
type APIKeyConfig struct {
	Email   string   `yaml:"email" toml:"email"`
	Roles   []string `yaml:"roles" toml:"roles"`
	KeyHash string   `yaml:"key_hash" toml:"key_hash"`
}

// SessionsConfig holds session timing configuration
type SessionsConfig struct {
	HeartbeatInterval time.Duration `yaml:"-" toml:"-"`
	IdleTimeout       time.Duration `yaml:"-" toml:"-"`

	// Raw string values for unmarshaling
	HeartbeatIntervalRaw string `yaml:"heartbeat_interval" toml:"heartbeat_interval"`
	IdleTimeoutRaw       string `yaml:"idle_timeout" toml:"idle_timeout"`
}

// ToolsConfig holds tool invocation configuration
type ToolsConfig struct {
	CallTimeout    time.Duration `yaml:"-" toml:"-"`
	CallTimeoutRaw string        `yaml:"call_timeout" toml:"call_timeout"`
	// BuiltinsEnabled defaults to true when unset.
	BuiltinsEnabled *bool `yaml:"builtins_enabled" toml:"builtins_enabled"`
}

// Builtins reports whether built-in tools should be synced at startup.
func (t ToolsConfig) Builtins() bool {
	return t.BuiltinsEnabled == nil || *t.BuiltinsEnabled
}

// CapabilityConfig selects how tool lists are computed
type CapabilityConfig struct {
	Mode string `yaml:"mode" toml:"mode"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are decoded as TOML, everything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw content
	expanded := expandEnvVars(string(data))

	var cfg Config
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expanded, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// DefaultPath returns the config file location.
// Priority: TOOLHUB_CONFIG env var > XDG_CONFIG_HOME/toolhub/toolhub.yaml > ~/.config/toolhub/toolhub.yaml
func DefaultPath() string {
	if envPath := os.Getenv("TOOLHUB_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "toolhub.yaml"
		}
		configDir = filepath.Join(home, ".config")
	}
	return filepath.Join(configDir, "toolhub", "toolhub.yaml")
}

// DefaultDataPath returns the directory for the database.
// Priority: XDG_DATA_HOME/toolhub > ~/.local/share/toolhub
func DefaultDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "."
		}
		dataDir = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataDir, "toolhub")
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

func (c *Config) applyDefaults() {
	if c.Sessions.HeartbeatInterval == 0 {
		c.Sessions.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.Tools.CallTimeout == 0 {
		c.Tools.CallTimeout = DefaultCallTimeout
	}
	if c.Capability.Mode == "" {
		c.Capability.Mode = string(capability.ModeLive)
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	c.Server.BasePath = strings.TrimRight(c.Server.BasePath, "/")
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}
	if c.Server.BasePath != "" && !strings.HasPrefix(c.Server.BasePath, "/") {
		return fmt.Errorf("server.base_path must start with /")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if c.Auth.JWTSecret == "" && len(c.Auth.APIKeys) == 0 {
		return fmt.Errorf("auth.jwt_secret or auth.api_keys is required")
	}
	if c.Auth.JWTSecret != "" && len(c.Auth.JWTSecret) < auth.MinSecretLength {
		return fmt.Errorf("auth.jwt_secret must be at least %d bytes", auth.MinSecretLength)
	}
	for i, k := range c.Auth.APIKeys {
		if k.Email == "" {
			return fmt.Errorf("auth.api_keys[%d].email is required", i)
		}
		if k.KeyHash == "" {
			return fmt.Errorf("auth.api_keys[%d].key_hash is required", i)
		}
	}

	if c.Sessions.HeartbeatInterval < 0 || c.Sessions.IdleTimeout < 0 || c.Tools.CallTimeout < 0 {
		return fmt.Errorf("durations must not be negative")
	}

	if _, err := capability.ParseMode(c.Capability.Mode); err != nil {
		return fmt.Errorf("capability.mode: %w", err)
	}

	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"sessions.heartbeat_interval", cfg.Sessions.HeartbeatIntervalRaw, &cfg.Sessions.HeartbeatInterval},
		{"sessions.idle_timeout", cfg.Sessions.IdleTimeoutRaw, &cfg.Sessions.IdleTimeout},
		{"tools.call_timeout", cfg.Tools.CallTimeoutRaw, &cfg.Tools.CallTimeout},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}
	return nil
}
