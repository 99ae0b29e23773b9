package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/runger/snapc/internal/snapd"
)

// Config represents the snapc configuration.
type Config struct {
	Client ClientConfig `yaml:"client"`
	Log    LogConfig    `yaml:"log"`
	UI     UIConfig     `yaml:"ui"`
}

// ClientConfig holds settings for talking to snapd.
type ClientConfig struct {
	SocketPath       string `yaml:"socket_path"`        // snapd socket (empty = /run/snapd.socket)
	UserAgent        string `yaml:"user_agent"`         // User-Agent header (empty = built-in)
	AllowInteraction bool   `yaml:"allow_interaction"`  // Let snapd prompt for polkit auth
	PollIntervalMs   int    `yaml:"poll_interval_ms"`   // Delay between change polls
	ConnectTimeoutMs int    `yaml:"connect_timeout_ms"` // Socket connection timeout
	WriteTimeoutMs   int    `yaml:"write_timeout_ms"`   // Per-request write timeout
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level      string `yaml:"level"`       // debug, info, warn, error
	File       string `yaml:"file"`        // Log file path (empty = stderr)
	MaxSizeMB  int    `yaml:"max_size_mb"` // Rotate after this many megabytes
	MaxBackups int    `yaml:"max_backups"` // Rotated files to keep
}

// UIConfig holds terminal output settings.
type UIConfig struct {
	Progress string `yaml:"progress"` // auto, bar, plain, none
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Client: ClientConfig{
			AllowInteraction: true,
			PollIntervalMs:   int(snapd.DefaultPollInterval / time.Millisecond),
			ConnectTimeoutMs: int(snapd.DefaultConnectTimeout / time.Millisecond),
			WriteTimeoutMs:   int(snapd.DefaultWriteTimeout / time.Millisecond),
		},
		Log: LogConfig{
			Level:      "warn",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
		UI: UIConfig{
			Progress: "auto",
		},
	}
}

// Load loads configuration from the default path.
func Load() (*Config, error) {
	paths := DefaultPaths()
	return LoadFromFile(paths.ConfigFile())
}

// LoadFromFile loads configuration from the specified file.
// If the file doesn't exist, returns default configuration.
// Environment variable overrides are applied after file loading.
func LoadFromFile(path string) (*Config, error) {
	cfg, err := ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg.ApplyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// ReadFile parses the file over the defaults without applying environment
// overrides or validating. A missing file yields the defaults.
func ReadFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return cfg, nil
}

// Save saves the configuration to the default path.
func (c *Config) Save() error {
	paths := DefaultPaths()
	return c.SaveToFile(paths.ConfigFile())
}

// SaveToFile saves the configuration to the specified file.
func (c *Config) SaveToFile(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Get retrieves a configuration value by dot-separated key.
// For example: "client.socket_path" or "log.level"
func (c *Config) Get(key string) (string, error) {
	section, field, err := splitKey(key)
	if err != nil {
		return "", err
	}

	switch section {
	case "client":
		return c.getClientField(field)
	case "log":
		return c.getLogField(field)
	case "ui":
		return c.getUIField(field)
	default:
		return "", fmt.Errorf("unknown section: %s", section)
	}
}

// Set sets a configuration value by dot-separated key.
func (c *Config) Set(key, value string) error {
	section, field, err := splitKey(key)
	if err != nil {
		return err
	}

	switch section {
	case "client":
		return c.setClientField(field, value)
	case "log":
		return c.setLogField(field, value)
	case "ui":
		return c.setUIField(field, value)
	default:
		return fmt.Errorf("unknown section: %s", section)
	}
}

func splitKey(key string) (section, field string, err error) {
	parts := strings.Split(key, ".")
	if len(parts) != 2 {
		return "", "", errors.New("key must be in format 'section.key'")
	}
	return parts[0], parts[1], nil
}

func (c *Config) getClientField(field string) (string, error) {
	switch field {
	case "socket_path":
		return c.Client.SocketPath, nil
	case "user_agent":
		return c.Client.UserAgent, nil
	case "allow_interaction":
		return strconv.FormatBool(c.Client.AllowInteraction), nil
	case "poll_interval_ms":
		return strconv.Itoa(c.Client.PollIntervalMs), nil
	case "connect_timeout_ms":
		return strconv.Itoa(c.Client.ConnectTimeoutMs), nil
	case "write_timeout_ms":
		return strconv.Itoa(c.Client.WriteTimeoutMs), nil
	default:
		return "", fmt.Errorf("unknown field: client.%s", field)
	}
}

func (c *Config) setClientField(field, value string) error {
	switch field {
	case "socket_path":
		c.Client.SocketPath = value
	case "user_agent":
		c.Client.UserAgent = value
	case "allow_interaction":
		v, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid value for allow_interaction: %w", err)
		}
		c.Client.AllowInteraction = v
	case "poll_interval_ms":
		return setPositiveInt(&c.Client.PollIntervalMs, field, value)
	case "connect_timeout_ms":
		return setPositiveInt(&c.Client.ConnectTimeoutMs, field, value)
	case "write_timeout_ms":
		return setPositiveInt(&c.Client.WriteTimeoutMs, field, value)
	default:
		return fmt.Errorf("unknown field: client.%s", field)
	}
	return nil
}

func (c *Config) getLogField(field string) (string, error) {
	switch field {
	case "level":
		return c.Log.Level, nil
	case "file":
		return c.Log.File, nil
	case "max_size_mb":
		return strconv.Itoa(c.Log.MaxSizeMB), nil
	case "max_backups":
		return strconv.Itoa(c.Log.MaxBackups), nil
	default:
		return "", fmt.Errorf("unknown field: log.%s", field)
	}
}

func (c *Config) setLogField(field, value string) error {
	switch field {
	case "level":
		if !isValidLogLevel(value) {
			return fmt.Errorf("invalid level: %s (must be debug, info, warn, or error)", value)
		}
		c.Log.Level = value
	case "file":
		c.Log.File = value
	case "max_size_mb":
		return setPositiveInt(&c.Log.MaxSizeMB, field, value)
	case "max_backups":
		v, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid value for max_backups: %w", err)
		}
		if v < 0 {
			return errors.New("invalid max_backups: must be non-negative")
		}
		c.Log.MaxBackups = v
	default:
		return fmt.Errorf("unknown field: log.%s", field)
	}
	return nil
}

func (c *Config) getUIField(field string) (string, error) {
	switch field {
	case "progress":
		return c.UI.Progress, nil
	default:
		return "", fmt.Errorf("unknown field: ui.%s", field)
	}
}

func (c *Config) setUIField(field, value string) error {
	switch field {
	case "progress":
		if !isValidProgressMode(value) {
			return fmt.Errorf("invalid progress: %s (must be auto, bar, plain, or none)", value)
		}
		c.UI.Progress = value
	default:
		return fmt.Errorf("unknown field: ui.%s", field)
	}
	return nil
}

func setPositiveInt(dst *int, field, value string) error {
	v, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", field, err)
	}
	if v <= 0 {
		return fmt.Errorf("invalid %s: must be positive", field)
	}
	*dst = v
	return nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Client.PollIntervalMs <= 0 {
		return errors.New("client.poll_interval_ms must be > 0")
	}

	if c.Client.ConnectTimeoutMs <= 0 {
		return errors.New("client.connect_timeout_ms must be > 0")
	}

	if c.Client.WriteTimeoutMs <= 0 {
		return errors.New("client.write_timeout_ms must be > 0")
	}

	if !isValidLogLevel(c.Log.Level) {
		return fmt.Errorf("log.level must be debug, info, warn, or error (got: %s)", c.Log.Level)
	}

	if c.Log.MaxSizeMB <= 0 {
		return errors.New("log.max_size_mb must be > 0")
	}

	if c.Log.MaxBackups < 0 {
		return errors.New("log.max_backups must be >= 0")
	}

	if !isValidProgressMode(c.UI.Progress) {
		return fmt.Errorf("ui.progress must be auto, bar, plain, or none (got: %s)", c.UI.Progress)
	}

	return nil
}

func isValidLogLevel(level string) bool {
	switch level {
	case "debug", "info", "warn", "error":
		return true
	default:
		return false
	}
}

func isValidProgressMode(mode string) bool {
	switch mode {
	case "auto", "bar", "plain", "none":
		return true
	default:
		return false
	}
}

// ApplyEnvOverrides applies environment variable overrides to the config.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("SNAPC_SOCKET"); v != "" {
		c.Client.SocketPath = v
	}
	if v := os.Getenv("SNAPC_USER_AGENT"); v != "" {
		c.Client.UserAgent = v
	}
	if v := os.Getenv("SNAPC_ALLOW_INTERACTION"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Client.AllowInteraction = b
		}
	}
	if v := os.Getenv("SNAPC_DEBUG"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil && b {
			c.Log.Level = "debug"
		}
	}
	if v := os.Getenv("SNAPC_LOG_LEVEL"); v != "" {
		if isValidLogLevel(v) {
			c.Log.Level = v
		}
	}
}

// ListKeys returns all configuration keys in display order.
func ListKeys() []string {
	return []string{
		"client.socket_path",
		"client.user_agent",
		"client.allow_interaction",
		"client.poll_interval_ms",
		"client.connect_timeout_ms",
		"client.write_timeout_ms",
		"log.level",
		"log.file",
		"log.max_size_mb",
		"log.max_backups",
		"ui.progress",
	}
}

// ClientOptions converts the client section into snapd client options.
func (c *Config) ClientOptions() []snapd.Option {
	return []snapd.Option{
		snapd.WithSocketPath(c.Client.SocketPath),
		snapd.WithUserAgent(c.Client.UserAgent),
		snapd.WithAllowInteraction(c.Client.AllowInteraction),
		snapd.WithPollInterval(time.Duration(c.Client.PollIntervalMs) * time.Millisecond),
		snapd.WithConnectTimeout(time.Duration(c.Client.ConnectTimeoutMs) * time.Millisecond),
		snapd.WithWriteTimeout(time.Duration(c.Client.WriteTimeoutMs) * time.Millisecond),
	}
}
