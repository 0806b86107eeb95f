// Package config provides configuration loading and management for the sync scheduler.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/stacklok/toolhive-sync-scheduler/internal/telemetry"
)

const (
	// StatusTypeFile persists the sync status record as a JSON file
	StatusTypeFile = "file"

	// StatusTypeDatabase persists the sync status record in PostgreSQL
	StatusTypeDatabase = "database"

	// StatusTypeMemory keeps the sync status record in process memory
	StatusTypeMemory = "memory"
)

const (
	// DefaultStepSize is the loop's sleep granularity
	DefaultStepSize = 5 * time.Second

	// DefaultStatusPath is where the file status store writes when no path is set
	DefaultStatusPath = "./data/status.json"

	// DefaultServerAddress is the listen address of the health and status server
	DefaultServerAddress = ":8080"

	// PasswordEnvVar is consulted when no password file is configured
	PasswordEnvVar = "THV_SYNC_DATABASE_PASSWORD"

	// EnvPrefix is the prefix of environment variables read through viper
	EnvPrefix = "THV_SYNC"
)

// Option defines the interface for configuration options
type Option func(*loaderConfig) error

// loaderConfig defines the configuration for loading a configuration
type loaderConfig struct {
	path string
}

// WithConfigPath loads configuration from a YAML file
func WithConfigPath(path string) Option {
	return func(cfg *loaderConfig) error {
		if path == "" {
			return fmt.Errorf("path is required")
		}

		// EvalSymlinks also cleans the path
		realPath, err := filepath.EvalSymlinks(path)
		if err != nil {
			return fmt.Errorf("failed to evaluate symlinks: %w", err)
		}

		if !filepath.IsAbs(realPath) && !filepath.IsLocal(realPath) {
			return fmt.Errorf("path is not local or contains invalid traversal: %s", path)
		}

		cfg.path = realPath
		return nil
	}
}

// Config represents the root configuration structure
type Config struct {
	Scheduler *SchedulerConfig  `yaml:"scheduler,omitempty"`
	Settings  SettingsConfig    `yaml:"settings"`
	Status    *StatusConfig     `yaml:"status,omitempty"`
	Database  *DatabaseConfig   `yaml:"database,omitempty"`
	Auth      *AuthConfig       `yaml:"auth,omitempty"`
	Executor  ExecutorConfig    `yaml:"executor"`
	Server    *ServerConfig     `yaml:"server,omitempty"`
	Telemetry *telemetry.Config `yaml:"telemetry,omitempty"`
}

// SchedulerConfig tunes the control loop
type SchedulerConfig struct {
	// StepSize bounds how long the loop sleeps before looking at settings
	// and cancellation again (e.g. "5s")
	StepSize string `yaml:"stepSize,omitempty"`
}

// SettingsConfig locates the polling settings document
type SettingsConfig struct {
	// Path is the YAML settings file
	Path string `yaml:"path"`

	// Watch enables fsnotify based change detection. Defaults to true.
	Watch *bool `yaml:"watch,omitempty"`
}

// StatusConfig selects where the sync status record lives
type StatusConfig struct {
	// Type is one of file, database or memory. Defaults to file.
	Type string `yaml:"type,omitempty"`

	// Path is the JSON file used by the file store
	Path string `yaml:"path,omitempty"`
}

// AuthConfig locates the credential used by the readiness gate
type AuthConfig struct {
	// TokenFile is where the verification flow drops the session token
	TokenFile string `yaml:"tokenFile,omitempty"`

	// Leeway is subtracted from the token expiry (e.g. "30s")
	Leeway string `yaml:"leeway,omitempty"`
}

// ExecutorConfig points at the sync engine
type ExecutorConfig struct {
	// Endpoint is the URL the sync request is POSTed to
	Endpoint string `yaml:"endpoint"`

	// Timeout bounds one sync request. Empty means no timeout.
	Timeout string `yaml:"timeout,omitempty"`
}

// ServerConfig configures the health and status HTTP server
type ServerConfig struct {
	Address string `yaml:"address,omitempty"`
}

// DatabaseConfig defines database connection settings
type DatabaseConfig struct {
	// Host is the database server hostname or IP address
	Host string `yaml:"host"`

	// Port is the database server port
	Port int `yaml:"port"`

	// User is the database username
	User string `yaml:"user"`

	// PasswordFile is the path to a file containing the database password.
	// Trailing whitespace is ignored.
	PasswordFile string `yaml:"passwordFile,omitempty"`

	// Database is the database name
	Database string `yaml:"database"`

	// SSLMode is the SSL mode for the connection (disable, require, verify-ca, verify-full)
	SSLMode string `yaml:"sslMode,omitempty"`

	// MaxOpenConns is the maximum number of open connections to the database
	MaxOpenConns int32 `yaml:"maxOpenConns,omitempty"`

	// MaxIdleConns is the maximum number of idle connections in the pool
	MaxIdleConns int32 `yaml:"maxIdleConns,omitempty"`

	// ConnMaxLifetime is the maximum lifetime of a connection (e.g., "1h", "30m")
	ConnMaxLifetime string `yaml:"connMaxLifetime,omitempty"`

	// MigrateOnStart applies pending schema migrations before serving
	MigrateOnStart bool `yaml:"migrateOnStart,omitempty"`
}

// GetPassword returns the database password, read from PasswordFile when
// set and from THV_SYNC_DATABASE_PASSWORD otherwise
func (d *DatabaseConfig) GetPassword() (string, error) {
	if d.PasswordFile != "" {
		data, err := os.ReadFile(filepath.Clean(d.PasswordFile))
		if err != nil {
			return "", fmt.Errorf("failed to read password from file %s: %w", d.PasswordFile, err)
		}
		return strings.TrimSpace(string(data)), nil
	}

	if envPassword := os.Getenv(PasswordEnvVar); envPassword != "" {
		return envPassword, nil
	}

	return "", fmt.Errorf("no database password configured: set passwordFile or %s environment variable", PasswordEnvVar)
}

// GetConnectionString builds a PostgreSQL connection URL with the password escaped
func (d *DatabaseConfig) GetConnectionString() (string, error) {
	password, err := d.GetPassword()
	if err != nil {
		return "", err
	}

	sslMode := d.SSLMode
	if sslMode == "" {
		sslMode = "require"
	}

	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(d.User),
		url.QueryEscape(password),
		d.Host,
		d.Port,
		d.Database,
		sslMode,
	), nil
}

// GetConnMaxLifetime returns the parsed connection lifetime, zero when unset
func (d *DatabaseConfig) GetConnMaxLifetime() time.Duration {
	if d.ConnMaxLifetime == "" {
		return 0
	}
	lifetime, err := time.ParseDuration(d.ConnMaxLifetime)
	if err != nil {
		return 0
	}
	return lifetime
}

// LoadConfig loads and parses configuration from a YAML file
func LoadConfig(opts ...Option) (*Config, error) {
	loaderCfg := &loaderConfig{}
	for _, opt := range opts {
		if err := opt(loaderCfg); err != nil {
			return nil, err
		}
	}

	if loaderCfg.path == "" {
		return nil, fmt.Errorf("path is required")
	}

	data, err := os.ReadFile(loaderCfg.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// GetStepSize returns the configured step size or DefaultStepSize
func (c *Config) GetStepSize() time.Duration {
	if c.Scheduler == nil || c.Scheduler.StepSize == "" {
		return DefaultStepSize
	}
	step, err := time.ParseDuration(c.Scheduler.StepSize)
	if err != nil || step <= 0 {
		return DefaultStepSize
	}
	return step
}

// GetStatusType returns the status store type, defaulting to file
func (c *Config) GetStatusType() string {
	if c.Status == nil || c.Status.Type == "" {
		return StatusTypeFile
	}
	return c.Status.Type
}

// GetStatusPath returns the file store path, defaulting to DefaultStatusPath
func (c *Config) GetStatusPath() string {
	if c.Status == nil || c.Status.Path == "" {
		return DefaultStatusPath
	}
	return c.Status.Path
}

// ShouldWatchSettings reports whether the settings file should be watched
func (c *Config) ShouldWatchSettings() bool {
	return c.Settings.Watch == nil || *c.Settings.Watch
}

// GetServerAddress returns the server listen address
func (c *Config) GetServerAddress() string {
	if c.Server == nil || c.Server.Address == "" {
		return DefaultServerAddress
	}
	return c.Server.Address
}

// GetAuthLeeway returns the token expiry leeway, or zero when unset
func (c *Config) GetAuthLeeway() time.Duration {
	if c.Auth == nil || c.Auth.Leeway == "" {
		return 0
	}
	leeway, err := time.ParseDuration(c.Auth.Leeway)
	if err != nil {
		return 0
	}
	return leeway
}

// GetExecutorTimeout returns the per-request timeout, or zero for none
func (c *Config) GetExecutorTimeout() time.Duration {
	if c.Executor.Timeout == "" {
		return 0
	}
	timeout, err := time.ParseDuration(c.Executor.Timeout)
	if err != nil {
		return 0
	}
	return timeout
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	if c == nil {
		return fmt.Errorf("config cannot be nil")
	}

	var errs []error

	if c.Settings.Path == "" {
		errs = append(errs, fmt.Errorf("settings.path is required"))
	}

	if err := validateEndpoint(c.Executor.Endpoint); err != nil {
		errs = append(errs, fmt.Errorf("executor.endpoint: %w", err))
	}

	if c.Scheduler != nil {
		if err := validatePositiveDuration(c.Scheduler.StepSize); err != nil {
			errs = append(errs, fmt.Errorf("scheduler.stepSize: %w", err))
		}
	}

	errs = append(errs, c.validateStatus()...)

	if c.Auth != nil {
		if err := validateDuration(c.Auth.Leeway); err != nil {
			errs = append(errs, fmt.Errorf("auth.leeway: %w", err))
		}
	}

	if err := validatePositiveDuration(c.Executor.Timeout); err != nil {
		errs = append(errs, fmt.Errorf("executor.timeout: %w", err))
	}

	if err := c.Telemetry.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("telemetry: %w", err))
	}

	return errors.Join(errs...)
}

func (c *Config) validateStatus() []error {
	switch c.GetStatusType() {
	case StatusTypeFile, StatusTypeMemory:
		return nil
	case StatusTypeDatabase:
		if c.Database == nil {
			return []error{fmt.Errorf("database configuration is required when status.type is %s", StatusTypeDatabase)}
		}
		return c.Database.validate()
	default:
		return []error{fmt.Errorf("status.type must be one of %s, %s or %s, got %q",
			StatusTypeFile, StatusTypeDatabase, StatusTypeMemory, c.GetStatusType())}
	}
}

func (d *DatabaseConfig) validate() []error {
	var errs []error
	if d.Host == "" {
		errs = append(errs, fmt.Errorf("database.host is required"))
	}
	if d.Port <= 0 || d.Port > 65535 {
		errs = append(errs, fmt.Errorf("database.port must be between 1 and 65535, got %d", d.Port))
	}
	if d.User == "" {
		errs = append(errs, fmt.Errorf("database.user is required"))
	}
	if d.Database == "" {
		errs = append(errs, fmt.Errorf("database.database is required"))
	}
	if err := validateDuration(d.ConnMaxLifetime); err != nil {
		errs = append(errs, fmt.Errorf("database.connMaxLifetime: %w", err))
	}
	return errs
}

func validateEndpoint(endpoint string) error {
	if endpoint == "" {
		return fmt.Errorf("is required")
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("host is required")
	}
	return nil
}

func validateDuration(value string) error {
	if value == "" {
		return nil
	}
	if _, err := time.ParseDuration(value); err != nil {
		return fmt.Errorf("must be a valid duration (e.g., '5s', '1m'): %w", err)
	}
	return nil
}

func validatePositiveDuration(value string) error {
	if value == "" {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("must be a valid duration (e.g., '5s', '1m'): %w", err)
	}
	if d <= 0 {
		return fmt.Errorf("must be positive, got %s", value)
	}
	return nil
}
