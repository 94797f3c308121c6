// Package config loads pingscan's configuration file.
package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/anstrom/pingscan/internal/errors"
	"github.com/anstrom/pingscan/internal/hostspec"
	"github.com/anstrom/pingscan/internal/logging"
	"github.com/anstrom/pingscan/internal/services"
)

// Config represents the complete configuration
type Config struct {
	// Scanning configuration
	Scanning ScanningConfig `yaml:"scanning" json:"scanning"`

	// API configuration
	API APIConfig `yaml:"api" json:"api"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`

	// Settings of the long-running serve process
	Daemon DaemonConfig `yaml:"daemon" json:"daemon"`

	// Named service selections in addition to the built-in profiles
	Profiles []ProfileConfig `yaml:"profiles,omitempty" json:"profiles,omitempty"`

	// Recurring scans run by the server
	Schedules []ScheduleConfig `yaml:"schedules,omitempty" json:"schedules,omitempty"`
}

// ScanningConfig holds scanning-related settings
type ScanningConfig struct {
	// Per-probe timeout
	Timeout time.Duration `yaml:"timeout" json:"timeout"`

	// Maximum number of probes in flight
	Workers int `yaml:"workers" json:"workers"`

	// Maximum number of addresses a host specification may expand to
	MaxAddresses int `yaml:"max_addresses" json:"max_addresses"`

	// Protocol to port specification, e.g. {tcp: "22,80", icmp: ""}.
	// Empty means every protocol with its default ports.
	Services map[string]string `yaml:"services,omitempty" json:"services,omitempty"`
}

// APIConfig holds API server settings
type APIConfig struct {
	// Enable API server
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Listen address
	ListenAddr string `yaml:"listen_addr" json:"listen_addr"`

	// Listen port
	Port int `yaml:"port" json:"port"`

	// CORS settings
	CORS CORSConfig `yaml:"cors" json:"cors"`

	// API key authentication for scan and schedule endpoints
	Auth AuthConfig `yaml:"auth" json:"auth"`

	// Request timeout
	RequestTimeout time.Duration `yaml:"request_timeout" json:"request_timeout"`

	// Maximum request size
	MaxRequestSize int64 `yaml:"max_request_size" json:"max_request_size"`

	// Interval between snapshots pushed to stream clients
	StreamInterval time.Duration `yaml:"stream_interval" json:"stream_interval"`

	// Maximum number of scans running at once
	MaxConcurrentScans int `yaml:"max_concurrent_scans" json:"max_concurrent_scans"`

	// Maximum number of scans waiting to run
	QueueSize int `yaml:"queue_size" json:"queue_size"`

	// How long finished scans are kept for retrieval
	Retention time.Duration `yaml:"retention" json:"retention"`

	// Graceful shutdown timeout
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`
}

// CORSConfig holds CORS settings
type CORSConfig struct {
	// Enable CORS
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Allowed origins
	AllowedOrigins []string `yaml:"allowed_origins" json:"allowed_origins"`

	// Allowed methods
	AllowedMethods []string `yaml:"allowed_methods" json:"allowed_methods"`

	// Allowed headers
	AllowedHeaders []string `yaml:"allowed_headers" json:"allowed_headers"`
}

// DaemonConfig holds settings of `pingscan serve`.
type DaemonConfig struct {
	// PID file; empty disables it
	PIDFile string `yaml:"pid_file" json:"pid_file"`

	// Interval between engine health checks
	HealthCheckInterval time.Duration `yaml:"health_check_interval" json:"health_check_interval"`
}

// AuthConfig holds API key settings. Keys are stored as bcrypt hashes, as
// printed by `pingscan apikey generate`.
type AuthConfig struct {
	Enabled bool           `yaml:"enabled" json:"enabled"`
	Keys    []APIKeyConfig `yaml:"keys,omitempty" json:"keys,omitempty"`
}

// APIKeyConfig is one accepted API key.
type APIKeyConfig struct {
	Name      string     `yaml:"name" json:"name"`
	Hash      string     `yaml:"hash" json:"hash"`
	ExpiresAt *time.Time `yaml:"expires_at,omitempty" json:"expires_at,omitempty"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	// Log level (debug, info, warn, error)
	Level string `yaml:"level" json:"level"`

	// Log format (text, json)
	Format string `yaml:"format" json:"format"`

	// Log output (stdout, stderr, file path)
	Output string `yaml:"output" json:"output"`

	// Enable request logging for API
	RequestLogging bool `yaml:"request_logging" json:"request_logging"`
}

// ScheduleConfig describes a recurring scan.
type ScheduleConfig struct {
	Name string `yaml:"name" json:"name"`

	// Standard five-field cron expression or descriptor such as @hourly
	Cron string `yaml:"cron" json:"cron"`

	// Host specification
	Targets string `yaml:"targets" json:"targets"`

	// Protocol to port specification; empty uses the profile, or
	// scanning.services without one
	Services map[string]string `yaml:"services,omitempty" json:"services,omitempty"`

	// Scan profile name, built-in or from profiles
	Profile string `yaml:"profile,omitempty" json:"profile,omitempty"`

	// Per-probe timeout; zero uses the profile's, then scanning.timeout
	Timeout time.Duration `yaml:"timeout" json:"timeout"`

	Enabled bool `yaml:"enabled" json:"enabled"`
}

// ProfileConfig describes a custom scan profile.
type ProfileConfig struct {
	Name        string            `yaml:"name" json:"name"`
	Description string            `yaml:"description,omitempty" json:"description,omitempty"`
	Services    map[string]string `yaml:"services,omitempty" json:"services,omitempty"`
	Timeout     time.Duration     `yaml:"timeout,omitempty" json:"timeout,omitempty"`
}

// Default returns a configuration with sensible defaults
func Default() *Config {
	return &Config{
		Scanning: ScanningConfig{
			Timeout:      2 * time.Second,
			Workers:      256,
			MaxAddresses: hostspec.DefaultMaxAddresses,
		},
		API: APIConfig{
			Enabled:    true,
			ListenAddr: "127.0.0.1",
			Port:       8080,
			CORS: CORSConfig{
				Enabled:        true,
				AllowedOrigins: []string{"*"},
				AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
				AllowedHeaders: []string{"Content-Type", "Authorization", "X-API-Key"},
			},
			RequestTimeout:     30 * time.Second,
			MaxRequestSize:     1024 * 1024, // 1MB
			StreamInterval:     time.Second,
			MaxConcurrentScans: 4,
			QueueSize:          64,
			Retention:          time.Hour,
			ShutdownTimeout:    30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:          "info",
			Format:         "text",
			Output:         "stderr",
			RequestLogging: true,
		},
		Daemon: DaemonConfig{
			HealthCheckInterval: 30 * time.Second,
		},
	}
}

// Load loads configuration from a file. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	config := Default()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return config, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapConfigError(errors.CodeConfiguration, "failed to read config file", err)
	}

	// YAML is a superset of JSON, so one decoder serves both.
	if err := yaml.Unmarshal(data, config); err != nil {
		kind := "YAML"
		if filepath.Ext(path) == ".json" {
			kind = "JSON"
		}
		return nil, errors.WrapConfigError(errors.CodeConfiguration,
			fmt.Sprintf("failed to parse %s config", kind), err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Save saves configuration to a file
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate checks the configuration and returns the first problem found.
func (c *Config) Validate() error {
	if c.Scanning.Timeout <= 0 {
		return errors.ErrConfigInvalid("scanning.timeout", c.Scanning.Timeout)
	}
	if c.Scanning.Workers <= 0 {
		return errors.ErrConfigInvalid("scanning.workers", c.Scanning.Workers)
	}
	if c.Scanning.MaxAddresses < 0 {
		return errors.ErrConfigInvalid("scanning.max_addresses", c.Scanning.MaxAddresses)
	}
	if err := validateServices("scanning.services", c.Scanning.Services); err != nil {
		return err
	}

	if c.API.Enabled {
		if c.API.Port <= 0 || c.API.Port > 65535 {
			return errors.ErrConfigInvalid("api.port", c.API.Port)
		}
		if c.API.ListenAddr == "" {
			return errors.ErrConfigInvalid("api.listen_addr", c.API.ListenAddr)
		}
		if c.API.StreamInterval <= 0 {
			return errors.ErrConfigInvalid("api.stream_interval", c.API.StreamInterval)
		}
		if c.API.MaxConcurrentScans <= 0 {
			return errors.ErrConfigInvalid("api.max_concurrent_scans", c.API.MaxConcurrentScans)
		}
		if c.API.QueueSize <= 0 {
			return errors.ErrConfigInvalid("api.queue_size", c.API.QueueSize)
		}
		if c.API.Auth.Enabled && len(c.API.Auth.Keys) == 0 {
			return errors.NewConfigFieldError(errors.CodeValidation,
				"authentication enabled without keys", "api.auth.keys", 0)
		}
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return errors.ErrConfigInvalid("logging.level", c.Logging.Level)
	}
	validLogFormats := map[string]bool{"text": true, "json": true}
	if !validLogFormats[c.Logging.Format] {
		return errors.ErrConfigInvalid("logging.format", c.Logging.Format)
	}

	if c.Daemon.HealthCheckInterval < 0 {
		return errors.ErrConfigInvalid("daemon.health_check_interval", c.Daemon.HealthCheckInterval)
	}

	profileNames := make(map[string]bool, len(c.Profiles))
	for i, p := range c.Profiles {
		field := fmt.Sprintf("profiles[%d]", i)
		if p.Name == "" {
			return errors.ErrConfigInvalid(field+".name", p.Name)
		}
		if profileNames[p.Name] {
			return errors.NewConfigFieldError(errors.CodeValidation, "duplicate profile name", field+".name", p.Name)
		}
		profileNames[p.Name] = true
		if err := validateServices(field+".services", p.Services); err != nil {
			return err
		}
		if p.Timeout < 0 {
			return errors.ErrConfigInvalid(field+".timeout", p.Timeout)
		}
	}

	names := make(map[string]bool, len(c.Schedules))
	for i, s := range c.Schedules {
		field := fmt.Sprintf("schedules[%d]", i)
		if s.Name == "" {
			return errors.ErrConfigInvalid(field+".name", s.Name)
		}
		if names[s.Name] {
			return errors.NewConfigFieldError(errors.CodeValidation, "duplicate schedule name", field+".name", s.Name)
		}
		names[s.Name] = true

		if _, err := cron.ParseStandard(s.Cron); err != nil {
			return &errors.ConfigError{Code: errors.CodeValidation, Message: "invalid cron expression",
				Field: field + ".cron", Value: s.Cron, Cause: err}
		}
		if strings.TrimSpace(s.Targets) == "" {
			return errors.ErrConfigInvalid(field+".targets", s.Targets)
		}
		if err := validateServices(field+".services", s.Services); err != nil {
			return err
		}
		if s.Profile != "" && len(s.Services) > 0 {
			return errors.NewConfigFieldError(errors.CodeValidation,
				"set either services or profile", field+".profile", s.Profile)
		}
		if s.Timeout < 0 {
			return errors.ErrConfigInvalid(field+".timeout", s.Timeout)
		}
	}

	return nil
}

func validateServices(field string, specs map[string]string) error {
	for name, spec := range specs {
		if _, err := services.ParsePorts(spec); err != nil {
			return &errors.ConfigError{Code: errors.CodeValidation, Message: "invalid port specification",
				Field: field + "." + name, Value: spec, Cause: err}
		}
	}
	return nil
}

// ServiceRequest converts scanning.services into the form taken by
// services.Resolve. It returns nil, meaning all protocols, when unset.
func (c *Config) ServiceRequest() (map[services.Protocol][]int, error) {
	if len(c.Scanning.Services) == 0 {
		return nil, nil
	}
	return services.ParseRequest(c.Scanning.Services)
}

// LoggingConfig returns the logging package configuration.
func (c *Config) LoggingConfig() logging.Config {
	return logging.Config{
		Level:  logging.LogLevel(c.Logging.Level),
		Format: logging.LogFormat(c.Logging.Format),
		Output: c.Logging.Output,
	}
}

// GetAPIAddress returns the full API address
func (c *Config) GetAPIAddress() string {
	return net.JoinHostPort(c.API.ListenAddr, strconv.Itoa(c.API.Port))
}

// IsAPIEnabled returns true if API server is enabled
func (c *Config) IsAPIEnabled() bool {
	return c.API.Enabled
}
