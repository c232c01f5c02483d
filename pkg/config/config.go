// Package config loads, defaults, and validates the depotfs configuration,
// and provides factories that turn configuration sections into live stores.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete depotfs configuration.
//
// Configuration sources (in order of precedence):
//  1. Environment variables (DEPOTFS_*)
//  2. Configuration file (YAML)
//  3. Default values
//
// Store Configuration Pattern:
// Each backend defines its own configuration type. The sections here carry
// a Type selector plus one untyped map per backend; only the map matching
// the selected type is decoded, by the factory for that store.
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging"`

	// Server contains server-wide settings
	Server ServerConfig `mapstructure:"server"`

	// Blob selects and configures the content-addressed blob store
	Blob StoreSelection `mapstructure:"blob"`

	// Dag selects and configures the DAG node store
	Dag StoreSelection `mapstructure:"dag"`

	// Ownership selects and configures the ownership ledger
	Ownership StoreSelection `mapstructure:"ownership"`

	// Tokens selects and configures the token store
	Tokens StoreSelection `mapstructure:"tokens"`

	// Depots selects and configures the depot store
	Depots StoreSelection `mapstructure:"depots"`

	// Roles selects and configures the role store
	Roles StoreSelection `mapstructure:"roles"`

	// Auth configures credential validation
	Auth AuthConfig `mapstructure:"auth"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" validate:"required,oneof=text json"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required"`
}

// ServerConfig contains server-wide settings.
type ServerConfig struct {
	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0"`
}

// StoreSelection picks a backend and carries its untyped options.
//
// Valid types depend on the store: blob accepts memory|badger|s3, the
// other stores accept memory|badger. The factory decodes the map matching
// Type; the other maps are ignored.
type StoreSelection struct {
	// Type specifies which backend to use
	Type string `mapstructure:"type" validate:"required"`

	// Memory contains memory-specific configuration
	Memory map[string]any `mapstructure:"memory"`

	// Badger contains BadgerDB-specific configuration
	Badger map[string]any `mapstructure:"badger"`

	// S3 contains S3-specific configuration (blob store only)
	S3 map[string]any `mapstructure:"s3"`
}

// AuthConfig configures credential validation.
type AuthConfig struct {
	// IssuerURL is the expected identity-provider issuer for JWT access
	// tokens. Empty disables the JWT path.
	IssuerURL string `mapstructure:"issuer_url"`

	// AdminUsers lists user ids bootstrapped to the admin role
	AdminUsers []string `mapstructure:"admin_users"`

	// MaxClockSkew bounds signed-request timestamp drift (default 300s)
	MaxClockSkew time.Duration `mapstructure:"max_clock_skew"`

	// RateLimit throttles authentication attempts per second (0 disables)
	RateLimit uint `mapstructure:"rate_limit"`

	// RateBurst is the burst capacity when RateLimit is set
	RateBurst uint `mapstructure:"rate_burst"`

	// UserTokenTTL overrides the default user token lifetime
	UserTokenTTL time.Duration `mapstructure:"user_token_ttl"`

	// AgentTokenTTL overrides the default agent token lifetime
	AgentTokenTTL time.Duration `mapstructure:"agent_token_ttl"`
}

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (DEPOTFS_*)
//  2. Configuration file
//  3. Default values
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath)

	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// setupViper configures environment variables and config file search.
func setupViper(v *viper.Viper, configPath string) {
	// Example: DEPOTFS_LOGGING_LEVEL=DEBUG
	v.SetEnvPrefix("DEPOTFS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists. A missing file
// is fine; defaults apply.
func readConfigFile(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return nil
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to the
// current directory if the home directory cannot be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "depotfs")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "depotfs")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}
