package config

import (
	"strings"
	"time"
)

// ApplyDefaults sets default values for any unspecified configuration
// fields.
//
// Zero values (0, "", nil) are replaced with defaults; explicit values are
// preserved. Backend-specific defaults live with the backends; only the
// selector-level defaults are applied here.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyServerDefaults(&cfg.Server)
	applyStoreDefaults(&cfg.Blob)
	applyStoreDefaults(&cfg.Dag)
	applyStoreDefaults(&cfg.Ownership)
	applyStoreDefaults(&cfg.Tokens)
	applyStoreDefaults(&cfg.Depots)
	applyStoreDefaults(&cfg.Roles)
	applyAuthDefaults(&cfg.Auth)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyServerDefaults(cfg *ServerConfig) {
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
}

// applyStoreDefaults sets the backend selector default and initializes the
// option maps so factories can decode them without nil checks.
func applyStoreDefaults(cfg *StoreSelection) {
	if cfg.Type == "" {
		cfg.Type = "memory"
	}
	if cfg.Memory == nil {
		cfg.Memory = make(map[string]any)
	}
	if cfg.Badger == nil {
		cfg.Badger = make(map[string]any)
	}
	if cfg.S3 == nil {
		cfg.S3 = make(map[string]any)
	}
}

func applyAuthDefaults(cfg *AuthConfig) {
	if cfg.MaxClockSkew == 0 {
		cfg.MaxClockSkew = 300 * time.Second
	}
}
