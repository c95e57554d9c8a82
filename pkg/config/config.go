// Package config loads tool configuration from environment variables,
// optionally overlaid by a YAML file. The core packages never read
// configuration themselves; values flow in through constructors.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the settings of the poi CLI and its collaborators.
type Config struct {
	// ClockSkewTolerance is the allowed issuer/verifier clock
	// disagreement for temporal checks.
	ClockSkewTolerance time.Duration

	// MaxLineageDepth bounds lineage chain verification.
	MaxLineageDepth int

	// RequireCertificateValidation turns on certificate checks during
	// validation.
	RequireCertificateValidation bool

	// DefaultExpiration is the horizon applied to receipts generated
	// without an explicit expiration.
	DefaultExpiration time.Duration

	// StorePath is the SQLite receipt archive location. Empty disables
	// archiving.
	StorePath string

	LogLevel string

	// Telemetry
	TelemetryEnabled bool
	OTLPEndpoint     string
}

// Load builds the configuration from environment variables with
// defaults.
func Load() *Config {
	cfg := &Config{
		ClockSkewTolerance:           300 * time.Second,
		MaxLineageDepth:              10,
		RequireCertificateValidation: false,
		DefaultExpiration:            time.Hour,
		LogLevel:                     "INFO",
		OTLPEndpoint:                 "localhost:4317",
	}

	if v := os.Getenv("POI_CLOCK_SKEW_TOLERANCE"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d >= 0 {
			cfg.ClockSkewTolerance = d
		}
	}
	if v := os.Getenv("POI_MAX_LINEAGE_DEPTH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxLineageDepth = n
		}
	}
	if v := os.Getenv("POI_REQUIRE_CERT_VALIDATION"); v != "" {
		cfg.RequireCertificateValidation = v == "true" || v == "1"
	}
	if v := os.Getenv("POI_DEFAULT_EXPIRATION"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.DefaultExpiration = d
		}
	}
	if v := os.Getenv("POI_STORE_PATH"); v != "" {
		cfg.StorePath = v
	}
	if v := os.Getenv("POI_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("POI_TELEMETRY_ENABLED"); v != "" {
		cfg.TelemetryEnabled = v == "true" || v == "1"
	}
	if v := os.Getenv("POI_OTLP_ENDPOINT"); v != "" {
		cfg.OTLPEndpoint = v
	}

	return cfg
}

// fileConfig mirrors Config for YAML decoding. Durations are strings
// ("30s", "1h") so the file reads the same as the environment
// variables; pointers distinguish "absent" from zero values.
type fileConfig struct {
	ClockSkewTolerance           *string `yaml:"clock_skew_tolerance"`
	MaxLineageDepth              *int    `yaml:"max_lineage_depth"`
	RequireCertificateValidation *bool   `yaml:"require_certificate_validation"`
	DefaultExpiration            *string `yaml:"default_expiration"`
	StorePath                    *string `yaml:"store_path"`
	LogLevel                     *string `yaml:"log_level"`
	TelemetryEnabled             *bool   `yaml:"telemetry_enabled"`
	OTLPEndpoint                 *string `yaml:"otlp_endpoint"`
}

// LoadFile overlays YAML settings from path onto the environment-based
// configuration.
func LoadFile(path string) (*Config, error) {
	cfg := Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	var file fileConfig
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}

	if file.ClockSkewTolerance != nil {
		d, err := time.ParseDuration(*file.ClockSkewTolerance)
		if err != nil {
			return nil, fmt.Errorf("config: clock_skew_tolerance: %w", err)
		}
		cfg.ClockSkewTolerance = d
	}
	if file.MaxLineageDepth != nil {
		cfg.MaxLineageDepth = *file.MaxLineageDepth
	}
	if file.RequireCertificateValidation != nil {
		cfg.RequireCertificateValidation = *file.RequireCertificateValidation
	}
	if file.DefaultExpiration != nil {
		d, err := time.ParseDuration(*file.DefaultExpiration)
		if err != nil {
			return nil, fmt.Errorf("config: default_expiration: %w", err)
		}
		cfg.DefaultExpiration = d
	}
	if file.StorePath != nil {
		cfg.StorePath = *file.StorePath
	}
	if file.LogLevel != nil {
		cfg.LogLevel = *file.LogLevel
	}
	if file.TelemetryEnabled != nil {
		cfg.TelemetryEnabled = *file.TelemetryEnabled
	}
	if file.OTLPEndpoint != nil {
		cfg.OTLPEndpoint = *file.OTLPEndpoint
	}

	if cfg.ClockSkewTolerance < 0 {
		return nil, fmt.Errorf("config: clock_skew_tolerance must not be negative")
	}
	if cfg.MaxLineageDepth <= 0 {
		return nil, fmt.Errorf("config: max_lineage_depth must be positive")
	}
	if cfg.DefaultExpiration <= 0 {
		return nil, fmt.Errorf("config: default_expiration must be positive")
	}
	return cfg, nil
}
