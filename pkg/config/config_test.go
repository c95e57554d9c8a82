package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, 300*time.Second, cfg.ClockSkewTolerance)
	assert.Equal(t, 10, cfg.MaxLineageDepth)
	assert.False(t, cfg.RequireCertificateValidation)
	assert.Equal(t, time.Hour, cfg.DefaultExpiration)
	assert.Empty(t, cfg.StorePath)
	assert.Equal(t, "INFO", cfg.LogLevel)
	assert.False(t, cfg.TelemetryEnabled)
	assert.Equal(t, "localhost:4317", cfg.OTLPEndpoint)
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("POI_CLOCK_SKEW_TOLERANCE", "30s")
	t.Setenv("POI_MAX_LINEAGE_DEPTH", "5")
	t.Setenv("POI_REQUIRE_CERT_VALIDATION", "true")
	t.Setenv("POI_DEFAULT_EXPIRATION", "15m")
	t.Setenv("POI_STORE_PATH", "/var/lib/poi/receipts.db")
	t.Setenv("POI_LOG_LEVEL", "DEBUG")
	t.Setenv("POI_TELEMETRY_ENABLED", "1")
	t.Setenv("POI_OTLP_ENDPOINT", "collector:4317")

	cfg := Load()

	assert.Equal(t, 30*time.Second, cfg.ClockSkewTolerance)
	assert.Equal(t, 5, cfg.MaxLineageDepth)
	assert.True(t, cfg.RequireCertificateValidation)
	assert.Equal(t, 15*time.Minute, cfg.DefaultExpiration)
	assert.Equal(t, "/var/lib/poi/receipts.db", cfg.StorePath)
	assert.Equal(t, "DEBUG", cfg.LogLevel)
	assert.True(t, cfg.TelemetryEnabled)
	assert.Equal(t, "collector:4317", cfg.OTLPEndpoint)
}

func TestLoad_IgnoresInvalidEnvironment(t *testing.T) {
	t.Setenv("POI_CLOCK_SKEW_TOLERANCE", "not a duration")
	t.Setenv("POI_MAX_LINEAGE_DEPTH", "-3")
	t.Setenv("POI_DEFAULT_EXPIRATION", "0s")

	cfg := Load()

	assert.Equal(t, 300*time.Second, cfg.ClockSkewTolerance)
	assert.Equal(t, 10, cfg.MaxLineageDepth)
	assert.Equal(t, time.Hour, cfg.DefaultExpiration)
}

func TestLoadFile_Overlay(t *testing.T) {
	t.Setenv("POI_LOG_LEVEL", "DEBUG")

	path := filepath.Join(t.TempDir(), "poi.yaml")
	body := `
clock_skew_tolerance: 1m
max_lineage_depth: 3
require_certificate_validation: true
store_path: /tmp/receipts.db
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, time.Minute, cfg.ClockSkewTolerance)
	assert.Equal(t, 3, cfg.MaxLineageDepth)
	assert.True(t, cfg.RequireCertificateValidation)
	assert.Equal(t, "/tmp/receipts.db", cfg.StorePath)
	// Settings absent from the file keep their environment values.
	assert.Equal(t, "DEBUG", cfg.LogLevel)
	assert.Equal(t, time.Hour, cfg.DefaultExpiration)
}

func TestLoadFile_Missing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestLoadFile_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "poi.yaml")
	require.NoError(t, os.WriteFile(path, []byte("{not yaml"), 0600))

	_, err := LoadFile(path)
	require.Error(t, err)
}

func TestLoadFile_Validation(t *testing.T) {
	cases := map[string]string{
		"negative skew":   "clock_skew_tolerance: -5s",
		"zero depth":      "max_lineage_depth: 0",
		"zero expiration": "default_expiration: 0s",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "poi.yaml")
			require.NoError(t, os.WriteFile(path, []byte(body), 0600))

			_, err := LoadFile(path)
			require.Error(t, err)
		})
	}
}
