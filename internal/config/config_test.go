package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amaumene/rdstream/internal/constants"
	apperrors "github.com/amaumene/rdstream/internal/errors"
)

func missingFile(t *testing.T) string {
	return filepath.Join(t.TempDir(), "absent.json")
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(missingFile(t), nil)
	require.NoError(t, err)

	assert.Equal(t, constants.DefaultPort, cfg.Port)
	assert.Equal(t, constants.StreamModeRDOnly, cfg.StreamMode)
	assert.Equal(t, constants.DeliveryProxy, cfg.Delivery)
	assert.Equal(t, 10*time.Minute, cfg.SuccessTTL)
	assert.Equal(t, 30*time.Minute, cfg.SourceTTL)
	assert.Equal(t, 10*time.Second, cfg.PollInterval)
	assert.Equal(t, 500, cfg.SourceCacheSize)
	assert.Less(t, cfg.FailureTTL, cfg.SuccessTTL)
	assert.False(t, cfg.CleanupEnabled)
}

func TestLoadLayering(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"port": "8080",
		"stream_mode": "both",
		"poll_interval": "15s",
		"realdebrid_api_key": "from-file"
	}`), 0o600))

	t.Setenv("REALDEBRID_API_KEY", "from-legacy-env")
	t.Setenv("RDSTREAM_MAX_POLL_ATTEMPTS", "24")
	t.Setenv("RDSTREAM_CLEANUP_ENABLED", "true")

	cfg, err := Load(path, map[string]interface{}{"port": "9090"})
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port, "overrides win over file")
	assert.Equal(t, constants.StreamModeBoth, cfg.StreamMode, "stream mode is upper-cased")
	assert.Equal(t, 15*time.Second, cfg.PollInterval)
	assert.Equal(t, "from-legacy-env", cfg.RealDebridAPIKey, "environment wins over file")
	assert.Equal(t, 24, cfg.MaxPollAttempts)
	assert.True(t, cfg.CleanupEnabled)
	assert.True(t, cfg.HasRealDebrid())
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{not json`), 0o600))

	_, err := Load(path, nil)
	assert.Error(t, err)
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "success_ttl", envKey("RDSTREAM_SUCCESS_TTL"))
	assert.Equal(t, "skt_uid", envKey("SKT_UID"))
	assert.Equal(t, "", envKey("HOME"))
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg, err := Load(missingFile(t), nil)
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown stream mode", func(c *Config) { c.StreamMode = "USENET" }},
		{"unknown delivery", func(c *Config) { c.Delivery = "teleport" }},
		{"failure ttl not shorter", func(c *Config) { c.FailureTTL = c.SuccessTTL }},
		{"timeout ttl longer", func(c *Config) { c.TimeoutTTL = time.Hour }},
		{"zero poll interval", func(c *Config) { c.PollInterval = 0 }},
		{"zero poll attempts", func(c *Config) { c.MaxPollAttempts = 0 }},
		{"zero file selection attempts", func(c *Config) { c.FileSelectAttempts = 0 }},
		{"zero cache size", func(c *Config) { c.ResultCacheSize = 0 }},
		{"bad log level", func(c *Config) { c.LogLevel = "chatty" }},
		{"cleanup without retention", func(c *Config) {
			c.CleanupEnabled = true
			c.JobRetention = 0
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	assert.NoError(t, valid().Validate())
}

func TestLoadInvalidOverrideIsConfigurationError(t *testing.T) {
	_, err := Load(missingFile(t), map[string]interface{}{"stream_mode": "SOMETIMES"})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrorTypeConfigurationInvalid))
	assert.Contains(t, err.Error(), "SOMETIMES")
}
