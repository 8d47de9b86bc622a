// Package config provides configuration management for the application.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"

	"github.com/amaumene/rdstream/internal/constants"
	apperrors "github.com/amaumene/rdstream/internal/errors"
	"github.com/amaumene/rdstream/pkg/logger"
)

const (
	// Default configuration file name
	defaultConfigFile = "config.json"
	// Prefix for namespaced environment variables
	envPrefix = "RDSTREAM_"

	defaultRealDebridURL = "https://api.real-debrid.com/rest/1.0"
	defaultIndexerURL    = "https://sktorrent.eu/torrent"
	defaultTitleURL      = "https://www.imdb.com/title"
)

// legacyEnv are unprefixed variables still honoured for existing deployments.
var legacyEnv = map[string]bool{
	"REALDEBRID_API_KEY": true,
	"ADDON_API_KEY":      true,
	"SKT_UID":            true,
	"SKT_PASS":           true,
	"STREAM_MODE":        true,
	"PORT":               true,
	"LOG_LEVEL":          true,
	"LOG_FORMAT":         true,
	"LOG_FILE":           true,
	"RATE_LIMIT_MAX":     true,
	"BASE_URL":           true,
}

// Config holds the application configuration.
// Values are layered: defaults, JSON file, environment, then explicit overrides.
type Config struct {
	// Credentials
	RealDebridAPIKey string `koanf:"realdebrid_api_key"`
	AddonAPIKey      string `koanf:"addon_api_key"`
	SKTUID           string `koanf:"skt_uid"`
	SKTPass          string `koanf:"skt_pass"`

	// HTTP surface
	Port       string `koanf:"port"`
	BaseURL    string `koanf:"base_url"`
	StreamMode string `koanf:"stream_mode"`
	Delivery   string `koanf:"delivery"`

	// Upstream endpoints
	RealDebridURL string `koanf:"realdebrid_url"`
	IndexerURL    string `koanf:"indexer_url"`
	TitleURL      string `koanf:"title_url"`

	// Logging
	LogLevel      string `koanf:"log_level"`
	LogFormat     string `koanf:"log_format"`
	LogFile       string `koanf:"log_file"`
	LogMaxSizeMB  int    `koanf:"log_max_size_mb"`
	LogMaxBackups int    `koanf:"log_max_backups"`

	// Storage settings
	LedgerPath      string        `koanf:"ledger_path"`
	ResultCacheSize int           `koanf:"result_cache_size"`
	SourceCacheSize int           `koanf:"source_cache_size"`
	SuccessTTL      time.Duration `koanf:"success_ttl"`
	FailureTTL      time.Duration `koanf:"failure_ttl"`
	TimeoutTTL      time.Duration `koanf:"timeout_ttl"`
	InProgressTTL   time.Duration `koanf:"in_progress_ttl"`
	SourceTTL       time.Duration `koanf:"source_ttl"`

	// Debrid negotiation
	PollInterval        time.Duration `koanf:"poll_interval"`
	MaxPollAttempts     int           `koanf:"max_poll_attempts"`
	FileSelectAttempts  int           `koanf:"file_select_attempts"`
	ResolutionTimeout   time.Duration `koanf:"resolution_timeout"`
	ReturnOnDownloading bool          `koanf:"return_on_downloading"`

	// Client protection
	RateLimitMax int `koanf:"rate_limit_max"`

	// Maintenance
	SweepInterval   time.Duration `koanf:"sweep_interval"`
	CleanupEnabled  bool          `koanf:"cleanup_enabled"`
	CleanupInterval time.Duration `koanf:"cleanup_interval"`
	JobRetention    time.Duration `koanf:"job_retention"`
}

func defaults() map[string]interface{} {
	return map[string]interface{}{
		"port":                  constants.DefaultPort,
		"stream_mode":           constants.StreamModeRDOnly,
		"delivery":              constants.DeliveryProxy,
		"realdebrid_url":        defaultRealDebridURL,
		"indexer_url":           defaultIndexerURL,
		"title_url":             defaultTitleURL,
		"log_level":             constants.DefaultLogLevel,
		"log_format":            "console",
		"log_max_size_mb":       50,
		"log_max_backups":       3,
		"ledger_path":           constants.DefaultLedgerPath,
		"result_cache_size":     constants.DefaultResultCacheSize,
		"source_cache_size":     constants.DefaultSourceCacheSize,
		"success_ttl":           constants.SuccessTTL.String(),
		"failure_ttl":           constants.DefinitiveFailureTTL.String(),
		"timeout_ttl":           constants.TimeoutFailureTTL.String(),
		"in_progress_ttl":       constants.InProgressTTL.String(),
		"source_ttl":            constants.SourceTTL.String(),
		"poll_interval":         constants.DefaultPollInterval.String(),
		"max_poll_attempts":     constants.DefaultMaxPollAttempts,
		"file_select_attempts":  constants.DefaultFileSelectionRetries,
		"resolution_timeout":    constants.ResolutionTimeout.String(),
		"return_on_downloading": false,
		"rate_limit_max":        constants.DefaultRateLimitMax,
		"sweep_interval":        constants.DefaultSweepInterval.String(),
		"cleanup_enabled":       false,
		"cleanup_interval":      constants.DefaultCleanupInterval.String(),
		"job_retention":         constants.DefaultJobRetention.String(),
	}
}

// Load reads configuration from defaults, the optional JSON file at path, the
// environment and finally overrides (typically CLI flags, keyed like the file).
// An empty path falls back to CONFIG_FILE and then config.json.
func Load(path string, overrides map[string]interface{}) (*Config, error) {
	// A missing .env is the common case
	_ = godotenv.Load()

	if path == "" {
		path = getEnvOrDefault("CONFIG_FILE", defaultConfigFile)
	}

	k := koanf.New(".")
	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if err := k.Load(file.Provider(path), json.Parser()); err != nil {
		// Ignore file not found errors
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := k.Load(env.Provider("", ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	if len(overrides) > 0 {
		if err := k.Load(confmap.Provider(overrides, "."), nil); err != nil {
			return nil, fmt.Errorf("failed to apply overrides: %w", err)
		}
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, apperrors.NewConfigurationError("invalid config", err)
	}

	return cfg, nil
}

// envKey maps an environment variable to its koanf key, or "" to skip it.
func envKey(name string) string {
	if strings.HasPrefix(name, envPrefix) {
		return strings.ToLower(strings.TrimPrefix(name, envPrefix))
	}
	if legacyEnv[name] {
		return strings.ToLower(name)
	}
	return ""
}

func (c *Config) normalize() {
	c.StreamMode = strings.ToUpper(strings.TrimSpace(c.StreamMode))
	c.Delivery = strings.ToLower(strings.TrimSpace(c.Delivery))
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	c.RealDebridURL = strings.TrimRight(c.RealDebridURL, "/")
	c.IndexerURL = strings.TrimRight(c.IndexerURL, "/")
	c.TitleURL = strings.TrimRight(c.TitleURL, "/")
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	switch c.StreamMode {
	case constants.StreamModeRDOnly, constants.StreamModeBoth, constants.StreamModeTorrentOnly:
	default:
		return fmt.Errorf("unknown stream mode %q", c.StreamMode)
	}

	switch c.Delivery {
	case constants.DeliveryProxy, constants.DeliveryRedirect:
	default:
		return fmt.Errorf("unknown delivery mode %q", c.Delivery)
	}

	if !logger.IsValidLevel(c.LogLevel) {
		return fmt.Errorf("unknown log level %q", c.LogLevel)
	}

	if c.ResultCacheSize <= 0 || c.SourceCacheSize <= 0 {
		return fmt.Errorf("cache sizes must be positive")
	}

	if c.SuccessTTL <= 0 || c.SourceTTL <= 0 {
		return fmt.Errorf("cache TTLs must be positive")
	}

	for name, ttl := range map[string]time.Duration{
		"failure_ttl":     c.FailureTTL,
		"timeout_ttl":     c.TimeoutTTL,
		"in_progress_ttl": c.InProgressTTL,
	} {
		if ttl <= 0 || ttl >= c.SuccessTTL {
			return fmt.Errorf("%s (%s) must be positive and shorter than success_ttl (%s)", name, ttl, c.SuccessTTL)
		}
	}

	if c.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive")
	}

	if c.MaxPollAttempts < 1 || c.FileSelectAttempts < 1 {
		return fmt.Errorf("attempt counts must be at least 1")
	}

	if c.ResolutionTimeout <= 0 {
		return fmt.Errorf("resolution_timeout must be positive")
	}

	if c.RateLimitMax < 0 {
		return fmt.Errorf("rate_limit_max must not be negative")
	}

	if c.SweepInterval <= 0 {
		return fmt.Errorf("sweep_interval must be positive")
	}

	if c.CleanupEnabled && (c.CleanupInterval <= 0 || c.JobRetention <= 0) {
		return fmt.Errorf("cleanup requires positive cleanup_interval and job_retention")
	}

	return nil
}

// HasRealDebrid reports whether a provider key is configured.
func (c *Config) HasRealDebrid() bool {
	return c.RealDebridAPIKey != ""
}

// getEnvOrDefault returns environment variable value or default if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
