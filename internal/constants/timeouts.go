// Package constants defines timeout values and retry limits used throughout the application.
package constants

import "time"

// Timeout constants for various operations
const (
	// Hard wall-clock ceiling for one resolution
	ResolutionTimeout = 2 * time.Minute

	// Indexer requests and whole stream listings
	IndexerTimeout = 15 * time.Second
	ListingTimeout = 30 * time.Second

	// Debrid polling
	DefaultPollInterval     = 10 * time.Second
	FileSelectionRetryDelay = 2 * time.Second

	// Result cache TTLs
	SuccessTTL           = 10 * time.Minute
	DefinitiveFailureTTL = 3 * time.Minute
	TimeoutFailureTTL    = 30 * time.Second
	InProgressTTL        = 20 * time.Second

	// Source lookup cache TTL
	SourceTTL = 30 * time.Minute

	// Relay duplicate guard and HEAD probe cache
	DuplicateStreamWindow = 5 * time.Second
	StaleStreamAge        = 5 * time.Minute
	ProbeSuccessTTL       = 10 * time.Minute
	ProbeFailureTTL       = 2 * time.Minute

	// Maintenance
	DefaultSweepInterval   = 2 * time.Minute
	DefaultCleanupInterval = time.Hour
	DefaultJobRetention    = 24 * time.Hour
	StaleFlightAge         = 10 * time.Minute

	// Retry-After hint for retryable failures
	RetryAfter = 20 * time.Second

	// Graceful shutdown
	ShutdownTimeout = 10 * time.Second
)
