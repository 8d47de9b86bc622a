// Package constants defines numerical limits and conversion factors.
package constants

// Limits and counts for various operations
const (
	// Maximum unrestricted links returned per resolution
	MaxLinksPerResolution = 3

	// Torrents considered per stream listing
	MaxTorrentsPerListing = 5

	// Parallel payload downloads while building a listing
	ListingFetchGoroutines = 3

	// Provider status query page size for the existence check
	ExistingTorrentsPageSize = 100

	// Polling and file-selection budgets
	DefaultMaxPollAttempts      = 12
	DefaultFileSelectionRetries = 5

	// Relay copy buffer
	RelayBufferSize = 256 * 1024

	// Short-form query length in words
	ShortQueryWords = 3
)
