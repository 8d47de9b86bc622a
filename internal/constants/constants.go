// Package constants defines application-wide constants and default values.
package constants

const (
	// Addon metadata
	AddonID          = "org.rdstream.sktorrent"
	AddonVersion     = "1.2.0"
	AddonName        = "SKTorrent RD"
	AddonDescription = "SKTorrent.eu search with Real-Debrid resolution and streaming"

	// Default configuration values
	DefaultPort       = "7000"
	DefaultLogLevel   = "info"
	DefaultLedgerPath = "./rdstream.db"

	// Result cache
	DefaultResultCacheSize = 1000

	// Source lookup cache
	DefaultSourceCacheSize = 500

	// Relay HEAD probe cache
	DefaultProbeCacheSize = 500

	// Per-client rate limiting
	DefaultRateLimitMax = 100 // requests per hour per client

	// Real-Debrid API throttling
	RealDebridRateLimit = 4 // requests per second
	RealDebridRateBurst = 4
)

// VideoExtensions lists container extensions the file selector treats as video.
var VideoExtensions = map[string]bool{
	".mkv":  true,
	".mp4":  true,
	".avi":  true,
	".mov":  true,
	".wmv":  true,
	".m4v":  true,
	".ts":   true,
	".m2ts": true,
	".webm": true,
	".mpg":  true,
	".mpeg": true,
	".flv":  true,
}

// ArchiveExtensions are never picked by the non-video fallback.
var ArchiveExtensions = map[string]bool{
	".rar": true,
	".zip": true,
	".7z":  true,
	".tar": true,
	".gz":  true,
	".iso": true,
}
