package constants

// Stream listing modes
const (
	StreamModeRDOnly      = "RD_ONLY"
	StreamModeBoth        = "BOTH"
	StreamModeTorrentOnly = "TORRENT_ONLY"
)

// Playback delivery modes for resolved links
const (
	DeliveryProxy    = "proxy"
	DeliveryRedirect = "redirect"
)

