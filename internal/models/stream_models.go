package models

import "time"

// SourceRecord describes a torrent located by the indexer.
type SourceRecord struct {
	Name        string `json:"name"`
	Category    string `json:"category"`
	Seeds       int    `json:"seeds"`
	Size        string `json:"size"`
	DownloadURL string `json:"download_url"`
	IndexerID   string `json:"indexer_id"`
	Query       string `json:"query,omitempty"`
	ContentType string `json:"content_type,omitempty"`
}

// Link is one finalized direct download.
type Link struct {
	Filename string `json:"filename"`
	URL      string `json:"url"`
	Filesize int64  `json:"filesize"`
}

// Resolution is a successful outcome of resolving an info-hash.
type Resolution struct {
	Hash        string    `json:"hash"`
	TorrentID   string    `json:"torrent_id,omitempty"`
	Links       []Link    `json:"links"`
	CachedUntil time.Time `json:"cached_until"`
}

// Primary returns the first link, which is the one played back.
func (r *Resolution) Primary() (Link, bool) {
	if r == nil || len(r.Links) == 0 {
		return Link{}, false
	}
	return r.Links[0], true
}

// Stats is the /stats snapshot.
type Stats struct {
	Cache            int `json:"cache"`
	Sources          int `json:"sources"`
	ActiveProcessing int `json:"activeProcessing"`
	ActiveStreams    int `json:"activeStreams"`
}
