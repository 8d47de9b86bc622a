package debrid

import "strings"

// Status is the provider job state, parsed from the provider's label.
type Status int

const (
	StatusUnknown Status = iota
	StatusSubmitted
	StatusAwaitingFileSelection
	StatusConverting
	StatusQueued
	StatusDownloading
	StatusDownloaded
	StatusErrored
	StatusDead
)

var statusNames = map[Status]string{
	StatusUnknown:               "unknown",
	StatusSubmitted:             "submitted",
	StatusAwaitingFileSelection: "awaiting_file_selection",
	StatusConverting:            "converting",
	StatusQueued:                "queued",
	StatusDownloading:           "downloading",
	StatusDownloaded:            "downloaded",
	StatusErrored:               "errored",
	StatusDead:                  "dead",
}

func (s Status) String() string {
	return statusNames[s]
}

// ParseStatus maps a Real-Debrid status label to a Status. Labels it does
// not know become StatusUnknown.
func ParseStatus(label string) Status {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "magnet_conversion":
		return StatusConverting
	case "waiting_files_selection":
		return StatusAwaitingFileSelection
	case "queued":
		return StatusQueued
	case "downloading", "compressing", "uploading":
		return StatusDownloading
	case "downloaded":
		return StatusDownloaded
	case "error", "magnet_error", "virus":
		return StatusErrored
	case "dead":
		return StatusDead
	}
	return StatusUnknown
}

// Bucket groups statuses by what the poll loop does with them.
type Bucket int

const (
	BucketActive Bucket = iota
	BucketSuccess
	BucketFailure
)

func (s Status) Bucket() Bucket {
	switch s {
	case StatusDownloaded:
		return BucketSuccess
	case StatusErrored, StatusDead:
		return BucketFailure
	}
	return BucketActive
}
