// Package infohash validates torrent identifiers and derives them from torrent payloads.
package infohash

import (
	"bytes"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/anacrolix/torrent/metainfo"

	apperrors "github.com/amaumene/rdstream/internal/errors"
)

var hashPattern = regexp.MustCompile(`^[0-9a-fA-F]{40}$`)

// Validate reports whether s is a 40 character hexadecimal info-hash.
func Validate(s string) bool {
	return hashPattern.MatchString(s)
}

// Normalize validates s and returns its lowercase canonical form.
func Normalize(s string) (string, error) {
	if !Validate(s) {
		return "", apperrors.NewInvalidIdentifierError(s)
	}
	return strings.ToLower(s), nil
}

// Torrent is the subset of a parsed .torrent file the gateway needs.
type Torrent struct {
	Hash     string
	Name     string
	Length   int64
	Trackers []string
}

// FromTorrent parses a raw .torrent payload. The hash is the SHA-1 of the
// bencoded info dictionary exactly as it appears in the payload.
func FromTorrent(payload []byte) (*Torrent, error) {
	if len(payload) == 0 {
		return nil, apperrors.NewInvalidSourceError("empty torrent payload", nil)
	}

	mi, err := metainfo.Load(bytes.NewReader(payload))
	if err != nil {
		return nil, apperrors.NewInvalidSourceError("failed to parse torrent payload", err)
	}
	if len(mi.InfoBytes) == 0 {
		return nil, apperrors.NewInvalidSourceError("torrent payload has no info dictionary", nil)
	}

	info, err := mi.UnmarshalInfo()
	if err != nil {
		return nil, apperrors.NewInvalidSourceError("failed to decode info dictionary", err)
	}

	hash := mi.HashInfoBytes()
	return &Torrent{
		Hash:     strings.ToLower(hash.HexString()),
		Name:     info.Name,
		Length:   info.TotalLength(),
		Trackers: trackers(mi),
	}, nil
}

// trackers flattens announce and announce-list, keeping first-seen order.
func trackers(mi *metainfo.MetaInfo) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(tr string) {
		tr = strings.TrimSpace(tr)
		if tr == "" || seen[tr] {
			return
		}
		seen[tr] = true
		out = append(out, tr)
	}

	add(mi.Announce)
	for _, tier := range mi.AnnounceList {
		for _, tr := range tier {
			add(tr)
		}
	}
	return out
}

// Magnet builds a magnet URI. xl comes first when the length is known.
func (t *Torrent) Magnet() string {
	var parts []string
	if t.Length > 0 {
		parts = append(parts, "xl="+strconv.FormatInt(t.Length, 10))
	}
	parts = append(parts, "xt=urn:btih:"+t.Hash)
	if t.Name != "" {
		parts = append(parts, "dn="+url.QueryEscape(t.Name))
	}
	for _, tr := range t.Trackers {
		parts = append(parts, "tr="+url.QueryEscape(tr))
	}
	return "magnet:?" + strings.Join(parts, "&")
}
