package infohash

import (
	"crypto/sha1"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/anacrolix/torrent/bencode"
	"github.com/anacrolix/torrent/metainfo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/amaumene/rdstream/internal/errors"
)

func TestValidate(t *testing.T) {
	valid := []string{
		"0123456789abcdef0123456789abcdef01234567",
		"0123456789ABCDEF0123456789ABCDEF01234567",
		strings.Repeat("f", 40),
	}
	for _, s := range valid {
		assert.True(t, Validate(s), s)
	}

	invalid := []string{
		"",
		strings.Repeat("a", 39),
		strings.Repeat("a", 41),
		strings.Repeat("g", 40),
		"0123456789abcdef0123456789abcdef0123456 ",
		" 0123456789abcdef0123456789abcdef0123456",
		"magnet:?xt=urn:btih:0123456789abcdef0123",
	}
	for _, s := range invalid {
		assert.False(t, Validate(s), s)
	}
}

func TestNormalize(t *testing.T) {
	got, err := Normalize("ABCDEF0123456789ABCDEF0123456789ABCDEF01")
	require.NoError(t, err)
	assert.Equal(t, "abcdef0123456789abcdef0123456789abcdef01", got)

	_, err = Normalize("nope")
	assert.True(t, apperrors.Is(err, apperrors.ErrorTypeInvalidIdentifier))
}

func buildTorrent(t *testing.T) ([]byte, string) {
	t.Helper()

	info := metainfo.Info{
		Name:        "Movie.2020.1080p.mkv",
		PieceLength: 16384,
		Pieces:      make([]byte, 20),
		Length:      123456,
	}
	infoBytes, err := bencode.Marshal(info)
	require.NoError(t, err)

	mi := metainfo.MetaInfo{
		Announce: "udp://tracker.one:80",
		AnnounceList: metainfo.AnnounceList{
			{"udp://tracker.one:80", "udp://tracker.two:80"},
			{"http://tracker.three/announce"},
		},
		InfoBytes: infoBytes,
	}
	payload, err := bencode.Marshal(mi)
	require.NoError(t, err)

	sum := sha1.Sum(infoBytes)
	return payload, hex.EncodeToString(sum[:])
}

func TestFromTorrent(t *testing.T) {
	payload, wantHash := buildTorrent(t)

	tor, err := FromTorrent(payload)
	require.NoError(t, err)

	assert.Equal(t, wantHash, tor.Hash)
	assert.Equal(t, "Movie.2020.1080p.mkv", tor.Name)
	assert.Equal(t, int64(123456), tor.Length)
	assert.Equal(t, []string{
		"udp://tracker.one:80",
		"udp://tracker.two:80",
		"http://tracker.three/announce",
	}, tor.Trackers)
}

func TestFromTorrentRejectsGarbage(t *testing.T) {
	for _, payload := range [][]byte{nil, []byte("<html>login</html>"), []byte("d4:spami1ee")} {
		_, err := FromTorrent(payload)
		assert.True(t, apperrors.Is(err, apperrors.ErrorTypeInvalidSource), string(payload))
	}
}

func TestMagnet(t *testing.T) {
	tor := &Torrent{
		Hash:     "abcdef0123456789abcdef0123456789abcdef01",
		Name:     "My Movie",
		Length:   42,
		Trackers: []string{"udp://tracker.one:80"},
	}

	assert.Equal(t,
		"magnet:?xl=42&xt=urn:btih:abcdef0123456789abcdef0123456789abcdef01&dn=My+Movie&tr=udp%3A%2F%2Ftracker.one%3A80",
		tor.Magnet())

	bare := &Torrent{Hash: tor.Hash}
	assert.Equal(t, "magnet:?xt=urn:btih:"+tor.Hash, bare.Magnet())
}
