package services

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"sync"
	"testing"

	"github.com/anacrolix/torrent/bencode"
	"github.com/anacrolix/torrent/metainfo"
	"github.com/stretchr/testify/require"

	"github.com/amaumene/rdstream/internal/debrid"
	"github.com/amaumene/rdstream/internal/models"
)

// buildTorrent returns a .torrent payload for name and its info-hash.
func buildTorrent(t *testing.T, name string) ([]byte, string) {
	t.Helper()

	infoBytes, err := bencode.Marshal(metainfo.Info{
		Name:        name,
		PieceLength: 16384,
		Pieces:      make([]byte, 20),
		Length:      1 << 30,
	})
	require.NoError(t, err)

	payload, err := bencode.Marshal(metainfo.MetaInfo{
		Announce:  "udp://tracker.example:80",
		InfoBytes: infoBytes,
	})
	require.NoError(t, err)

	sum := sha1.Sum(infoBytes)
	return payload, hex.EncodeToString(sum[:])
}

type fakeIndexer struct {
	mu       sync.Mutex
	results  map[string][]models.SourceRecord
	payloads map[string][]byte
	searches []string
	fetches  int
}

func newFakeIndexer() *fakeIndexer {
	return &fakeIndexer{
		results:  make(map[string][]models.SourceRecord),
		payloads: make(map[string][]byte),
	}
}

func (f *fakeIndexer) Search(ctx context.Context, query string) ([]models.SourceRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searches = append(f.searches, query)
	return f.results[query], nil
}

func (f *fakeIndexer) FetchTorrent(ctx context.Context, downloadURL string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	payload, ok := f.payloads[downloadURL]
	if !ok {
		return nil, fmt.Errorf("no payload at %s", downloadURL)
	}
	return payload, nil
}

type fakeResolver struct {
	mu      sync.Mutex
	calls   int
	sources []debrid.Source
	block   chan struct{}
	result  func(src debrid.Source) (*models.Resolution, error)
}

func (f *fakeResolver) Resolve(ctx context.Context, src debrid.Source) (*models.Resolution, error) {
	f.mu.Lock()
	f.calls++
	f.sources = append(f.sources, src)
	f.mu.Unlock()

	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.result(src)
}

func (f *fakeResolver) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func readyAt(url string) func(src debrid.Source) (*models.Resolution, error) {
	return func(src debrid.Source) (*models.Resolution, error) {
		return &models.Resolution{
			Hash:      src.Hash,
			TorrentID: "RD1",
			Links:     []models.Link{{Filename: "movie.mkv", URL: url, Filesize: 1000}},
		}, nil
	}
}

type fakeTitles struct {
	titles *Titles
	err    error
}

func (f *fakeTitles) Lookup(ctx context.Context, imdbID string) (*Titles, error) {
	return f.titles, f.err
}

type recordingRegistrar struct {
	mu      sync.Mutex
	sources map[string]models.SourceRecord
}

func (r *recordingRegistrar) RegisterSource(hash string, rec models.SourceRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sources == nil {
		r.sources = make(map[string]models.SourceRecord)
	}
	r.sources[hash] = rec
}
