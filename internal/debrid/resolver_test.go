package debrid

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/amaumene/rdstream/internal/errors"
	"github.com/amaumene/rdstream/pkg/logger"
	"github.com/amaumene/rdstream/pkg/realdebrid"
)

const testHash = "0123456789abcdef0123456789abcdef01234567"

type fakeProvider struct {
	mu sync.Mutex

	existing []realdebrid.Torrent
	statuses []string
	files    []realdebrid.File
	links    []string

	addErr        error
	infoErr       error
	selectErr     []error
	unrestrictErr map[string]error

	infoCalls  int
	addCalls   int
	magnetAdds int
	selected   [][]int
	unrestrict []string
}

func (f *fakeProvider) ListTorrents(ctx context.Context, limit int) ([]realdebrid.Torrent, error) {
	return f.existing, nil
}

func (f *fakeProvider) TorrentInfo(ctx context.Context, id string) (*realdebrid.TorrentInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.infoCalls++
	if f.infoErr != nil {
		return nil, f.infoErr
	}
	status := "queued"
	if len(f.statuses) > 0 {
		status = f.statuses[min(f.infoCalls-1, len(f.statuses)-1)]
	}
	info := &realdebrid.TorrentInfo{ID: id, Hash: testHash, Status: status, Files: f.files}
	if status == "downloaded" {
		info.Links = f.links
		info.Progress = 100
	}
	return info, nil
}

func (f *fakeProvider) AddTorrent(ctx context.Context, payload []byte) (*realdebrid.AddResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.addCalls++
	if f.addErr != nil {
		return nil, f.addErr
	}
	return &realdebrid.AddResponse{ID: "JOB1"}, nil
}

func (f *fakeProvider) AddMagnet(ctx context.Context, magnet string) (*realdebrid.AddResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.magnetAdds++
	return &realdebrid.AddResponse{ID: "JOB1"}, nil
}

func (f *fakeProvider) SelectFiles(ctx context.Context, id string, fileIDs []int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.selectErr) > 0 {
		err := f.selectErr[0]
		f.selectErr = f.selectErr[1:]
		return err
	}
	f.selected = append(f.selected, fileIDs)
	return nil
}

func (f *fakeProvider) UnrestrictLink(ctx context.Context, link string) (*realdebrid.UnrestrictedLink, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unrestrict = append(f.unrestrict, link)
	if err := f.unrestrictErr[link]; err != nil {
		return nil, err
	}
	return &realdebrid.UnrestrictedLink{
		Filename: "movie.mkv",
		Download: "https://cdn.example" + link[len("https://real-debrid.com"):],
		Filesize: 2 << 30,
	}, nil
}

type fakeLedger struct {
	ids      map[string]string
	recorded []string
}

func (l *fakeLedger) LookupTorrentID(hash string) (string, bool) {
	id, ok := l.ids[hash]
	return id, ok
}

func (l *fakeLedger) RecordSubmission(hash, torrentID, name string) error {
	l.recorded = append(l.recorded, hash+"="+torrentID)
	return nil
}

func testOptions() Options {
	return Options{
		PollInterval:       time.Millisecond,
		MaxPollAttempts:    5,
		FileSelectAttempts: 3,
		FileSelectDelay:    time.Millisecond,
		MaxLinks:           3,
	}
}

func payloadSource() Source {
	return Source{Hash: testHash, Name: "Movie", Payload: []byte("d4:infod4:name5:Movieee")}
}

func TestResolveReadyAfterThreePolls(t *testing.T) {
	provider := &fakeProvider{
		statuses: []string{"queued", "downloading", "downloaded"},
		links:    []string{"https://real-debrid.com/d/A"},
	}
	r := NewResolver(provider, nil, testOptions(), logger.NewNop())

	res, err := r.Resolve(context.Background(), payloadSource())
	require.NoError(t, err)

	assert.Equal(t, 3, provider.infoCalls)
	assert.Equal(t, 1, provider.addCalls)
	assert.Equal(t, "JOB1", res.TorrentID)
	require.Len(t, res.Links, 1)
	assert.Equal(t, "https://cdn.example/d/A", res.Links[0].URL)
}

func TestResolveDeadStopsImmediately(t *testing.T) {
	provider := &fakeProvider{statuses: []string{"queued", "dead", "downloaded"}}
	r := NewResolver(provider, nil, testOptions(), logger.NewNop())

	_, err := r.Resolve(context.Background(), payloadSource())
	assert.True(t, apperrors.Is(err, apperrors.ErrorTypeProviderTerminal))
	assert.Equal(t, 2, provider.infoCalls, "no polling after a terminal failure")
}

func TestResolveVirusIsTerminal(t *testing.T) {
	provider := &fakeProvider{statuses: []string{"virus"}}
	r := NewResolver(provider, nil, testOptions(), logger.NewNop())

	_, err := r.Resolve(context.Background(), payloadSource())
	assert.True(t, apperrors.Is(err, apperrors.ErrorTypeProviderTerminal))
	assert.Equal(t, 1, provider.infoCalls)
}

func TestResolveTimesOutAfterPollBudget(t *testing.T) {
	provider := &fakeProvider{statuses: []string{"downloading"}}
	r := NewResolver(provider, nil, testOptions(), logger.NewNop())

	_, err := r.Resolve(context.Background(), payloadSource())
	assert.True(t, apperrors.Is(err, apperrors.ErrorTypeTimeout))
	assert.Equal(t, 5, provider.infoCalls)
}

func TestResolveUnknownStatusKeepsPolling(t *testing.T) {
	provider := &fakeProvider{
		statuses: []string{"some_new_state", "downloaded"},
		links:    []string{"https://real-debrid.com/d/A"},
	}
	r := NewResolver(provider, nil, testOptions(), logger.NewNop())

	_, err := r.Resolve(context.Background(), payloadSource())
	require.NoError(t, err)
	assert.Equal(t, 2, provider.infoCalls)
}

func TestResolveReturnsInProgressWhenDownloading(t *testing.T) {
	provider := &fakeProvider{statuses: []string{"queued", "downloading"}}
	opts := testOptions()
	opts.ReturnOnDownloading = true
	r := NewResolver(provider, nil, opts, logger.NewNop())

	_, err := r.Resolve(context.Background(), payloadSource())
	assert.True(t, apperrors.Is(err, apperrors.ErrorTypeInProgress))
	assert.Equal(t, 2, provider.infoCalls)
}

func TestResolveSelectsLargestVideo(t *testing.T) {
	provider := &fakeProvider{
		statuses: []string{"waiting_files_selection", "downloaded"},
		files: []realdebrid.File{
			{ID: 1, Path: "/Movie/sample.mkv", Bytes: 50 << 20},
			{ID: 2, Path: "/Movie/movie.mkv", Bytes: 2 << 30},
		},
		links: []string{"https://real-debrid.com/d/A"},
	}
	r := NewResolver(provider, nil, testOptions(), logger.NewNop())

	_, err := r.Resolve(context.Background(), payloadSource())
	require.NoError(t, err)
	assert.Equal(t, [][]int{{2}}, provider.selected)
}

func TestResolveFileSelectionRetriesTransientErrors(t *testing.T) {
	provider := &fakeProvider{
		statuses:  []string{"waiting_files_selection", "downloaded"},
		files:     []realdebrid.File{{ID: 1, Path: "/movie.avi", Bytes: 1 << 30}},
		links:     []string{"https://real-debrid.com/d/A"},
		selectErr: []error{&realdebrid.APIError{StatusCode: http.StatusServiceUnavailable}},
	}
	r := NewResolver(provider, nil, testOptions(), logger.NewNop())

	_, err := r.Resolve(context.Background(), payloadSource())
	require.NoError(t, err)
	assert.Equal(t, [][]int{{1}}, provider.selected)
}

func TestResolveFileSelectionFallsBackToAll(t *testing.T) {
	provider := &fakeProvider{
		statuses: []string{"waiting_files_selection", "downloaded"},
		links:    []string{"https://real-debrid.com/d/A"},
	}
	r := NewResolver(provider, nil, testOptions(), logger.NewNop())

	_, err := r.Resolve(context.Background(), payloadSource())
	require.NoError(t, err)
	require.Len(t, provider.selected, 1)
	assert.Nil(t, provider.selected[0], "nil selects every file")
	// first poll, three file list attempts, second poll
	assert.Equal(t, 5, provider.infoCalls)
}

func TestResolveReusesExistingDownloadedJob(t *testing.T) {
	provider := &fakeProvider{
		existing: []realdebrid.Torrent{{
			ID:     "OLD",
			Hash:   "0123456789ABCDEF0123456789ABCDEF01234567",
			Status: "downloaded",
			Links:  []string{"https://real-debrid.com/d/A"},
		}},
	}
	r := NewResolver(provider, nil, testOptions(), logger.NewNop())

	res, err := r.Resolve(context.Background(), payloadSource())
	require.NoError(t, err)
	assert.Equal(t, 0, provider.addCalls)
	assert.Equal(t, 0, provider.infoCalls)
	assert.Equal(t, "OLD", res.TorrentID)
}

func TestResolveUsesLedgerAndRecordsSubmissions(t *testing.T) {
	provider := &fakeProvider{
		statuses: []string{"downloaded"},
		links:    []string{"https://real-debrid.com/d/A"},
	}
	ledger := &fakeLedger{ids: map[string]string{testHash: "KNOWN"}}
	r := NewResolver(provider, ledger, testOptions(), logger.NewNop())

	res, err := r.Resolve(context.Background(), payloadSource())
	require.NoError(t, err)
	assert.Equal(t, "KNOWN", res.TorrentID)
	assert.Equal(t, 0, provider.addCalls)
	assert.Empty(t, ledger.recorded)

	fresh := &fakeLedger{}
	provider = &fakeProvider{statuses: []string{"downloaded"}, links: []string{"https://real-debrid.com/d/A"}}
	r = NewResolver(provider, fresh, testOptions(), logger.NewNop())
	_, err = r.Resolve(context.Background(), payloadSource())
	require.NoError(t, err)
	assert.Equal(t, []string{testHash + "=JOB1"}, fresh.recorded)
}

func TestResolveSubmitsMagnetWithoutPayload(t *testing.T) {
	provider := &fakeProvider{statuses: []string{"downloaded"}, links: []string{"https://real-debrid.com/d/A"}}
	r := NewResolver(provider, nil, testOptions(), logger.NewNop())

	_, err := r.Resolve(context.Background(), Source{Hash: testHash, Magnet: "magnet:?xt=urn:btih:" + testHash})
	require.NoError(t, err)
	assert.Equal(t, 1, provider.magnetAdds)
	assert.Equal(t, 0, provider.addCalls)
}

func TestResolveFinalizeCapsAndToleratesFailures(t *testing.T) {
	provider := &fakeProvider{
		statuses: []string{"downloaded"},
		links: []string{
			"https://real-debrid.com/d/A",
			"https://real-debrid.com/d/B",
			"https://real-debrid.com/d/C",
			"https://real-debrid.com/d/D",
		},
		unrestrictErr: map[string]error{
			"https://real-debrid.com/d/B": &realdebrid.APIError{StatusCode: http.StatusServiceUnavailable},
		},
	}
	r := NewResolver(provider, nil, testOptions(), logger.NewNop())

	res, err := r.Resolve(context.Background(), payloadSource())
	require.NoError(t, err)
	assert.Len(t, provider.unrestrict, 3)
	require.Len(t, res.Links, 2)
	assert.Equal(t, "https://cdn.example/d/A", res.Links[0].URL)
	assert.Equal(t, "https://cdn.example/d/C", res.Links[1].URL)
}

func TestResolveErrorClassification(t *testing.T) {
	tests := []struct {
		name     string
		provider *fakeProvider
		want     string
	}{
		{
			name:     "submit rejected",
			provider: &fakeProvider{addErr: &realdebrid.APIError{StatusCode: http.StatusBadRequest}},
			want:     apperrors.ErrorTypeInvalidSource,
		},
		{
			name:     "bad credentials",
			provider: &fakeProvider{addErr: &realdebrid.APIError{StatusCode: http.StatusUnauthorized}},
			want:     apperrors.ErrorTypeProviderTerminal,
		},
		{
			name:     "provider down",
			provider: &fakeProvider{infoErr: &realdebrid.APIError{StatusCode: http.StatusBadGateway}},
			want:     apperrors.ErrorTypeTransientProvider,
		},
		{
			name:     "network failure",
			provider: &fakeProvider{infoErr: errors.New("connection reset")},
			want:     apperrors.ErrorTypeTransientProvider,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewResolver(tt.provider, nil, testOptions(), logger.NewNop())
			_, err := r.Resolve(context.Background(), payloadSource())
			assert.Equal(t, tt.want, apperrors.TypeOf(err))
		})
	}
}

func TestResolveContextDeadlineIsTimeout(t *testing.T) {
	provider := &fakeProvider{statuses: []string{"downloading"}}
	opts := testOptions()
	opts.PollInterval = time.Hour
	r := NewResolver(provider, nil, opts, logger.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := r.Resolve(ctx, payloadSource())
	assert.True(t, apperrors.Is(err, apperrors.ErrorTypeTimeout))
}

func TestResolveWithoutSource(t *testing.T) {
	r := NewResolver(&fakeProvider{}, nil, testOptions(), logger.NewNop())
	_, err := r.Resolve(context.Background(), Source{Hash: testHash})
	assert.True(t, apperrors.Is(err, apperrors.ErrorTypeInvalidSource))
}
