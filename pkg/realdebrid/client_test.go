package realdebrid

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(server.Client(), server.URL, "token", nil)
}

func TestAddTorrentUploadsRawPayload(t *testing.T) {
	payload := []byte("d4:infod4:name4:testee")

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/torrents/addTorrent", r.URL.Path)
		assert.Equal(t, "application/x-bittorrent", r.Header.Get("Content-Type"))
		assert.Equal(t, "Bearer token", r.Header.Get("Authorization"))

		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, payload, body)

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"ABC123","uri":"https://api.real-debrid.com/rest/1.0/torrents/info/ABC123"}`))
	})

	resp, err := client.AddTorrent(context.Background(), payload)
	require.NoError(t, err)
	assert.Equal(t, "ABC123", resp.ID)
}

func TestAddMagnetPostsForm(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "magnet:?xt=urn:btih:abc", r.PostForm.Get("magnet"))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"M1"}`))
	})

	resp, err := client.AddMagnet(context.Background(), "magnet:?xt=urn:btih:abc")
	require.NoError(t, err)
	assert.Equal(t, "M1", resp.ID)
}

func TestTorrentInfoDecodesWireFields(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/torrents/info/ABC", r.URL.Path)
		_, _ = w.Write([]byte(`{
			"id": "ABC",
			"hash": "0123456789abcdef0123456789abcdef01234567",
			"status": "downloaded",
			"progress": 100,
			"files": [{"id": 1, "path": "/Movie/movie.mkv", "bytes": 2000000000, "selected": 1}],
			"links": ["https://real-debrid.com/d/XYZ"]
		}`))
	})

	info, err := client.TorrentInfo(context.Background(), "ABC")
	require.NoError(t, err)
	assert.Equal(t, "downloaded", info.Status)
	assert.Equal(t, float64(100), info.Progress)
	require.Len(t, info.Files, 1)
	assert.Equal(t, 1, info.Files[0].ID)
	assert.Equal(t, "/Movie/movie.mkv", info.Files[0].Path)
	assert.Equal(t, int64(2000000000), info.Files[0].Bytes)
	assert.Equal(t, []string{"https://real-debrid.com/d/XYZ"}, info.Links)
}

func TestSelectFiles(t *testing.T) {
	var got []string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		got = append(got, r.PostForm.Get("files"))
		w.WriteHeader(http.StatusNoContent)
	})

	require.NoError(t, client.SelectFiles(context.Background(), "ABC", []int{3, 5}))
	require.NoError(t, client.SelectFiles(context.Background(), "ABC", nil))
	assert.Equal(t, []string{"3,5", "all"}, got)
}

func TestListTorrentsEmptyBody(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "100", r.URL.Query().Get("limit"))
		w.WriteHeader(http.StatusNoContent)
	})

	list, err := client.ListTorrents(context.Background(), 100)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestAPIError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":"permission_denied","error_code":9}`))
	})

	_, err := client.UnrestrictLink(context.Background(), "https://real-debrid.com/d/XYZ")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)
	assert.Equal(t, 9, apiErr.Code)
	assert.Equal(t, "permission_denied", apiErr.Message)
}
