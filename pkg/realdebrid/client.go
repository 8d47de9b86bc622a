// Package realdebrid is a thin client for the Real-Debrid REST API.
package realdebrid

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/time/rate"
)

const DefaultBaseURL = "https://api.real-debrid.com/rest/1.0"

type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	limiter    *rate.Limiter
}

// NewClient creates a client. A nil limiter disables throttling.
func NewClient(httpClient *http.Client, baseURL, apiKey string, limiter *rate.Limiter) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		limiter:    limiter,
	}
}

// Torrent is an entry of GET /torrents.
type Torrent struct {
	ID       string   `json:"id"`
	Filename string   `json:"filename"`
	Hash     string   `json:"hash"`
	Bytes    int64    `json:"bytes"`
	Progress float64  `json:"progress"`
	Status   string   `json:"status"`
	Added    string   `json:"added"`
	Links    []string `json:"links"`
}

// File is a file inside a torrent as reported by /torrents/info.
type File struct {
	ID       int    `json:"id"`
	Path     string `json:"path"`
	Bytes    int64  `json:"bytes"`
	Selected int    `json:"selected"`
}

// TorrentInfo is the response of GET /torrents/info/{id}.
type TorrentInfo struct {
	ID       string   `json:"id"`
	Filename string   `json:"filename"`
	Hash     string   `json:"hash"`
	Bytes    int64    `json:"bytes"`
	Progress float64  `json:"progress"`
	Status   string   `json:"status"`
	Files    []File   `json:"files"`
	Links    []string `json:"links"`
	Speed    int64    `json:"speed,omitempty"`
	Seeders  int      `json:"seeders,omitempty"`
}

// AddResponse is returned by addTorrent and addMagnet.
type AddResponse struct {
	ID  string `json:"id"`
	URI string `json:"uri"`
}

// UnrestrictedLink is the response of POST /unrestrict/link.
type UnrestrictedLink struct {
	ID         string `json:"id"`
	Filename   string `json:"filename"`
	MimeType   string `json:"mimeType"`
	Filesize   int64  `json:"filesize"`
	Link       string `json:"link"`
	Host       string `json:"host"`
	Download   string `json:"download"`
	Streamable int    `json:"streamable"`
}

// APIError is a non-2xx answer from the API.
type APIError struct {
	StatusCode int    `json:"-"`
	Code       int    `json:"error_code"`
	Message    string `json:"error"`
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("Real-Debrid API error %d: %s (code %d)", e.StatusCode, e.Message, e.Code)
	}
	return fmt.Sprintf("Real-Debrid API error %d", e.StatusCode)
}

// ListTorrents returns up to limit torrents of the account, newest first.
func (c *Client) ListTorrents(ctx context.Context, limit int) ([]Torrent, error) {
	params := url.Values{}
	params.Set("limit", fmt.Sprint(limit))

	var result []Torrent
	if err := c.do(ctx, http.MethodGet, "/torrents?"+params.Encode(), nil, "", &result); err != nil {
		return nil, err
	}
	return result, nil
}

func (c *Client) TorrentInfo(ctx context.Context, id string) (*TorrentInfo, error) {
	var result TorrentInfo
	if err := c.do(ctx, http.MethodGet, "/torrents/info/"+url.PathEscape(id), nil, "", &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// AddTorrent uploads a raw .torrent file.
func (c *Client) AddTorrent(ctx context.Context, payload []byte) (*AddResponse, error) {
	var result AddResponse
	if err := c.do(ctx, http.MethodPut, "/torrents/addTorrent", bytes.NewReader(payload), "application/x-bittorrent", &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) AddMagnet(ctx context.Context, magnet string) (*AddResponse, error) {
	form := url.Values{}
	form.Set("magnet", magnet)

	var result AddResponse
	if err := c.do(ctx, http.MethodPost, "/torrents/addMagnet", strings.NewReader(form.Encode()), "application/x-www-form-urlencoded", &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// SelectFiles activates the given file ids, or every file when ids is empty.
func (c *Client) SelectFiles(ctx context.Context, id string, ids []int) error {
	files := "all"
	if len(ids) > 0 {
		parts := make([]string, len(ids))
		for i, fid := range ids {
			parts[i] = fmt.Sprint(fid)
		}
		files = strings.Join(parts, ",")
	}

	form := url.Values{}
	form.Set("files", files)
	return c.do(ctx, http.MethodPost, "/torrents/selectFiles/"+url.PathEscape(id), strings.NewReader(form.Encode()), "application/x-www-form-urlencoded", nil)
}

func (c *Client) UnrestrictLink(ctx context.Context, link string) (*UnrestrictedLink, error) {
	form := url.Values{}
	form.Set("link", link)

	var result UnrestrictedLink
	if err := c.do(ctx, http.MethodPost, "/unrestrict/link", strings.NewReader(form.Encode()), "application/x-www-form-urlencoded", &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) DeleteTorrent(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/torrents/delete/"+url.PathEscape(id), nil, "", nil)
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string, result interface{}) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}

	return c.decodeResponse(resp, result)
}

func (c *Client) decodeResponse(resp *http.Response, result interface{}) error {
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		_ = json.Unmarshal(body, apiErr)
		return apiErr
	}

	// 204 and empty lists come back without a body
	if result == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}

	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}
