package services

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/amaumene/rdstream/internal/cache"
	"github.com/amaumene/rdstream/pkg/logger"
)

const (
	titleCacheSize = 1000
	titleCacheTTL  = 24 * time.Hour
)

// Titles are the names a piece of content is searched under.
type Titles struct {
	Title         string
	OriginalTitle string
}

// TitleResolver maps an IMDb id to display titles.
type TitleResolver interface {
	Lookup(ctx context.Context, imdbID string) (*Titles, error)
}

// IMDb reads titles from the public IMDb title page: the localized title from
// <title> and the original one from the ld+json block.
type IMDb struct {
	client  *http.Client
	baseURL string
	cache   *cache.LRUCache[Titles]
	logger  logger.Logger
}

func NewIMDb(client *http.Client, baseURL string, log logger.Logger) *IMDb {
	return &IMDb{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		cache:   cache.New[Titles](titleCacheSize, titleCacheTTL),
		logger:  log,
	}
}

func (i *IMDb) Lookup(ctx context.Context, imdbID string) (*Titles, error) {
	if t, ok := i.cache.Get(imdbID); ok {
		return &t, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/%s/", i.baseURL, imdbID), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create title request: %w", err)
	}
	req.Header.Set("User-Agent", browserUserAgent)
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := i.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch title page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("title page returned status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse title page: %w", err)
	}

	t := parseTitles(doc)
	if t.Title == "" {
		return nil, fmt.Errorf("no title found for %s", imdbID)
	}

	i.logger.Debugf("[Titles] %s: localized '%s', original '%s'", imdbID, t.Title, t.OriginalTitle)
	i.cache.Set(imdbID, t)
	return &t, nil
}

func parseTitles(doc *goquery.Document) Titles {
	title, _, _ := strings.Cut(doc.Find("title").First().Text(), " - ")
	title = strings.TrimSpace(title)

	t := Titles{Title: title, OriginalTitle: title}

	var ld struct {
		Name string `json:"name"`
	}
	raw := doc.Find(`script[type="application/ld+json"]`).First().Text()
	if raw != "" && json.Unmarshal([]byte(raw), &ld) == nil {
		if name := strings.TrimSpace(html.UnescapeString(ld.Name)); name != "" {
			t.OriginalTitle = name
		}
	}
	return t
}
