package services

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/amaumene/rdstream/internal/models"
	"github.com/amaumene/rdstream/pkg/logger"
)

const (
	browserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
	maxTorrentSize   = 10 << 20
)

var (
	whitespaceRegex = regexp.MustCompile(`\s+`)
	sizeRegex       = regexp.MustCompile(`(?i)Velkost\s([^|]+)`)
	seedsRegex      = regexp.MustCompile(`(?i)Odosielaju\s*:\s*(\d+)`)
)

// Indexer searches a torrent site and downloads its .torrent files.
type Indexer interface {
	Search(ctx context.Context, query string) ([]models.SourceRecord, error)
	FetchTorrent(ctx context.Context, downloadURL string) ([]byte, error)
}

// SKTorrent scrapes the sktorrent.eu search page. Only film and series
// categories are returned.
type SKTorrent struct {
	client  *http.Client
	baseURL string
	uid     string
	pass    string
	logger  logger.Logger
}

// NewSKTorrent creates the indexer. baseURL is the site's /torrent root.
func NewSKTorrent(client *http.Client, baseURL, uid, pass string, log logger.Logger) *SKTorrent {
	return &SKTorrent{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		uid:     uid,
		pass:    pass,
		logger:  log,
	}
}

func (s *SKTorrent) newRequest(ctx context.Context, rawURL string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", browserUserAgent)
	req.Header.Set("Cookie", fmt.Sprintf("uid=%s; pass=%s", s.uid, s.pass))
	return req, nil
}

func (s *SKTorrent) Search(ctx context.Context, query string) ([]models.SourceRecord, error) {
	params := url.Values{}
	params.Set("search", query)
	params.Set("category", "0")
	searchURL := s.baseURL + "/torrents_v2.php?" + params.Encode()

	s.logger.Debugf("[Indexer] searching '%s'", query)

	req, err := s.newRequest(ctx, searchURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create search request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to search indexer: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("indexer returned status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse search page: %w", err)
	}

	records := s.parseResults(doc)
	s.logger.Infof("[Indexer] found %d torrents for '%s'", len(records), query)
	return records, nil
}

func (s *SKTorrent) parseResults(doc *goquery.Document) []models.SourceRecord {
	var records []models.SourceRecord

	doc.Find(`a[href^="details.php"] img`).Each(func(_ int, img *goquery.Selection) {
		link := img.Closest("a")
		cell := link.Closest("td")

		href, _ := link.Attr("href")
		name, _ := link.Attr("title")
		category := strings.TrimSpace(cell.Find("b").First().Text())

		lower := strings.ToLower(category)
		if !strings.Contains(lower, "film") && !strings.Contains(lower, "seri") {
			return
		}

		id := href
		if i := strings.LastIndex(href, "id="); i >= 0 {
			id = href[i+len("id="):]
		}
		if id == "" || name == "" {
			return
		}

		block := strings.TrimSpace(whitespaceRegex.ReplaceAllString(cell.Text(), " "))
		size := "?"
		if m := sizeRegex.FindStringSubmatch(block); m != nil {
			size = strings.TrimSpace(m[1])
		}
		seeds := 0
		if m := seedsRegex.FindStringSubmatch(block); m != nil {
			seeds, _ = strconv.Atoi(m[1])
		}

		records = append(records, models.SourceRecord{
			Name:        name,
			Category:    category,
			Seeds:       seeds,
			Size:        size,
			DownloadURL: s.baseURL + "/download.php?id=" + url.QueryEscape(id),
			IndexerID:   id,
		})
	})

	return records
}

// FetchTorrent downloads a .torrent file with the site session cookies.
func (s *SKTorrent) FetchTorrent(ctx context.Context, downloadURL string) ([]byte, error) {
	req, err := s.newRequest(ctx, downloadURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create download request: %w", err)
	}
	req.Header.Set("Referer", s.baseURL)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download torrent: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("torrent download returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxTorrentSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read torrent: %w", err)
	}
	return data, nil
}
