package services

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/cehbz/torrentname"
	"github.com/dustin/go-humanize"
	"github.com/sourcegraph/conc/pool"

	"github.com/amaumene/rdstream/internal/constants"
	"github.com/amaumene/rdstream/internal/infohash"
	"github.com/amaumene/rdstream/internal/models"
	"github.com/amaumene/rdstream/pkg/logger"
)

const rdBingeGroup = "real-debrid-lazy"

var (
	multiSeasonRegex = regexp.MustCompile(`(?i)(S\d{2}E\d{2}-\d{2}|Complete|All Episodes|Season \d+(-\d+)?)`)
	languageRegex    = regexp.MustCompile(`\b([A-Z]{2})\b`)
	separatorRegex   = regexp.MustCompile(`^[-:•·\s]+`)

	namePrefixes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)^Stiahni si Filmy s titulkama\s*`),
		regexp.MustCompile(`(?i)^Stiahni si Filmy bez titulků\s*`),
		regexp.MustCompile(`(?i)^Stiahni si Filmy\s*`),
		regexp.MustCompile(`(?i)^Stiahni si\s*`),
		regexp.MustCompile(`(?i)^Stahni si Filmy s titulkama\s*`),
		regexp.MustCompile(`(?i)^Stahni si Filmy bez titulků\s*`),
		regexp.MustCompile(`(?i)^Stahni si Filmy\s*`),
		regexp.MustCompile(`(?i)^Stahni si\s*`),
		regexp.MustCompile(`(?i)^(download|stahuj|stahnout)\s*`),
	}

	languageFlags = map[string]string{
		"CZ": "🇨🇿", "SK": "🇸🇰", "EN": "🇬🇧", "US": "🇺🇸",
		"DE": "🇩🇪", "FR": "🇫🇷", "IT": "🇮🇹", "ES": "🇪🇸",
		"RU": "🇷🇺", "PL": "🇵🇱", "HU": "🇭🇺", "JP": "🇯🇵",
		"KR": "🇰🇷", "CN": "🇨🇳",
	}
)

// SourceRegistrar records where an info-hash came from.
type SourceRegistrar interface {
	RegisterSource(hash string, rec models.SourceRecord)
}

// ListingRequest is one Stremio stream request.
type ListingRequest struct {
	Type    string
	ID      string // tt1234567 or tt1234567:season:episode
	APIKey  string // appended to process URLs
	BaseURL string
}

// ListingOptions select which kinds of streams are produced.
type ListingOptions struct {
	Mode          string
	HasRealDebrid bool
}

// Listing builds Stremio stream lists from indexer results.
type Listing struct {
	titles   TitleResolver
	indexer  Indexer
	registry SourceRegistrar
	opts     ListingOptions
	logger   logger.Logger
}

func NewListing(titles TitleResolver, indexer Indexer, registry SourceRegistrar, opts ListingOptions, log logger.Logger) *Listing {
	return &Listing{
		titles:   titles,
		indexer:  indexer,
		registry: registry,
		opts:     opts,
		logger:   log,
	}
}

// located is an indexer result whose payload was parsed.
type located struct {
	rec     models.SourceRecord
	torrent *infohash.Torrent
}

// Streams searches for the content and returns its streams. Lookup and
// search failures yield an empty list.
func (l *Listing) Streams(ctx context.Context, req ListingRequest) ([]models.Stream, error) {
	imdbID, season, episode := parseContentID(req.ID)
	l.logger.Infof("[Listing] stream request type=%s id=%s season=%d episode=%d", req.Type, imdbID, season, episode)

	titles, err := l.titles.Lookup(ctx, imdbID)
	if err != nil {
		l.logger.Warnf("[Listing] title lookup failed for %s: %v", imdbID, err)
		return []models.Stream{}, nil
	}

	records := l.search(ctx, QueryRequest{
		Title:         titles.Title,
		OriginalTitle: titles.OriginalTitle,
		Type:          req.Type,
		Season:        season,
		Episode:       episode,
	})
	if len(records) == 0 {
		l.logger.Infof("[Listing] no torrents found for %s", imdbID)
		return []models.Stream{}, nil
	}
	for i := range records {
		records[i].ContentType = req.Type
	}

	rdStreams := l.opts.HasRealDebrid && (l.opts.Mode == constants.StreamModeRDOnly || l.opts.Mode == constants.StreamModeBoth)
	torrentStreams := l.opts.Mode == constants.StreamModeTorrentOnly || l.opts.Mode == constants.StreamModeBoth ||
		(l.opts.Mode == constants.StreamModeRDOnly && !l.opts.HasRealDebrid)

	// Only the top results are offered through the provider.
	candidates := records
	if !torrentStreams && len(candidates) > constants.MaxTorrentsPerListing {
		candidates = candidates[:constants.MaxTorrentsPerListing]
	}
	found := l.locate(ctx, candidates)

	streams := []models.Stream{}
	if rdStreams {
		for _, f := range found[:min(len(found), constants.MaxTorrentsPerListing)] {
			if f.torrent == nil {
				continue
			}
			streams = append(streams, realDebridStream(f, req))
		}
	}
	if torrentStreams {
		for _, f := range found {
			if f.torrent == nil {
				continue
			}
			if isMultiSeason(f.rec.Name) {
				l.logger.Debugf("[Listing] skipping multi-season pack '%s'", f.rec.Name)
				continue
			}
			streams = append(streams, torrentStream(f))
		}
	}

	l.logger.Infof("[Listing] returning %d streams for %s (mode %s)", len(streams), imdbID, l.opts.Mode)
	return streams, nil
}

// search runs queries in order until one returns results.
func (l *Listing) search(ctx context.Context, req QueryRequest) []models.SourceRecord {
	attempt := 0
	for q := range Queries(req) {
		attempt++
		if ctx.Err() != nil {
			return nil
		}
		l.logger.Debugf("[Listing] attempt %d: '%s'", attempt, q)
		records, err := l.indexer.Search(ctx, q)
		if err != nil {
			l.logger.Warnf("[Listing] search '%s' failed: %v", q, err)
			continue
		}
		if len(records) > 0 {
			for i := range records {
				records[i].Query = q
			}
			return records
		}
	}
	return nil
}

// locate downloads and parses the payload of each record in parallel and
// registers every resolved hash. Order follows records; failures leave a nil
// torrent.
func (l *Listing) locate(ctx context.Context, records []models.SourceRecord) []located {
	found := make([]located, len(records))

	p := pool.New().WithMaxGoroutines(constants.ListingFetchGoroutines)
	for i, rec := range records {
		p.Go(func() {
			found[i].rec = rec
			payload, err := l.indexer.FetchTorrent(ctx, rec.DownloadURL)
			if err != nil {
				l.logger.Debugf("[Listing] failed to fetch '%s': %v", rec.Name, err)
				return
			}
			t, err := infohash.FromTorrent(payload)
			if err != nil {
				l.logger.Debugf("[Listing] failed to parse '%s': %v", rec.Name, err)
				return
			}
			found[i].torrent = t
		})
	}
	p.Wait()

	for _, f := range found {
		if f.torrent != nil {
			l.registry.RegisterSource(f.torrent.Hash, f.rec)
		}
	}
	return found
}

func realDebridStream(f located, req ListingRequest) models.Stream {
	processURL := strings.TrimRight(req.BaseURL, "/") + "/process/" + f.torrent.Hash
	if req.APIKey != "" {
		processURL += "?api_key=" + url.QueryEscape(req.APIKey)
	}
	return models.Stream{
		Name:          "⚡ Real-Debrid - " + extractQuality(f.rec.Name),
		Title:         fmt.Sprintf("%s\n👤 %d  📀 %s  🔥 Click to process via RD", cleanTorrentName(f.rec.Name), f.rec.Seeds, displaySize(f)),
		URL:           processURL,
		BehaviorHints: &models.StreamBehaviorHints{BingeGroup: rdBingeGroup},
	}
}

func torrentStream(f located) models.Stream {
	cleaned := cleanTorrentName(f.rec.Name)
	flags := ""
	if fl := languageFlagsFor(f.rec.Name); len(fl) > 0 {
		flags = "\n" + strings.Join(fl, " / ")
	}
	return models.Stream{
		Name:          "SKTorrent\n" + f.rec.Category,
		Title:         fmt.Sprintf("%s\n👤 %d  📀 %s  🩲 sktorrent.eu%s", cleaned, f.rec.Seeds, displaySize(f), flags),
		InfoHash:      f.torrent.Hash,
		BehaviorHints: &models.StreamBehaviorHints{BingeGroup: cleaned},
	}
}

// displaySize prefers the size shown by the indexer.
func displaySize(f located) string {
	if f.rec.Size != "" && f.rec.Size != "?" {
		return f.rec.Size
	}
	if f.torrent != nil && f.torrent.Length > 0 {
		return humanize.Bytes(uint64(f.torrent.Length))
	}
	return "?"
}

// parseContentID splits "tt123:1:2" into its parts.
func parseContentID(id string) (string, int, int) {
	parts := strings.Split(id, ":")
	var season, episode int
	if len(parts) > 1 {
		season, _ = strconv.Atoi(parts[1])
	}
	if len(parts) > 2 {
		episode, _ = strconv.Atoi(parts[2])
	}
	return parts[0], season, episode
}

func isMultiSeason(name string) bool {
	return multiSeasonRegex.MatchString(name)
}

// extractQuality maps a release name to 4K, 1080p, 720p, 480p or SD.
func extractQuality(name string) string {
	resolution := ""
	if parsed := torrentname.Parse(name); parsed != nil && parsed.Resolution != "?" {
		resolution = strings.ToLower(parsed.Resolution)
	}
	lower := strings.ToLower(name)
	has := func(tag string) bool {
		return resolution == tag || strings.Contains(lower, tag)
	}

	switch {
	case has("2160p") || has("4k"):
		return "4K"
	case has("1080p"):
		return "1080p"
	case has("720p"):
		return "720p"
	case has("480p"):
		return "480p"
	default:
		return "SD"
	}
}

// cleanTorrentName drops the site's download boilerplate from a name.
func cleanTorrentName(name string) string {
	cleaned := name
	for _, re := range namePrefixes {
		cleaned = re.ReplaceAllString(cleaned, "")
	}
	cleaned = strings.TrimSpace(separatorRegex.ReplaceAllString(strings.TrimSpace(cleaned), ""))

	if len([]rune(cleaned)) < 2 {
		return name
	}
	return cleaned
}

func languageFlagsFor(name string) []string {
	var flags []string
	seen := make(map[string]bool)
	for _, m := range languageRegex.FindAllStringSubmatch(name, -1) {
		flag, ok := languageFlags[m[1]]
		if !ok || seen[flag] {
			continue
		}
		seen[flag] = true
		flags = append(flags, flag)
	}
	return flags
}
