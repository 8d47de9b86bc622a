package services

import (
	"context"
	stderrors "errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/amaumene/rdstream/internal/cache"
	"github.com/amaumene/rdstream/internal/constants"
	"github.com/amaumene/rdstream/internal/debrid"
	apperrors "github.com/amaumene/rdstream/internal/errors"
	"github.com/amaumene/rdstream/internal/inflight"
	"github.com/amaumene/rdstream/internal/infohash"
	"github.com/amaumene/rdstream/internal/metrics"
	"github.com/amaumene/rdstream/internal/models"
	"github.com/amaumene/rdstream/internal/relay"
	"github.com/amaumene/rdstream/pkg/logger"
)

// Resolver turns a torrent source into direct links.
type Resolver interface {
	Resolve(ctx context.Context, src debrid.Source) (*models.Resolution, error)
}

// PayloadFetcher downloads raw .torrent files.
type PayloadFetcher interface {
	FetchTorrent(ctx context.Context, downloadURL string) ([]byte, error)
}

// StreamRequest is one playback request for an info-hash.
type StreamRequest struct {
	ID        string
	ClientKey string
	Range     string
	Method    string
}

// Outcome tells the caller how a playback request was served. A non-empty
// Redirect means nothing was written and the client should be sent there.
type Outcome struct {
	Redirect string
	Hash     string
	Filename string
}

type Gateway struct {
	results  *cache.ResultCache
	sources  *cache.SourceLookupCache
	flights  *inflight.Registry[*models.Resolution]
	resolver Resolver
	fetcher  PayloadFetcher
	relay    *relay.Relay
	logger   logger.Logger

	delivery string
	timeout  time.Duration
}

// GatewayOptions are the knobs of NewGateway.
type GatewayOptions struct {
	Delivery string
	Timeout  time.Duration
}

// NewGateway wires the resolution pipeline. resolver may be nil when no
// provider key is configured; every resolution then fails with API_KEY_MISSING.
func NewGateway(
	results *cache.ResultCache,
	sources *cache.SourceLookupCache,
	flights *inflight.Registry[*models.Resolution],
	resolver Resolver,
	fetcher PayloadFetcher,
	rl *relay.Relay,
	opts GatewayOptions,
	log logger.Logger,
) *Gateway {
	if opts.Delivery == "" {
		opts.Delivery = constants.DeliveryProxy
	}
	if opts.Timeout <= 0 {
		opts.Timeout = constants.ResolutionTimeout
	}
	return &Gateway{
		results:  results,
		sources:  sources,
		flights:  flights,
		resolver: resolver,
		fetcher:  fetcher,
		relay:    rl,
		logger:   log,
		delivery: opts.Delivery,
		timeout:  opts.Timeout,
	}
}

// RegisterSource remembers which indexer result produced hash. A cached
// NOT_FOUND for the hash is dropped so the next playback retries.
func (g *Gateway) RegisterSource(hash string, rec models.SourceRecord) {
	hash = strings.ToLower(hash)
	g.sources.Put(hash, rec)
	if g.results.DropFailure(hash, apperrors.ErrorTypeNotFound) {
		g.logger.Debugf("[Gateway] %s: dropped cached not-found after new source", short(hash))
	}
}

// Resolve returns direct links for id, joining a running resolution for the
// same hash when there is one. The negotiation itself is detached from ctx
// and bounded by the gateway timeout; ctx only limits how long this caller
// waits.
func (g *Gateway) Resolve(ctx context.Context, id string) (*models.Resolution, error) {
	hash, err := infohash.Normalize(id)
	if err != nil {
		return nil, err
	}

	if res, ok := g.results.Get(hash); ok {
		metrics.ObserveCache("result", true)
		if res.Ready() {
			return res.Resolution, nil
		}
		return nil, res.Err()
	}
	metrics.ObserveCache("result", false)

	if g.resolver == nil {
		return nil, apperrors.NewAPIKeyMissingError("Real-Debrid")
	}

	res, shared, err := g.flights.Do(ctx, hash, func() (*models.Resolution, error) {
		return g.resolve(context.WithoutCancel(ctx), hash)
	})
	if shared {
		metrics.InFlightJoins.Inc()
	}
	if err != nil {
		if !typed(err) && ctx.Err() != nil {
			return nil, apperrors.NewRelayClientAbortedError(err)
		}
		return nil, err
	}
	return res, nil
}

// resolve runs one negotiation and records its outcome.
func (g *Gateway) resolve(parent context.Context, hash string) (*models.Resolution, error) {
	ctx, cancel := context.WithTimeout(parent, g.timeout)
	defer cancel()

	start := time.Now()
	res, err := g.negotiate(ctx, hash)
	metrics.ResolutionDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		if !typed(err) && ctx.Err() != nil {
			err = apperrors.NewStreamError(apperrors.ErrorTypeTimeout, "Operation timeout: resolution budget exhausted", err)
		}
		metrics.Resolutions.WithLabelValues(strings.ToLower(apperrors.TypeOf(err))).Inc()

		if cached, ok := g.results.PutFailure(hash, err); ok {
			g.logger.Infof("[Gateway] %s: %s cached until %s", short(hash), apperrors.TypeOf(err), cached.CachedUntil.Format(time.TimeOnly))
		} else {
			g.logger.Warnf("[Gateway] %s: resolution failed: %v", short(hash), err)
		}
		return nil, err
	}

	metrics.Resolutions.WithLabelValues("ready").Inc()
	cached := g.results.PutReady(hash, res)
	g.logger.Infof("[Gateway] %s: resolved %d link(s) in %s", short(hash), len(res.Links), time.Since(start).Round(time.Millisecond))
	return cached.Resolution, nil
}

// negotiate fetches the original payload for hash and hands it to the
// resolver. A hash never registered by a listing is NOT_FOUND.
func (g *Gateway) negotiate(ctx context.Context, hash string) (*models.Resolution, error) {
	rec, ok := g.sources.Get(hash)
	metrics.ObserveCache("source", ok)
	if !ok {
		return nil, apperrors.NewNotFoundError("no known torrent source for this info-hash, reload the stream list")
	}

	payload, err := g.fetcher.FetchTorrent(ctx, rec.DownloadURL)
	if err != nil {
		if ctx.Err() != nil {
			return nil, apperrors.NewStreamError(apperrors.ErrorTypeTimeout, "Operation timeout: torrent download", err)
		}
		return nil, apperrors.NewTransientProviderError("failed to download the torrent file", err)
	}

	t, err := infohash.FromTorrent(payload)
	if err != nil {
		return nil, err
	}
	if t.Hash != hash {
		return nil, apperrors.NewInvalidSourceError("torrent file does not match the requested info-hash", nil)
	}

	name := t.Name
	if name == "" {
		name = rec.Name
	}
	return g.resolver.Resolve(ctx, debrid.Source{
		Hash:    hash,
		Name:    name,
		Payload: payload,
		Magnet:  t.Magnet(),
	})
}

// ResolveAndStream resolves req.ID and serves the primary link: relayed into
// w in proxy mode, or returned as Outcome.Redirect in redirect mode. HEAD
// requests get the probed upstream headers only. Errors are returned before
// anything is written to w, except relay failures after headers were sent.
func (g *Gateway) ResolveAndStream(ctx context.Context, req StreamRequest, w http.ResponseWriter) (*Outcome, error) {
	res, err := g.Resolve(ctx, req.ID)
	if err != nil {
		return nil, err
	}

	link, ok := res.Primary()
	if !ok {
		return nil, apperrors.NewProviderTerminalError("resolution carries no playable link", nil)
	}
	out := &Outcome{Hash: res.Hash, Filename: link.Filename}

	if g.delivery == constants.DeliveryRedirect {
		out.Redirect = link.URL
		return out, nil
	}

	if req.Method == http.MethodHead {
		writeProbe(w, g.relay.Probe(ctx, link.URL))
		return out, nil
	}

	err = g.relay.Stream(ctx, relay.Request{
		ClientKey: req.ClientKey,
		URL:       link.URL,
		Range:     req.Range,
		Method:    req.Method,
	}, w)
	return out, err
}

// Head resolves id and returns the headers a HEAD playback request advertises.
func (g *Gateway) Head(ctx context.Context, id string) (relay.ProbeResult, error) {
	res, err := g.Resolve(ctx, id)
	if err != nil {
		return relay.ProbeResult{}, err
	}
	link, ok := res.Primary()
	if !ok {
		return relay.ProbeResult{}, apperrors.NewProviderTerminalError("resolution carries no playable link", nil)
	}
	return g.relay.Probe(ctx, link.URL), nil
}

func writeProbe(w http.ResponseWriter, p relay.ProbeResult) {
	h := w.Header()
	h.Set("Content-Type", p.ContentType)
	h.Set("Accept-Ranges", p.AcceptRanges)
	h.Set("Cache-Control", "no-cache")
	if p.ContentLength >= 0 {
		h.Set("Content-Length", strconv.FormatInt(p.ContentLength, 10))
	}
	w.WriteHeader(http.StatusOK)
}

// Stats returns the sizes of the shared stores.
func (g *Gateway) Stats() models.Stats {
	return models.Stats{
		Cache:            g.results.Len(),
		Sources:          g.sources.Len(),
		ActiveProcessing: g.flights.Len(),
		ActiveStreams:    g.relay.Len(),
	}
}

func typed(err error) bool {
	var se *apperrors.StreamError
	return stderrors.As(err, &se)
}

func short(hash string) string {
	if len(hash) > 8 {
		return hash[:8]
	}
	return hash
}
