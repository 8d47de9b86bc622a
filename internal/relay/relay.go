// Package relay proxies resolved media URLs to playback clients with byte
// range support.
package relay

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/amaumene/rdstream/internal/cache"
	"github.com/amaumene/rdstream/internal/constants"
	apperrors "github.com/amaumene/rdstream/internal/errors"
	"github.com/amaumene/rdstream/internal/metrics"
	"github.com/amaumene/rdstream/pkg/logger"
)

const (
	defaultContentType = "video/mp4"
	userAgent          = "Mozilla/5.0 (compatible; rdstream)"
)

// Request is one inbound playback request.
type Request struct {
	ClientKey string // typically the client IP
	URL       string
	Range     string
	Method    string
}

// ProbeResult are the headers advertised for HEAD playback requests.
type ProbeResult struct {
	ContentType   string
	ContentLength int64
	AcceptRanges  string
	Fallback      bool
}

type guard struct {
	started time.Time
}

type Relay struct {
	client *http.Client
	logger logger.Logger
	window time.Duration

	mu     sync.Mutex
	guards map[string]*guard
	active int

	probes *cache.LRUCache[ProbeResult]
	now    func() time.Time
}

// New creates a relay. client must not carry an overall timeout.
func New(client *http.Client, log logger.Logger) *Relay {
	return &Relay{
		client: client,
		logger: log,
		window: constants.DuplicateStreamWindow,
		guards: make(map[string]*guard),
		probes: cache.New[ProbeResult](constants.DefaultProbeCacheSize, constants.ProbeSuccessTTL),
		now:    time.Now,
	}
}

// Stream proxies req.URL into w. Errors returned before anything was written
// leave w untouched so the caller can answer with a status. After headers
// are sent a failure aborts the connection instead.
func (r *Relay) Stream(ctx context.Context, req Request, w http.ResponseWriter) error {
	if req.Range == "" {
		release, ok := r.acquire(req.ClientKey + "|" + req.URL + "|full")
		if !ok {
			metrics.RelayStreams.WithLabelValues("duplicate").Inc()
			r.logger.Debugf("[Relay] suppressed duplicate stream from %s", req.ClientKey)
			return apperrors.NewDuplicateStreamError()
		}
		defer release()
	}

	r.mu.Lock()
	r.active++
	r.mu.Unlock()
	metrics.ActiveRelays.Inc()
	defer func() {
		r.mu.Lock()
		r.active--
		r.mu.Unlock()
		metrics.ActiveRelays.Dec()
	}()

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	upstreamReq, err := http.NewRequestWithContext(ctx, method, req.URL, nil)
	if err != nil {
		return apperrors.NewRelayUpstreamError("invalid upstream URL", err)
	}
	rangeHeader := req.Range
	if rangeHeader == "" {
		rangeHeader = "bytes=0-"
	}
	upstreamReq.Header.Set("Range", rangeHeader)
	upstreamReq.Header.Set("User-Agent", userAgent)

	resp, err := r.client.Do(upstreamReq)
	if err != nil {
		if ctx.Err() != nil {
			metrics.RelayStreams.WithLabelValues("aborted").Inc()
			return apperrors.NewRelayClientAbortedError(err)
		}
		metrics.RelayStreams.WithLabelValues("upstream_error").Inc()
		return apperrors.NewRelayUpstreamError(fmt.Sprintf("upstream fetch failed: %v", err), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		metrics.RelayStreams.WithLabelValues("upstream_error").Inc()
		return apperrors.NewRelayUpstreamError(fmt.Sprintf("upstream returned %s", resp.Status), nil)
	}

	status := http.StatusOK
	header := w.Header()
	if req.Range != "" && resp.StatusCode == http.StatusPartialContent {
		status = http.StatusPartialContent
		if cr := resp.Header.Get("Content-Range"); cr != "" {
			header.Set("Content-Range", cr)
		}
	}
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = defaultContentType
	}
	header.Set("Content-Type", contentType)
	header.Set("Accept-Ranges", "bytes")
	header.Set("Cache-Control", "no-cache, no-store")
	if resp.ContentLength >= 0 {
		header.Set("Content-Length", strconv.FormatInt(resp.ContentLength, 10))
	}
	w.WriteHeader(status)

	if method == http.MethodHead {
		metrics.RelayStreams.WithLabelValues("ok").Inc()
		return nil
	}

	buf := make([]byte, constants.RelayBufferSize)
	cw := &clientWriter{w: w}
	n, err := io.CopyBuffer(cw, struct{ io.Reader }{resp.Body}, buf)
	metrics.RelayBytes.Add(float64(n))

	switch {
	case err == nil:
		metrics.RelayStreams.WithLabelValues("ok").Inc()
		r.logger.Debugf("[Relay] finished %s (%d bytes)", req.ClientKey, n)
		return nil
	case cw.err != nil || ctx.Err() != nil:
		metrics.RelayStreams.WithLabelValues("aborted").Inc()
		r.logger.Debugf("[Relay] client %s went away after %d bytes", req.ClientKey, n)
		return apperrors.NewRelayClientAbortedError(err)
	default:
		metrics.RelayStreams.WithLabelValues("upstream_error").Inc()
		r.logger.Warnf("[Relay] upstream failed after %d bytes: %v", n, err)
		abort(w)
		return apperrors.NewRelayUpstreamError("upstream failed mid-stream", err)
	}
}

// acquire registers a non-ranged stream. It fails when the same stream
// started less than the guard window ago and is still running.
func (r *Relay) acquire(key string) (func(), bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if g, ok := r.guards[key]; ok && now.Sub(g.started) < r.window {
		return nil, false
	}
	g := &guard{started: now}
	r.guards[key] = g

	return func() {
		r.mu.Lock()
		if r.guards[key] == g {
			delete(r.guards, key)
		}
		r.mu.Unlock()
	}, true
}

// abort closes the client connection so the player sees a truncated body
// rather than a clean end of stream.
func abort(w http.ResponseWriter) {
	conn, _, err := http.NewResponseController(w).Hijack()
	if err != nil {
		return
	}
	_ = conn.Close()
}

// clientWriter remembers write failures, which mean the client is gone.
type clientWriter struct {
	w   io.Writer
	err error
}

func (c *clientWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	if err != nil {
		c.err = err
	}
	return n, err
}

// Probe returns the headers of url from a HEAD request. Failures yield
// generic video headers cached for a shorter time.
func (r *Relay) Probe(ctx context.Context, url string) ProbeResult {
	if res, ok := r.probes.Get(url); ok {
		metrics.ObserveCache("probe", true)
		return res
	}
	metrics.ObserveCache("probe", false)

	res, err := r.head(ctx, url)
	if err != nil {
		r.logger.Debugf("[Relay] HEAD probe failed: %v", err)
		res = ProbeResult{ContentType: defaultContentType, ContentLength: -1, AcceptRanges: "bytes", Fallback: true}
		r.probes.SetWithTTL(url, res, constants.ProbeFailureTTL)
		return res
	}
	r.probes.Set(url, res)
	return res
}

func (r *Relay) head(ctx context.Context, url string) (ProbeResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return ProbeResult{}, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		return ProbeResult{}, err
	}
	resp.Body.Close()

	if resp.StatusCode >= 400 {
		return ProbeResult{}, stderrors.New("upstream returned " + resp.Status)
	}

	res := ProbeResult{
		ContentType:   resp.Header.Get("Content-Type"),
		ContentLength: resp.ContentLength,
		AcceptRanges:  "bytes",
	}
	if res.ContentType == "" {
		res.ContentType = defaultContentType
	}
	return res, nil
}

// Len returns the number of streams being relayed.
func (r *Relay) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// Sweep drops duplicate guards older than maxAge and expired probe results.
func (r *Relay) Sweep(maxAge time.Duration) int {
	r.mu.Lock()
	cutoff := r.now().Add(-maxAge)
	removed := 0
	for key, g := range r.guards {
		if g.started.Before(cutoff) {
			delete(r.guards, key)
			removed++
		}
	}
	r.mu.Unlock()

	r.probes.CleanExpired()
	return removed
}
