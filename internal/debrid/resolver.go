// Package debrid drives a Real-Debrid job from submission to direct links.
package debrid

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/dustin/go-humanize"

	"github.com/amaumene/rdstream/internal/constants"
	apperrors "github.com/amaumene/rdstream/internal/errors"
	"github.com/amaumene/rdstream/internal/models"
	"github.com/amaumene/rdstream/pkg/logger"
	"github.com/amaumene/rdstream/pkg/realdebrid"
)

// Provider is the subset of the Real-Debrid API the resolver uses.
type Provider interface {
	ListTorrents(ctx context.Context, limit int) ([]realdebrid.Torrent, error)
	TorrentInfo(ctx context.Context, id string) (*realdebrid.TorrentInfo, error)
	AddTorrent(ctx context.Context, payload []byte) (*realdebrid.AddResponse, error)
	AddMagnet(ctx context.Context, magnet string) (*realdebrid.AddResponse, error)
	SelectFiles(ctx context.Context, id string, fileIDs []int) error
	UnrestrictLink(ctx context.Context, link string) (*realdebrid.UnrestrictedLink, error)
}

// Ledger remembers which provider job was created for a hash.
type Ledger interface {
	LookupTorrentID(hash string) (string, bool)
	RecordSubmission(hash, torrentID, name string) error
}

// Source is what the resolver needs to create a job: a raw .torrent
// payload, or a magnet when no payload is available.
type Source struct {
	Hash    string
	Name    string
	Payload []byte
	Magnet  string
}

type Options struct {
	PollInterval        time.Duration
	MaxPollAttempts     int
	FileSelectAttempts  int
	FileSelectDelay     time.Duration
	ReturnOnDownloading bool
	MaxLinks            int
}

// DefaultOptions returns the production polling budget.
func DefaultOptions() Options {
	return Options{
		PollInterval:       constants.DefaultPollInterval,
		MaxPollAttempts:    constants.DefaultMaxPollAttempts,
		FileSelectAttempts: constants.DefaultFileSelectionRetries,
		FileSelectDelay:    constants.FileSelectionRetryDelay,
		MaxLinks:           constants.MaxLinksPerResolution,
	}
}

type Resolver struct {
	provider Provider
	ledger   Ledger
	opts     Options
	logger   logger.Logger
}

// NewResolver creates a resolver. ledger may be nil.
func NewResolver(provider Provider, ledger Ledger, opts Options, log logger.Logger) *Resolver {
	if opts.MaxLinks <= 0 {
		opts.MaxLinks = constants.MaxLinksPerResolution
	}
	return &Resolver{
		provider: provider,
		ledger:   ledger,
		opts:     opts,
		logger:   log,
	}
}

var errFilesPending = stderrors.New("file list not yet available")

// run holds the local view of one resolution attempt.
type run struct {
	src        Source
	torrentID  string
	info       *realdebrid.TorrentInfo
	links      []string
	polls      int
	selections int
}

// Resolve negotiates src with the provider until direct links are available,
// the job fails, or the poll budget runs out. ctx bounds the whole attempt.
func (r *Resolver) Resolve(ctx context.Context, src Source) (*models.Resolution, error) {
	st := &run{src: src}
	cur := stepLookup
	ev := r.lookup(ctx, st)

	for {
		d := transition(cur, ev, limits{
			polls:               st.polls,
			maxPolls:            r.opts.MaxPollAttempts,
			selections:          st.selections,
			returnOnDownloading: r.opts.ReturnOnDownloading,
		})
		if d.err != nil {
			r.logger.Warnf("[Resolver] %s: %s", short(src.Hash), d.err.Message)
			return nil, d.err
		}

		if d.wait {
			if err := sleep(ctx, r.opts.PollInterval); err != nil {
				return nil, classify(err, stepPoll)
			}
		}

		var err error
		switch d.next {
		case stepSubmit:
			err = r.submit(ctx, st)
			ev = event{status: StatusSubmitted, label: StatusSubmitted.String()}
		case stepSelectFiles:
			err = r.selectFiles(ctx, st)
			st.selections++
			ev = event{}
		case stepPoll:
			ev, err = r.poll(ctx, st)
		case stepFinalize:
			return r.finalize(ctx, st)
		default:
			return nil, apperrors.NewStreamError(apperrors.ErrorTypeInternal, "resolver stopped without a result", nil)
		}
		if err != nil {
			return nil, classify(err, d.next)
		}
		cur = d.next
	}
}

// lookup checks whether the provider already has a job for the hash. The
// ledger is consulted first; failures only cost a fresh submission.
func (r *Resolver) lookup(ctx context.Context, st *run) event {
	if r.ledger != nil {
		if id, ok := r.ledger.LookupTorrentID(st.src.Hash); ok {
			info, err := r.provider.TorrentInfo(ctx, id)
			if err == nil && strings.EqualFold(info.Hash, st.src.Hash) {
				r.logger.Debugf("[Resolver] %s: reusing recorded job %s", short(st.src.Hash), id)
				st.torrentID = id
				return r.observe(st, info)
			}
			r.logger.Debugf("[Resolver] %s: recorded job %s unusable: %v", short(st.src.Hash), id, err)
		}
	}

	torrents, err := r.provider.ListTorrents(ctx, constants.ExistingTorrentsPageSize)
	if err != nil {
		r.logger.Warnf("[Resolver] %s: existence check failed: %v", short(st.src.Hash), err)
		return event{}
	}

	for _, t := range torrents {
		if strings.EqualFold(t.Hash, st.src.Hash) {
			r.logger.Infof("[Resolver] %s: found existing job %s (%s)", short(st.src.Hash), t.ID, t.Status)
			st.torrentID = t.ID
			st.links = t.Links
			status := ParseStatus(t.Status)
			return event{found: true, status: status, label: t.Status, links: len(t.Links), progress: t.Progress}
		}
	}
	return event{}
}

func (r *Resolver) submit(ctx context.Context, st *run) error {
	var (
		resp *realdebrid.AddResponse
		err  error
	)
	switch {
	case len(st.src.Payload) > 0:
		resp, err = r.provider.AddTorrent(ctx, st.src.Payload)
	case st.src.Magnet != "":
		resp, err = r.provider.AddMagnet(ctx, st.src.Magnet)
	default:
		return apperrors.NewInvalidSourceError("no torrent payload or magnet to submit", nil)
	}
	if err != nil {
		return err
	}
	if resp.ID == "" {
		return apperrors.NewInvalidSourceError("provider returned no job id", nil)
	}

	st.torrentID = resp.ID
	r.logger.Infof("[Resolver] %s: submitted as job %s", short(st.src.Hash), resp.ID)

	if r.ledger != nil {
		if err := r.ledger.RecordSubmission(st.src.Hash, resp.ID, st.src.Name); err != nil {
			r.logger.Warnf("[Resolver] failed to record job %s: %v", resp.ID, err)
		}
	}
	return nil
}

func (r *Resolver) poll(ctx context.Context, st *run) (event, error) {
	info, err := r.provider.TorrentInfo(ctx, st.torrentID)
	st.polls++
	if err != nil {
		return event{}, err
	}
	ev := r.observe(st, info)
	r.logger.Debugf("[Resolver] %s: poll %d/%d status=%s progress=%.0f%%",
		short(st.src.Hash), st.polls, r.opts.MaxPollAttempts, info.Status, info.Progress)
	return ev, nil
}

func (r *Resolver) observe(st *run, info *realdebrid.TorrentInfo) event {
	st.info = info
	st.links = info.Links
	status := ParseStatus(info.Status)
	if status == StatusUnknown {
		r.logger.Warnf("[Resolver] %s: unrecognised provider status %q, treating as active", short(st.src.Hash), info.Status)
	}
	return event{found: true, status: status, label: info.Status, links: len(info.Links), progress: info.Progress}
}

// selectFiles activates the preferred file. The file list can lag behind the
// status, so listing is retried a bounded number of times before falling
// back to selecting everything.
func (r *Resolver) selectFiles(ctx context.Context, st *run) error {
	var files []realdebrid.File
	if st.info != nil {
		files = st.info.Files
	}

	err := retry.Do(
		func() error {
			if len(files) == 0 {
				info, err := r.provider.TorrentInfo(ctx, st.torrentID)
				if err != nil {
					return err
				}
				if len(info.Files) == 0 {
					return errFilesPending
				}
				files = info.Files
			}
			return r.provider.SelectFiles(ctx, st.torrentID, ChooseFiles(files))
		},
		retry.Context(ctx),
		retry.Attempts(uint(max(r.opts.FileSelectAttempts, 1))),
		retry.Delay(r.opts.FileSelectDelay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return stderrors.Is(err, errFilesPending) || isTransient(err)
		}),
		retry.OnRetry(func(n uint, err error) {
			r.logger.Debugf("[Resolver] %s: file selection attempt %d failed: %v", short(st.src.Hash), n+1, err)
		}),
	)

	if stderrors.Is(err, errFilesPending) {
		r.logger.Warnf("[Resolver] %s: file list unavailable, selecting all files", short(st.src.Hash))
		return r.provider.SelectFiles(ctx, st.torrentID, nil)
	}
	return err
}

// finalize unrestricts the first links. Individual failures are skipped.
func (r *Resolver) finalize(ctx context.Context, st *run) (*models.Resolution, error) {
	links := st.links
	if len(links) > r.opts.MaxLinks {
		links = links[:r.opts.MaxLinks]
	}

	res := &models.Resolution{Hash: st.src.Hash, TorrentID: st.torrentID}
	var lastErr error
	for _, link := range links {
		u, err := r.provider.UnrestrictLink(ctx, link)
		if err != nil {
			lastErr = err
			r.logger.Warnf("[Resolver] %s: failed to unrestrict link: %v", short(st.src.Hash), err)
			continue
		}
		if u.Download == "" {
			continue
		}
		res.Links = append(res.Links, models.Link{
			Filename: u.Filename,
			URL:      u.Download,
			Filesize: u.Filesize,
		})
		r.logger.Infof("[Resolver] %s: ready %s (%s)", short(st.src.Hash), u.Filename, humanize.Bytes(uint64(max(u.Filesize, 0))))
	}

	if len(res.Links) == 0 {
		if lastErr != nil {
			if err := classify(lastErr, stepFinalize); apperrors.TypeOf(err) != apperrors.ErrorTypeProviderTerminal {
				return nil, err
			}
		}
		return nil, apperrors.NewProviderTerminalError("no link could be unrestricted", lastErr)
	}
	return res, nil
}

// classify turns a raw failure into the resolver's error taxonomy.
func classify(err error, at step) error {
	var se *apperrors.StreamError
	if stderrors.As(err, &se) {
		return se
	}

	if stderrors.Is(err, context.DeadlineExceeded) || stderrors.Is(err, context.Canceled) {
		return apperrors.NewStreamError(apperrors.ErrorTypeTimeout,
			fmt.Sprintf("Operation timeout: resolution stopped during %s", at), err)
	}

	var apiErr *realdebrid.APIError
	if stderrors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500:
			return apperrors.NewTransientProviderError(fmt.Sprintf("provider unavailable during %s", at), err)
		case apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden:
			return apperrors.NewProviderTerminalError("provider rejected the credentials", err)
		case at == stepSubmit && (apiErr.StatusCode == http.StatusBadRequest || apiErr.StatusCode == http.StatusNotFound):
			return apperrors.NewInvalidSourceError("provider rejected the torrent", err)
		}
		return apperrors.NewProviderTerminalError(fmt.Sprintf("provider error during %s", at), err)
	}

	// Anything else is a transport failure.
	return apperrors.NewTransientProviderError(fmt.Sprintf("provider unreachable during %s", at), err)
}

func isTransient(err error) bool {
	return apperrors.TypeOf(classify(err, stepSelectFiles)) == apperrors.ErrorTypeTransientProvider
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func short(hash string) string {
	if len(hash) > 8 {
		return hash[:8]
	}
	return hash
}
