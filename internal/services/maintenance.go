package services

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/amaumene/rdstream/internal/cache"
	"github.com/amaumene/rdstream/internal/constants"
	"github.com/amaumene/rdstream/internal/database"
	"github.com/amaumene/rdstream/internal/inflight"
	"github.com/amaumene/rdstream/internal/models"
	"github.com/amaumene/rdstream/internal/relay"
	"github.com/amaumene/rdstream/pkg/logger"
	"github.com/amaumene/rdstream/pkg/realdebrid"
)

// delay between provider deletions to stay clear of rate limits
const cleanupDeleteDelay = 100 * time.Millisecond

// TorrentDeleter removes provider jobs.
type TorrentDeleter interface {
	DeleteTorrent(ctx context.Context, id string) error
}

// JobStore is the part of the ledger cleanup works on.
type JobStore interface {
	Older(d time.Duration) ([]database.Job, error)
	Forget(hash string) error
}

// MaintenanceOptions configure the periodic jobs.
type MaintenanceOptions struct {
	SweepInterval   time.Duration
	CleanupEnabled  bool
	CleanupInterval time.Duration
	Retention       time.Duration
}

// Maintenance runs the cache sweep and the optional provider cleanup on a
// cron schedule.
type Maintenance struct {
	results *cache.ResultCache
	sources *cache.SourceLookupCache
	flights *inflight.Registry[*models.Resolution]
	relay   *relay.Relay
	jobs    JobStore
	deleter TorrentDeleter
	opts    MaintenanceOptions
	logger  logger.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
	delay   time.Duration
}

// NewMaintenance creates the scheduler. jobs and deleter may be nil, which
// disables cleanup.
func NewMaintenance(
	results *cache.ResultCache,
	sources *cache.SourceLookupCache,
	flights *inflight.Registry[*models.Resolution],
	rl *relay.Relay,
	jobs JobStore,
	deleter TorrentDeleter,
	opts MaintenanceOptions,
	log logger.Logger,
) *Maintenance {
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = constants.DefaultSweepInterval
	}
	if opts.CleanupInterval <= 0 {
		opts.CleanupInterval = constants.DefaultCleanupInterval
	}
	if opts.Retention <= 0 {
		opts.Retention = constants.DefaultJobRetention
	}
	return &Maintenance{
		results: results,
		sources: sources,
		flights: flights,
		relay:   rl,
		jobs:    jobs,
		deleter: deleter,
		opts:    opts,
		logger:  log,
		delay:   cleanupDeleteDelay,
	}
}

// Start schedules the jobs. It is a no-op when already running.
func (m *Maintenance) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return nil
	}

	cl := cronLogger{m.logger}
	c := cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)

	if _, err := c.AddFunc("@every "+m.opts.SweepInterval.String(), func() { m.Sweep() }); err != nil {
		return fmt.Errorf("failed to schedule sweep: %w", err)
	}

	if m.cleanupEnabled() {
		spec := "@every " + m.opts.CleanupInterval.String()
		if _, err := c.AddFunc(spec, func() { m.Cleanup(ctx) }); err != nil {
			return fmt.Errorf("failed to schedule cleanup: %w", err)
		}
		m.logger.Infof("[Cleanup] enabled with interval %v, retention %v", m.opts.CleanupInterval, m.opts.Retention)
	}

	c.Start()
	m.cron = c
	m.running = true
	m.logger.Infof("[Maintenance] sweeping every %v", m.opts.SweepInterval)
	return nil
}

// Stop unschedules the jobs and waits for a running one to finish.
func (m *Maintenance) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	c := m.cron
	m.running = false
	m.mu.Unlock()

	<-c.Stop().Done()
	m.logger.Infof("[Maintenance] stopped")
}

func (m *Maintenance) cleanupEnabled() bool {
	return m.opts.CleanupEnabled && m.jobs != nil && m.deleter != nil
}

// SweepReport counts what one sweep removed.
type SweepReport struct {
	Results int
	Sources int
	Flights int
	Guards  int
}

// Sweep drops expired cache entries and stale registry and relay entries.
func (m *Maintenance) Sweep() SweepReport {
	r := SweepReport{
		Results: m.results.CleanExpired(),
		Sources: m.sources.CleanExpired(),
		Flights: m.flights.Sweep(constants.StaleFlightAge),
		Guards:  m.relay.Sweep(constants.StaleStreamAge),
	}
	if r.Flights > 0 {
		m.logger.Warnf("[Maintenance] released %d stale resolutions", r.Flights)
	}
	m.logger.Debugf("[Maintenance] sweep removed %d results, %d sources, %d stream guards", r.Results, r.Sources, r.Guards)
	return r
}

// Cleanup deletes provider jobs older than the retention period and forgets
// them. It returns how many jobs were removed from the ledger.
func (m *Maintenance) Cleanup(ctx context.Context) int {
	if !m.cleanupEnabled() {
		return 0
	}

	jobs, err := m.jobs.Older(m.opts.Retention)
	if err != nil {
		m.logger.Errorf("[Cleanup] failed to list old jobs: %v", err)
		return 0
	}
	if len(jobs) == 0 {
		m.logger.Debugf("[Cleanup] no old jobs to clean up")
		return 0
	}
	m.logger.Infof("[Cleanup] found %d jobs to clean up", len(jobs))

	cleaned := 0
	for i, job := range jobs {
		if ctx.Err() != nil {
			break
		}
		if i > 0 && m.delay > 0 {
			select {
			case <-time.After(m.delay):
			case <-ctx.Done():
			}
		}

		if err := m.deleter.DeleteTorrent(ctx, job.TorrentID); err != nil && !isGone(err) {
			m.logger.Warnf("[Cleanup] failed to delete job %s: %v", job.TorrentID, err)
			continue
		}
		if err := m.jobs.Forget(job.Hash); err != nil {
			m.logger.Errorf("[Cleanup] failed to forget job %s: %v", job.TorrentID, err)
			continue
		}
		cleaned++
	}

	m.logger.Infof("[Cleanup] completed: %d jobs removed", cleaned)
	return cleaned
}

// isGone reports a provider 404, meaning the job was already deleted.
func isGone(err error) bool {
	var apiErr *realdebrid.APIError
	return stderrors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// cronLogger routes cron's own messages to the application logger.
type cronLogger struct {
	log logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debugf("[Cron] %s %v", msg, keysAndValues)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Errorf("[Cron] %s: %v %v", msg, err, keysAndValues)
}
