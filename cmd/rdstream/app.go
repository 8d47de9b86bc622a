package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/amaumene/rdstream/internal/cache"
	"github.com/amaumene/rdstream/internal/config"
	"github.com/amaumene/rdstream/internal/constants"
	"github.com/amaumene/rdstream/internal/database"
	"github.com/amaumene/rdstream/internal/debrid"
	"github.com/amaumene/rdstream/internal/handlers"
	"github.com/amaumene/rdstream/internal/inflight"
	"github.com/amaumene/rdstream/internal/middleware"
	"github.com/amaumene/rdstream/internal/models"
	"github.com/amaumene/rdstream/internal/relay"
	"github.com/amaumene/rdstream/internal/services"
	"github.com/amaumene/rdstream/pkg/httputil"
	"github.com/amaumene/rdstream/pkg/logger"
	"github.com/amaumene/rdstream/pkg/realdebrid"
	"github.com/amaumene/rdstream/pkg/security"
)

const limiterCleanupInterval = 10 * time.Minute

// run loads the configuration, wires the services and serves until the
// process is interrupted.
func run(parent context.Context, configPath string, overrides map[string]interface{}) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(configPath, overrides)
	if err != nil {
		return err
	}

	log := logger.NewWithOptions(logger.Options{
		Level:      cfg.LogLevel,
		Format:     cfg.LogFormat,
		File:       cfg.LogFile,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
	})
	defer func() { _ = log.Sync() }()

	db, err := database.NewBoltDB(cfg.LedgerPath)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()
	log.Infof("[App] job ledger opened at %s", cfg.LedgerPath)

	container, rateLimiter := initializeServices(cfg, db, log)

	if err := container.Maintenance.Start(ctx); err != nil {
		return fmt.Errorf("failed to start maintenance: %w", err)
	}
	defer container.Maintenance.Stop()
	rateLimiter.StartCleanup(ctx, limiterCleanupInterval)

	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(log))
	r.Use(middleware.CORS())
	r.Use(rateLimiter.Middleware())
	r.Use(middleware.APIKey(cfg.AddonAPIKey, "/", "/health"))
	handlers.New(container, cfg).RegisterRoutes(r)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("[App] starting HTTP server on port %s (mode %s, delivery %s)", cfg.Port, cfg.StreamMode, cfg.Delivery)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Infof("[App] shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warnf("[App] graceful shutdown failed: %v", err)
	}
	return nil
}

// initializeServices builds the caches, clients and services shared by all
// requests.
func initializeServices(cfg *config.Config, db *database.BoltDB, log logger.Logger) (*services.Container, *middleware.RateLimiter) {
	results := cache.NewResultCache(cfg.ResultCacheSize, cache.ResultPolicy{
		Success:    cfg.SuccessTTL,
		Failure:    cfg.FailureTTL,
		Timeout:    cfg.TimeoutTTL,
		InProgress: cfg.InProgressTTL,
	})
	sources := cache.NewSourceLookupCache(cfg.SourceCacheSize, cfg.SourceTTL)
	flights := inflight.New[*models.Resolution]()
	rl := relay.New(httputil.NewStreamingClient(), log)

	// Typed nils must not reach the interfaces below.
	var (
		resolver services.Resolver
		deleter  services.TorrentDeleter
	)
	if cfg.HasRealDebrid() {
		if !security.NewAPIKeyValidator().IsValidRealDebridKey(cfg.RealDebridAPIKey) {
			log.Warnf("[App] Real-Debrid key %s does not look like a private token", security.MaskAPIKey(cfg.RealDebridAPIKey))
		}
		client := realdebrid.NewClient(
			httputil.NewDefaultHTTPClient(),
			cfg.RealDebridURL,
			cfg.RealDebridAPIKey,
			rate.NewLimiter(constants.RealDebridRateLimit, constants.RealDebridRateBurst),
		)
		resolver = debrid.NewResolver(client, db, debrid.Options{
			PollInterval:        cfg.PollInterval,
			MaxPollAttempts:     cfg.MaxPollAttempts,
			FileSelectAttempts:  cfg.FileSelectAttempts,
			FileSelectDelay:     constants.FileSelectionRetryDelay,
			ReturnOnDownloading: cfg.ReturnOnDownloading,
			MaxLinks:            constants.MaxLinksPerResolution,
		}, log)
		deleter = client
		log.Infof("[App] Real-Debrid enabled with key %s", security.MaskAPIKey(cfg.RealDebridAPIKey))
	} else {
		log.Warnf("[App] no Real-Debrid key configured; playback links are disabled")
	}

	indexerClient := httputil.NewHTTPClient(constants.IndexerTimeout)
	indexer := services.NewSKTorrent(indexerClient, cfg.IndexerURL, cfg.SKTUID, cfg.SKTPass, log)
	titles := services.NewIMDb(indexerClient, cfg.TitleURL, log)

	gateway := services.NewGateway(results, sources, flights, resolver, indexer, rl, services.GatewayOptions{
		Delivery: cfg.Delivery,
		Timeout:  cfg.ResolutionTimeout,
	}, log)

	listing := services.NewListing(titles, indexer, gateway, services.ListingOptions{
		Mode:          cfg.StreamMode,
		HasRealDebrid: cfg.HasRealDebrid(),
	}, log)

	var jobs services.JobStore
	if deleter != nil {
		jobs = db
	}
	maintenance := services.NewMaintenance(results, sources, flights, rl, jobs, deleter, services.MaintenanceOptions{
		SweepInterval:   cfg.SweepInterval,
		CleanupEnabled:  cfg.CleanupEnabled,
		CleanupInterval: cfg.CleanupInterval,
		Retention:       cfg.JobRetention,
	}, log)

	log.Infof("[App] services initialized successfully")

	return &services.Container{
		Config:      cfg,
		Gateway:     gateway,
		Listing:     listing,
		DB:          db,
		Maintenance: maintenance,
		Logger:      log,
	}, middleware.NewRateLimiter(cfg.RateLimitMax)
}
