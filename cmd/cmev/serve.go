package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/alfredjeanlab/cmevents/internal/client"
	"github.com/alfredjeanlab/cmevents/internal/config"
	"github.com/alfredjeanlab/cmevents/internal/events"
	"github.com/alfredjeanlab/cmevents/internal/poller"
	"github.com/alfredjeanlab/cmevents/internal/server"
	"github.com/alfredjeanlab/cmevents/internal/store"
	"github.com/alfredjeanlab/cmevents/internal/store/memory"
	"github.com/alfredjeanlab/cmevents/internal/store/postgres"
	cmsync "github.com/alfredjeanlab/cmevents/internal/sync"
)

const (
	seedPageSize    = 100
	shutdownTimeout = 10 * time.Second
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Short:   "Poll the Events API and serve the feed over HTTP and gRPC",
	GroupID: "system",
	// Override PersistentPreRunE so we don't build a server client.
	PersistentPreRunE: skipServerClient,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		logger := newLogger(cfg)

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg, logger)
	},
}

func newLogger(cfg *config.Config) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
}

// pollerConfig maps cfg onto poller settings. The environment uses 0 to
// switch the fetch timeout and stale signal off; the poller uses a negative
// value for that and treats 0 as "default".
func pollerConfig(cfg *config.Config, logger *slog.Logger, metrics *poller.Metrics) poller.Config {
	pc := poller.Config{
		BaseInterval:             cfg.PollBaseInterval,
		DisableThrottle:          cfg.DisableThrottle,
		ThrottleDisabledInterval: cfg.ThrottleDisabledInterval,
		FetchTimeout:             cfg.FetchTimeout,
		StaleAfter:               cfg.StaleAfter,
		Logger:                   logger,
		Metrics:                  metrics,
	}
	if pc.FetchTimeout == 0 {
		pc.FetchTimeout = -1
	}
	if pc.StaleAfter == 0 {
		pc.StaleAfter = -1
	}
	return pc
}

// seedCache loads the newest page into cache without publishing it. A
// failure is logged; the poller will catch up.
func seedCache(ctx context.Context, source *client.PollingSource, cache *memory.Cache, logger *slog.Logger) {
	seed, err := source.Seed(ctx)
	if err != nil {
		logger.Warn("initial event load failed", "err", err)
		return
	}
	cache.Apply(seed)
	logger.Info("event cache seeded", "events", len(seed), "unseen", cache.Unseen())
}

func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	if cfg.APIToken == "" {
		return errors.New("CMEV_API_TOKEN is required")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	api := client.NewAPIClient(cfg.APIURL, cfg.APIToken, cfg.RateLimit)
	source := client.NewPollingSource(api, time.Now(), seedPageSize, logger)

	cache := memory.New(cfg.CacheCapacity)
	seedCache(ctx, source, cache, logger)

	// Create event publisher.
	var publisher events.Publisher = &events.NoopPublisher{}
	if cfg.NATSURL != "" {
		pub, err := events.NewNATSPublisher(cfg.NATSURL)
		if err != nil {
			return fmt.Errorf("connecting to NATS: %w", err)
		}
		publisher = pub
		logger.Info("bus enabled", "nats_url", cfg.NATSURL)
	} else {
		logger.Info("bus disabled (CMEV_NATS_URL not set)")
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			logger.Error("error closing publisher", "err", err)
		}
	}()

	// Open the archive.
	var archive store.Store
	if cfg.DatabaseURL != "" {
		pg, err := postgres.New(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		archive = pg
		defer func() {
			if err := pg.Close(); err != nil {
				logger.Error("error closing archive", "err", err)
			}
		}()
		logger.Info("archive enabled")
	}

	// The poller's stale callback needs the server, and the server needs
	// the poller.
	var srv *server.Server
	pc := pollerConfig(cfg, logger, poller.NewMetrics(reg))
	pc.OnStaleChange = func(st poller.State) {
		srv.SetStale(st)
		notice := events.StaleNotice{
			Stale:               st.Stale,
			ConsecutiveFailures: st.ConsecutiveFailures,
			LastError:           st.LastError,
		}
		pubCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := publisher.Publish(pubCtx, events.TopicStale, notice); err != nil {
			logger.Warn("failed to publish stale notice", "err", err)
		}
	}

	stream := events.NewStream(logger)
	p, err := poller.New(pc, source, stream)
	if err != nil {
		return err
	}
	srv = server.New(server.Config{
		Store:     cache,
		Poller:    p,
		Upstream:  api,
		Registry:  reg,
		AuthToken: cfg.AuthToken,
		Logger:    logger,
	})

	// Subscription order is delivery order: the cache is current before
	// SSE clients and the bus hear about an event.
	stream.Subscribe(cache.Listen)
	stream.Subscribe(srv.Listen)
	var archiver *store.Archiver
	if archive != nil {
		archiver = store.NewArchiver(archive, 0, logger)
		stream.Subscribe(archiver.Listen)
	}
	if cfg.NATSURL != "" {
		events.Bridge(stream, publisher, logger)
	}

	var scheduler *cmsync.Scheduler
	if cfg.SyncEnabled() {
		dest, err := cmsync.NewS3Destination(ctx, cmsync.S3Config{
			Bucket:   cfg.SyncS3Bucket,
			Key:      cfg.SyncS3Key,
			Region:   cfg.SyncS3Region,
			Endpoint: cfg.SyncS3Endpoint,
		})
		if err != nil {
			logger.Error("failed to create S3 sync destination", "err", err)
		} else {
			scheduler = cmsync.NewScheduler(archive, []cmsync.Destination{dest}, cfg.SyncInterval, logger)
			logger.Info("sync S3 destination enabled", "dest", dest.String(), "interval", cfg.SyncInterval)
		}
	} else if cfg.SyncInterval > 0 {
		logger.Warn("sync interval set but sync needs CMEV_SYNC_S3_BUCKET and CMEV_DATABASE_URL")
	}

	grpcServer := srv.NewGRPCServer()
	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return err
	}
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srv.NewHTTPHandler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	// SSE streams end when their request context does.
	httpServer.BaseContext = func(net.Listener) context.Context { return gctx }
	g.Go(func() error { return p.Run(gctx) })
	if archiver != nil {
		g.Go(func() error { return archiver.Run(gctx) })
	}
	if scheduler != nil {
		scheduler.Start()
	}
	g.Go(func() error {
		logger.Info("gRPC server listening", "addr", cfg.GRPCAddr)
		if err := grpcServer.Serve(lis); err != nil {
			return fmt.Errorf("gRPC server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		logger.Info("HTTP server listening", "addr", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		if scheduler != nil {
			scheduler.Stop()
			logger.Info("sync scheduler stopped")
		}

		srv.Shutdown()
		grpcServer.GracefulStop()
		logger.Info("gRPC server stopped")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", "err", err)
		}
		logger.Info("HTTP server stopped")
		return nil
	})

	logger.Info("cmev server started",
		"grpc_addr", cfg.GRPCAddr,
		"http_addr", cfg.HTTPAddr,
		"api_url", cfg.APIURL,
	)

	err = g.Wait()
	if err == nil {
		logger.Info("shutdown complete")
	}
	return err
}
