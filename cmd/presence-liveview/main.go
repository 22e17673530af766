package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gftdcojp/presence-liveview/internal/cache"
	"github.com/gftdcojp/presence-liveview/internal/config"
	"github.com/gftdcojp/presence-liveview/internal/directory"
	"github.com/gftdcojp/presence-liveview/internal/liveview"
	"github.com/gftdcojp/presence-liveview/internal/metrics"
	"github.com/gftdcojp/presence-liveview/internal/presence"
	"github.com/gftdcojp/presence-liveview/internal/serve"
	"github.com/gftdcojp/presence-liveview/internal/types"
	"github.com/gftdcojp/presence-liveview/pkg/natsutil"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	showVersion := flag.Bool("version", false, "show version")
	flag.Parse()

	if *showVersion {
		fmt.Printf("presence-liveview %s\n", version)
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.Observability.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("fatal error", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Connect to NATS
	nc, err := natsutil.Connect(cfg.NATS, logger.Named("nats"))
	if err != nil {
		return fmt.Errorf("connecting to NATS: %w", err)
	}
	defer nc.Close()

	// Entity fetcher backend
	probes := make(map[string]metrics.Pinger)
	var fetcher liveview.EntityFetcher
	switch cfg.Directory.Backend {
	case "redis":
		redisFetcher := directory.NewRedisFetcher(cfg.Directory.Redis, logger.Named("directory"))
		defer redisFetcher.Close()
		probes["redis"] = redisFetcher
		fetcher = redisFetcher
	default:
		fetcher = directory.NewNATSFetcher(nc, cfg.Directory, logger.Named("directory"))
	}

	// Presence request-reply client and push event stream
	presenceClient := presence.NewClient(nc, cfg.Presence, logger.Named("presence"))
	events := presence.NewEventStream(nc, cfg.Presence, logger.Named("events"))

	// Last-known snapshot cache
	var cacheStore *cache.Store
	if cfg.Cache.Enabled {
		cacheStore, err = cache.NewStore(cfg.Cache.Path, cfg.Cache.NoSync, logger.Named("cache"))
		if err != nil {
			return fmt.Errorf("opening snapshot cache: %w", err)
		}
		defer cacheStore.Close()
		probes["cache"] = cacheStore
	}

	muxCfg := liveview.MuxConfig{
		Fetcher:          fetcher,
		Presence:         presenceClient,
		Events:           events,
		Resolver:         newResolver(cfg.Resolver),
		SubscriberBuffer: cfg.LiveView.SubscriberBuffer,
		Logger:           logger.Named("liveview"),
	}
	if cacheStore != nil && cfg.LiveView.CacheWriteThrough {
		muxCfg.Cache = cacheStore
	}
	m := liveview.NewMux(muxCfg)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return events.Run(gctx) })
	g.Go(func() error { return m.Run(gctx) })

	// Start HTTP API
	if cfg.API.Enabled {
		g.Go(func() error {
			return serve.RunHTTP(gctx, cfg.API, m, snapshotReader(cacheStore), logger.Named("api"))
		})
	}

	// Start NATS responder
	if cfg.API.NATSResponder.Enabled {
		g.Go(func() error {
			return serve.RunNATSResponder(gctx, nc, cfg.API.NATSResponder, m, snapshotReader(cacheStore), logger.Named("nats-responder"))
		})
	}

	// Start metrics server
	if cfg.Observability.Metrics.Enabled {
		g.Go(func() error { return metrics.RunServer(gctx, cfg.Observability.Metrics) })
	}

	// Start health server
	if cfg.Observability.Health.Enabled {
		healthChecker := metrics.NewHealthChecker(nc, probes)
		g.Go(func() error {
			return metrics.RunHealthServer(gctx, cfg.Observability.Health, healthChecker)
		})
	}

	logger.Info("presence-liveview started",
		zap.String("version", version),
		zap.String("directory_backend", cfg.Directory.Backend),
		zap.String("nats_url", cfg.NATS.URL),
	)

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	// Graceful shutdown: release remote presence subscriptions
	logger.Info("shutting down, releasing presence subscriptions...")
	m.Close()

	return nil
}

// snapshotReader keeps a nil *cache.Store from turning into a non-nil
// interface value.
func snapshotReader(s *cache.Store) serve.SnapshotReader {
	if s == nil {
		return nil
	}
	return s
}

func newResolver(cfg config.ResolverConfig) liveview.KeyResolver {
	return liveview.ResolverFunc(func(k types.Key) types.InternalID {
		s := string(k)
		if cfg.StripPrefix != "" {
			s = strings.TrimPrefix(s, cfg.StripPrefix)
		}
		if cfg.Lowercase {
			s = strings.ToLower(s)
		}
		return types.InternalID(s)
	})
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	switch cfg.Level {
	case "debug":
		zapCfg.Level.SetLevel(zap.DebugLevel)
	case "info":
		zapCfg.Level.SetLevel(zap.InfoLevel)
	case "warn":
		zapCfg.Level.SetLevel(zap.WarnLevel)
	case "error":
		zapCfg.Level.SetLevel(zap.ErrorLevel)
	}

	return zapCfg.Build()
}
