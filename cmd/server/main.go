package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/Clark-Hu/smart-ratings/internal/config"
	"github.com/Clark-Hu/smart-ratings/internal/domain"
	"github.com/Clark-Hu/smart-ratings/internal/events"
	httpserver "github.com/Clark-Hu/smart-ratings/internal/http"
	"github.com/Clark-Hu/smart-ratings/internal/logging"
	"github.com/Clark-Hu/smart-ratings/internal/monitoring"
	"github.com/Clark-Hu/smart-ratings/internal/ratings"
	"github.com/Clark-Hu/smart-ratings/internal/repository"
	"github.com/Clark-Hu/smart-ratings/internal/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	logging.Setup(cfg.LogLevel, cfg.LogFormat, cfg.AppEnv)
	monitoring.Init()
	log.Info().Str("env", cfg.AppEnv).Msg("starting smart-ratings server")

	if cfg.DBMigrateOnStart {
		if err := store.Migrate(cfg.DBURL); err != nil {
			log.Fatal().Err(err).Msg("apply migrations")
		}
	}

	dbCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	storeLogger := logging.NewLogger("store")
	st, err := store.New(dbCtx, cfg.DBURL, store.Options{
		MaxConns:               int32(cfg.DBMaxConns),
		MinConns:               int32(cfg.DBMinConns),
		MaxConnIdleTime:        time.Duration(cfg.DBMaxIdleSecs) * time.Second,
		MaxConnLifetime:        time.Duration(cfg.DBMaxLifeSecs) * time.Second,
		ConnTimeout:            time.Duration(cfg.DBConnTimeoutSecs) * time.Second,
		StatementCacheCapacity: cfg.DBStatementCache,
		Logger:                 &storeLogger,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("connect database")
	}
	defer st.Close()

	publishers, rdb := buildPublishers(ctx, cfg)
	if rdb != nil {
		defer rdb.Close()
	}
	dispatcher := events.NewDispatcher(cfg.EventsBufferSize, publishers...)
	dispatcher.Start()
	defer dispatcher.Stop()

	repo := repository.New(st)
	svc := ratings.NewService(repo, ratings.Options{
		DefaultMode:       domain.DisplayMode(cfg.DefaultDisplayMode),
		DefaultRealWeight: decimal.NewFromFloat(cfg.DefaultRealWeight),
		DefaultFakeWeight: decimal.NewFromFloat(cfg.DefaultFakeWeight),
		Precision:         int32(cfg.RatingPrecision),
		CategoryCacheTTL:  time.Duration(cfg.CategoryCacheTTLSecs) * time.Second,
	}, dispatcher)

	featured := ratings.NewFeaturedScheduler(svc, ratings.SchedulerConfig{
		Interval: time.Duration(cfg.FeaturedIntervalSecs) * time.Second,
		Thresholds: ratings.Thresholds{
			MinRealCount: int64(cfg.FeaturedMinRealCount),
			MinAverage:   decimal.NewFromFloat(cfg.FeaturedMinAverage),
			MaxSize:      cfg.FeaturedMaxSize,
		},
		Precision: int32(cfg.RatingPrecision),
	})
	if err := featured.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("start featured scheduler")
	}
	defer featured.Stop()

	go reportPoolStats(ctx, st)

	server := httpserver.New(cfg, st, svc, featured)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			serverErrCh <- err
			return
		}
		serverErrCh <- nil
	}()

	select {
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("server error")
		}
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error().Err(err).Msg("graceful shutdown error")
	}
	log.Info().Msg("server stopped")
}

// buildPublishers returns the configured event sinks. A sink that cannot be
// initialised is logged and skipped so rating writes never depend on it.
func buildPublishers(ctx context.Context, cfg config.Config) ([]events.Publisher, *redis.Client) {
	var publishers []events.Publisher
	var rdb *redis.Client

	if cfg.RedisURL != "" {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		client, err := events.NewRedisClient(pingCtx, cfg.RedisURL)
		cancel()
		if err != nil {
			log.Warn().Err(err).Msg("redis unavailable, rating events will not be published to redis")
		} else {
			rdb = client
			publishers = append(publishers, events.NewRedisPublisher(client, cfg.EventsChannel))
		}
	}

	if cfg.EventsWebhookURL != "" {
		hook, err := events.NewWebhookPublisher(cfg.EventsWebhookURL, cfg.EventsWebhookAPIKey, time.Duration(cfg.EventsWebhookTimeoutSec)*time.Second)
		if err != nil {
			log.Warn().Err(err).Msg("invalid events webhook, skipping")
		} else {
			publishers = append(publishers, hook)
		}
	}

	log.Info().Int("publishers", len(publishers)).Msg("event sinks configured")
	return publishers, rdb
}

func reportPoolStats(ctx context.Context, st *store.Store) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if stat := st.Stats(); stat != nil {
				monitoring.SetDBConnections(int(stat.AcquiredConns()), int(stat.IdleConns()))
			}
		}
	}
}
