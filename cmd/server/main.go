package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	httpAdapter "github.com/iho/postings/internal/adapter/http"
	"github.com/iho/postings/internal/adapter/http/handler"
	"github.com/iho/postings/internal/adapter/repository/memcache"
	postgresRepo "github.com/iho/postings/internal/adapter/repository/postgres"
	redisRepo "github.com/iho/postings/internal/adapter/repository/redis"
	sqliteRepo "github.com/iho/postings/internal/adapter/repository/sqlite"
	"github.com/iho/postings/internal/infrastructure/config"
	"github.com/iho/postings/internal/infrastructure/logger"
	"github.com/iho/postings/internal/infrastructure/metrics"
	"github.com/iho/postings/internal/infrastructure/postgres"
	"github.com/iho/postings/internal/infrastructure/redis"
	"github.com/iho/postings/internal/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
	})

	ctx := context.Background()

	store, cleanup, err := newStore(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize storage")
	}
	defer cleanup()

	cache, cacheCleanup, err := newCache(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize cache")
	}
	defer cacheCleanup()

	m := metrics.New()
	idGen := postgresRepo.NewULIDGenerator()

	postingUC := usecase.NewPostingUseCase(store, cache, idGen, m, usecase.PostingConfig{
		HashMetadata: cfg.HashMetadata,
		BalanceTTL:   cfg.BalanceTTL,
		PostingTTL:   cfg.PostingTTL,
	}, log)
	accountUC := usecase.NewAccountUseCase(store, idGen)

	router := httpAdapter.NewRouter(httpAdapter.RouterConfig{
		AccountHandler: handler.NewAccountHandler(accountUC),
		PostingHandler: handler.NewPostingHandler(postingUC),
		HealthHandler:  handler.NewHealthHandler(store),
		Logger:         log,
		Metrics:        m,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.HTTPPort),
		Handler:      router,
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
	}

	go func() {
		log.Info().Str("port", cfg.HTTPPort).Str("driver", cfg.DatabaseDriver).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}

// newStore builds the storage backend selected by DATABASE_DRIVER and
// returns a cleanup function that releases its resources.
func newStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) (usecase.Store, func(), error) {
	switch cfg.DatabaseDriver {
	case "postgres":
		if err := postgres.RunMigrations(cfg.DatabaseURL); err != nil {
			return nil, nil, fmt.Errorf("run migrations: %w", err)
		}

		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, cfg.DatabaseMaxConns, cfg.DatabaseMinConns)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to postgres: %w", err)
		}
		log.Info().Msg("connected to postgres")

		store := postgresRepo.NewStore(pool, postgresRepo.NewRetrier(log), log)

		return store, pool.Close, nil

	case "sqlite":
		db, err := sqliteRepo.Open(cfg.DatabasePath)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite database: %w", err)
		}
		log.Info().Str("path", cfg.DatabasePath).Msg("opened sqlite database")

		store := sqliteRepo.NewStore(db, sqliteRepo.NewRetrier(log), log)

		return store, func() { db.Close() }, nil

	default:
		return nil, nil, fmt.Errorf("unsupported database driver %q", cfg.DatabaseDriver)
	}
}

// newCache returns the Redis cache when REDIS_URL is set, the in-process
// bounded cache otherwise.
func newCache(ctx context.Context, cfg *config.Config) (usecase.Cache, func(), error) {
	if cfg.RedisURL == "" {
		return memcache.New(cfg.CacheCapacity), func() {}, nil
	}

	client, err := redis.NewClient(ctx, cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to redis: %w", err)
	}

	return redisRepo.NewCache(client), func() { client.Close() }, nil
}
