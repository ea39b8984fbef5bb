// Package main starts the custody tracker HTTP service.
//
// @title                       Custody Tracker API
// @version                     1.0
// @description                 Product custody and provenance ledger: role-gated lifecycle operations with an append-only history per product.
// @BasePath                    /
// @securityDefinitions.apikey  BearerAuth
// @in                          header
// @name                        Authorization
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/99minutos/custody-tracker/internal/api"
	"github.com/99minutos/custody-tracker/internal/api/handler"
	"github.com/99minutos/custody-tracker/internal/core/ports"
	"github.com/99minutos/custody-tracker/internal/core/service"
	"github.com/99minutos/custody-tracker/internal/infrastructure/config"
	"github.com/99minutos/custody-tracker/internal/infrastructure/db/memory"
	mongostore "github.com/99minutos/custody-tracker/internal/infrastructure/db/mongo"
	redisstore "github.com/99minutos/custody-tracker/internal/infrastructure/db/redis"
	sqlitestore "github.com/99minutos/custody-tracker/internal/infrastructure/db/sqlite"
	"github.com/99minutos/custody-tracker/internal/infrastructure/notify"
	"github.com/99minutos/custody-tracker/internal/infrastructure/queue"
	"github.com/99minutos/custody-tracker/pkg/logger"
)

const shutdownTimeout = 15 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		boot := zerolog.New(os.Stderr)
		boot.Fatal().Err(err).Msg("failed to load configuration")
	}

	log := logger.Init(logger.Options{
		Level:   cfg.LogLevel,
		Pretty:  cfg.Pretty(),
		Service: "custody-tracker",
	})

	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	log := logger.Get()

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	health := map[string]handler.PingFunc{"store": store.Ping}

	sinks := notify.Fanout{notify.NewLogSink(logger.Component("notifications"))}
	if cfg.Redis.Addr != "" {
		rdb, err := redisstore.Connect(ctx, redisstore.Config{Addr: cfg.Redis.Addr, DB: cfg.Redis.DB})
		if err != nil {
			return err
		}
		defer rdb.Close()
		sinks = append(sinks, redisstore.NewPublisher(rdb, cfg.Notify.Stream))
		health["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
		log.Info().Str("addr", cfg.Redis.Addr).Str("stream", cfg.Notify.Stream).Msg("redis notification sink enabled")
	}

	// Workers outlive the request context so queued notifications drain on shutdown.
	dispatcher := queue.NewDispatcher(cfg.Notify.Workers, sinks, logger.Component("dispatcher"),
		queue.WithRetryBackoff(cfg.Notify.RetryInitial, cfg.Notify.RetryMax))
	dispatcher.Start(context.WithoutCancel(ctx))
	defer dispatcher.Close()

	registry := service.NewRegistry(store, logger.Component("registry"))
	if err := registry.Bootstrap(ctx, cfg.AdminActor); err != nil {
		return err
	}
	lifecycle := service.NewLifecycleService(store, registry, dispatcher, logger.Component("lifecycle"))

	e := api.NewRouter(api.Dependencies{
		Lifecycle: lifecycle,
		Roles:     registry,
		Health:    health,
		JWTSecret: cfg.JWTSecret,
		Logger:    logger.Component("http"),
	})

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("port", cfg.Port).Str("store", cfg.Store.Driver).Msg("listening")
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

// openStore builds the configured backend and returns a cleanup function.
func openStore(ctx context.Context, cfg *config.Config) (ports.Store, func(), error) {
	switch cfg.Store.Driver {
	case config.DriverMongo:
		client, db, err := mongostore.Connect(ctx, mongostore.Config{URI: cfg.Mongo.URI, Database: cfg.Mongo.Database})
		if err != nil {
			return nil, nil, err
		}
		cleanup := func() { _ = client.Disconnect(context.Background()) }
		store := mongostore.NewStore(db)
		if err := store.EnsureIndexes(ctx); err != nil {
			cleanup()
			return nil, nil, err
		}
		return store, cleanup, nil

	case config.DriverSQLite:
		db, err := sqlitestore.Open(ctx, cfg.SQLite.DSN)
		if err != nil {
			return nil, nil, err
		}
		store, err := sqlitestore.NewStore(ctx, db)
		if err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return store, func() { _ = db.Close() }, nil

	default:
		return memory.NewStore(), func() {}, nil
	}
}
