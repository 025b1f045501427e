// Command server runs the rewards HTTP API.
//
// @title                       Rewards API
// @version                     1.0
// @description                 Accounts, referrals, quests and catalog for the Telegram rewards mini-app.
// @BasePath                    /api
// @securityDefinitions.apikey  AdminToken
// @in                          header
// @name                        X-Admin-Token
package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/rewards-backend/internal/cache"
	"github.com/tbourn/rewards-backend/internal/catalog"
	"github.com/tbourn/rewards-backend/internal/config"
	httpapi "github.com/tbourn/rewards-backend/internal/http"
	"github.com/tbourn/rewards-backend/internal/observability"
	"github.com/tbourn/rewards-backend/internal/repo"
	"github.com/tbourn/rewards-backend/internal/services"
	"github.com/tbourn/rewards-backend/internal/sysutil"
	"github.com/tbourn/rewards-backend/internal/telegram"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}
	logger := sysutil.SetupLogger(os.Stderr, cfg.LogLevel, cfg.LogPretty)
	ver := sysutil.FirstNonEmpty(os.Getenv("APP_VERSION"), version)

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, ver)
	if err != nil {
		logger.Fatal().Err(err).Msg("otel")
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(sctx); err != nil {
			logger.Warn().Err(err).Msg("otel shutdown")
		}
	}()

	db, err := repo.Open(cfg.DB)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.DB.Driver).Msg("db")
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}
	if cfg.DB.MigrateOnStart {
		applied, err := repo.Migrate(ctx, db)
		if err != nil {
			logger.Fatal().Err(err).Msg("migrate")
		}
		logger.Info().Ints("applied", applied).Msg("schema up to date")
	}

	ext := httpapi.Integrations{}

	tg, err := telegram.New(cfg.Telegram)
	switch {
	case errors.Is(err, telegram.ErrDisabled):
		logger.Warn().Msg("telegram disabled: subscription, bio and notify features unavailable")
	case err != nil:
		logger.Fatal().Err(err).Msg("telegram")
	default:
		ext.Telegram = tg
	}

	if cfg.Redis.Addr != "" {
		rdb, err := cache.Open(ctx, cfg.Redis)
		if err != nil {
			// Cooldown hints are optional; the store stays authoritative.
			logger.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("redis unavailable, cooldown hints disabled")
		} else {
			defer rdb.Close()
			ext.Hints = cache.NewCooldowns(rdb)
		}
	}

	cat, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.CatalogPath).Msg("catalog")
	}
	ext.Catalog = cat

	gin.SetMode(cfg.GinMode)
	r := gin.New()
	if err := httpapi.RegisterRoutes(r, db, ext, cfg); err != nil {
		logger.Fatal().Err(err).Msg("routes")
	}

	scheduler := services.NewScheduler()
	if cfg.IdempotencyPurgeEvery > 0 {
		if _, err := scheduler.Every(cfg.IdempotencyPurgeEvery, services.PurgeIdempotencyJob(db, time.Now)); err != nil {
			logger.Fatal().Err(err).Msg("schedule idempotency purge")
		}
	}
	scheduler.Start()
	defer scheduler.Stop()

	srv := &http.Server{
		Addr:              net.JoinHostPort("", cfg.Port),
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
		BaseContext:       func(net.Listener) context.Context { return logger.WithContext(context.Background()) },
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Str("version", ver).Msg("rewards api listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			logger.Error().Err(err).Msg("server stopped with error")
		}
	}

	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown")
	}
	logger.Info().Msg("shutdown complete")
}
