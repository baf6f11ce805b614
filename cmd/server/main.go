// Command server runs the flashcard marketplace HTTP API.
//
// @title                      Flashcard Market API
// @version                    1.0
// @description                Marketplace of flashcard sets: free, premium and subscriber-only content with per-caller access verdicts.
// @BasePath                   /api/v1
// @securityDefinitions.apikey BearerAuth
// @in                         header
// @name                       Authorization
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/flashcard-market/internal/cache"
	"github.com/tbourn/flashcard-market/internal/config"
	httpapi "github.com/tbourn/flashcard-market/internal/http"
	"github.com/tbourn/flashcard-market/internal/observability"
	"github.com/tbourn/flashcard-market/internal/repo"
	"github.com/tbourn/flashcard-market/internal/services"
	"github.com/tbourn/flashcard-market/internal/sysutil"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	sysutil.ConfigureLogging(cfg.LogLevel, cfg.LogPretty, os.Stderr, cfg.OTEL.ServiceName)

	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
}

func run(ctx context.Context, cfg config.Config) error {
	ver := sysutil.FirstNonEmpty(os.Getenv("APP_VERSION"), version)

	shutdownTracing, err := observability.SetupTracing(ctx, cfg.OTEL, ver)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			log.Warn().Err(err).Msg("tracer shutdown")
		}
	}()

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		return err
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}
	if err := repo.AutoMigrate(db); err != nil {
		return err
	}

	c, err := cache.New(cache.Config{
		Capacity:           cfg.Cache.Capacity,
		NumShards:          cfg.Cache.Shards,
		EvictionPercentage: 10,
		DefaultTTL:         cfg.Cache.TTL,
		MaxTTL:             cfg.Cache.MaxTTL,
		SweepInterval:      cfg.Cache.SweepInterval,
	})
	if err != nil {
		return err
	}
	c.Start(ctx)
	defer c.Close()

	app, err := httpapi.NewApp(db, c, cfg)
	if err != nil {
		return err
	}
	go purgeIdempotency(ctx, app.Purchases, cfg.IdempotencyPurgeEvery)

	gin.SetMode(cfg.GinMode)
	r := gin.New()
	httpapi.RegisterRoutes(r, app, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", srv.Addr).
			Str("version", ver).
			Str("api_base", cfg.APIBasePath).
			Bool("swagger", cfg.SwaggerEnabled).
			Msg("flashcard market listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			log.Error().Err(err).Msg("server shutdown error")
		}
		return nil
	case err := <-errCh:
		return err
	}
}

// purgeIdempotency deletes expired purchase keys every interval until ctx
// is done. A zero interval disables it.
func purgeIdempotency(ctx context.Context, p *services.PurchaseService, every time.Duration) {
	if every <= 0 {
		return
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := p.PurgeExpired(ctx)
			if err != nil {
				log.Warn().Err(err).Msg("idempotency purge failed")
				continue
			}
			if n > 0 {
				log.Debug().Int64("deleted", n).Msg("idempotency purge")
			}
		}
	}
}
