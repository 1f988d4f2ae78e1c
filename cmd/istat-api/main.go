// Command istat-api boots the full platform: metadata and analytics
// stores, the auth core, the outbound ingestion client, and the HTTP
// surface, then serves until interrupted. Mirrors the teacher's
// cmd/test_server/main.go: a single http.Server started in a goroutine,
// torn down on SIGINT/SIGTERM with a bounded shutdown context.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/osservatorio-istat/platform/internal/analyticsstore"
	"github.com/osservatorio-istat/platform/internal/auth"
	"github.com/osservatorio-istat/platform/internal/config"
	"github.com/osservatorio-istat/platform/internal/httpapi"
	"github.com/osservatorio-istat/platform/internal/ingestion"
	"github.com/osservatorio-istat/platform/internal/metadatastore"
	"github.com/osservatorio-istat/platform/internal/metrics"
	"github.com/osservatorio-istat/platform/internal/ratelimit"
	"github.com/osservatorio-istat/platform/internal/repository"
	"github.com/osservatorio-istat/platform/internal/rules"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	cfg := config.Default()

	ctx, cancelBoot := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelBoot()

	metaStore, err := metadatastore.Open(ctx, cfg.MetadataDSN, cfg.RequestBudget)
	if err != nil {
		log.Fatal().Err(err).Msg("istat-api: connect metadata store")
	}
	defer metaStore.Close()

	if err := metaStore.Migrate(ctx); err != nil {
		log.Fatal().Err(err).Msg("istat-api: migrate metadata store")
	}

	analyticsAddr := cfg.AnalyticsAddr
	if len(analyticsAddr) == 0 {
		analyticsAddr = []string{"localhost:9000"}
	}
	dataStore := analyticsstore.NewWithPartitionStrategy(
		analyticsAddr, "istat", cfg.UpstreamTimeout(),
		analyticsstore.PartitionStrategy(cfg.AnalyticsPartitionStrategy),
	)

	repo := repository.New(metaStore, dataStore, cfg.CacheMaxSize, cfg.CacheDefaultTTL())

	apiKeys := metadatastore.NewAPIKeyRepo(metaStore)
	rateLimits := metadatastore.NewRateLimitRepo(metaStore)
	auditRepo := metadatastore.NewAuditRepo(metaStore)
	revocations := metadatastore.NewRevocationRepo(metaStore)

	minter := auth.NewTokenMinter([]byte(cfg.JWTSecretKey), cfg.JWTAccessTokenTTL(), revocations)
	scopeCrypt, err := auth.NewScopeCipher([]byte(cfg.JWTSecretKey))
	if err != nil {
		log.Fatal().Err(err).Msg("istat-api: build scope cipher")
	}

	limiter := ratelimit.NewLimiter()

	rulesRepo := rules.NewRepo(metaStore)
	if err := rules.SeedDefaults(ctx, rulesRepo); err != nil {
		log.Fatal().Err(err).Msg("istat-api: seed categorization rules")
	}

	reg := metrics.New()
	ingestionClient := ingestion.NewClient(cfg, repo, reg)

	server := httpapi.NewServer(httpapi.ServerConfig{
		Host:               cfg.HTTPHost,
		Port:               cfg.HTTPPort,
		ReadTimeout:        30 * time.Second,
		WriteTimeout:       30 * time.Second,
		IdleTimeout:        120 * time.Second,
		RequestBudget:      cfg.RequestBudget,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		RateLimitDefault:   cfg.RateLimitDefault,
	}, httpapi.Deps{
		Repo:       repo,
		APIKeys:    apiKeys,
		RateLimits: rateLimits,
		Audit:      auditRepo,
		Minter:     minter,
		ScopeCrypt: scopeCrypt,
		Limiter:    limiter,
		Rules:      rulesRepo,
		Ingestion:  ingestionClient,
		Metrics:    reg,
	})

	serverErr := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", cfg.HTTPHost).
			Int("port", cfg.HTTPPort).
			Msg("istat-api: serving")
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		log.Info().Msg("istat-api: shutdown signal received")
	case err := <-serverErr:
		log.Error().Err(err).Msg("istat-api: server error")
		return
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("istat-api: shutdown error")
		return
	}
	log.Info().Msg("istat-api: shutdown complete")
}
