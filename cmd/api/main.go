package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"brandforge/internal/adapter/repo"
	"brandforge/internal/brand"
	"brandforge/internal/cache"
	"brandforge/internal/compliance"
	httpapi "brandforge/internal/http"
	"brandforge/internal/http/handlers"
	"brandforge/internal/infra"
	"brandforge/internal/orchestrator"
	"brandforge/internal/providers/audit"
	"brandforge/internal/providers/genai"
	"brandforge/internal/providers/image"
	"brandforge/internal/session"
	"brandforge/internal/storage"
	"brandforge/internal/sweeper"
	"brandforge/internal/webhook"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := repo.RunMigrations(cfg.DatabaseURL); err != nil {
		logger.Fatal().Err(err).Msg("api: migrations failed")
	}

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: db connection failed")
	}
	defer pool.Close()

	var appCache cache.Cache
	if cfg.RedisURL != "" {
		redisCache, err := cache.NewRedisCache(cfg.RedisURL)
		if err != nil {
			logger.Warn().Err(err).Msg("api: redis unavailable, running without cache")
		} else if err := redisCache.Ping(ctx); err != nil {
			logger.Warn().Err(err).Msg("api: redis ping failed, running without cache")
		} else {
			appCache = redisCache
		}
	}

	artifacts, err := storage.NewFileStore(cfg.StoragePath, cfg.StorageBaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: failed to configure storage")
	}

	genClient, err := genai.NewClient(genai.Options{
		APIKey:     cfg.GenAPIKey,
		BaseURL:    cfg.GenBaseURL,
		Model:      cfg.GenModel,
		MaxRetries: cfg.GenMaxRetries,
		HTTPClient: &http.Client{Timeout: 60 * time.Second},
		Logger:     &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("api: failed to configure generation client")
	}
	if cfg.GenAPIKey == "" {
		logger.Warn().Str("model", genClient.Model()).Msg("api: generation api key missing, using synthetic assets")
	}

	auditClient, err := genai.NewClient(genai.Options{
		APIKey:     cfg.AuditAPIKey,
		BaseURL:    cfg.AuditBaseURL,
		Model:      cfg.AuditModel,
		HTTPClient: &http.Client{Timeout: cfg.AuditTimeout},
		Logger:     &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("api: failed to configure audit client")
	}

	jobs := repo.NewJobRepository(pool)
	idem := repo.NewIdempotencyRepository(pool)
	sessionRepo := repo.NewSessionRepository(pool)
	webhookRepo := repo.NewWebhookRepository(pool)

	sessions := session.NewStore(sessionRepo, appCache, logger)
	auditor := compliance.NewAuditor(audit.NewGeminiAuditor(auditClient), cfg.AuditTimeout, cfg.AutoApproveThreshold, logger)
	delivery := webhook.NewDelivery(jobs, webhookRepo, nil, cfg.WebhookMaxAttempts, cfg.WebhookBackoffBase, logger)

	orc := orchestrator.New(ctx, orchestrator.Options{
		Jobs:        jobs,
		Idempotency: idem,
		Sessions:    sessions,
		Generator:   image.NewGeminiGenerator(genClient),
		Auditor:     auditor,
		Artifacts:   artifacts,
		Webhooks:    delivery,
		Brands:      brand.NewStaticResolver(nil),
		Cache:       appCache,
		Thresholds: orchestrator.Thresholds{
			AutoApprove: cfg.AutoApproveThreshold,
			Review:      cfg.ReviewThreshold,
			MaxAttempts: cfg.MaxAttempts,
		},
		JobTTL:      cfg.JobTTL,
		WorkerSlots: cfg.WorkerSlots,
		Logger:      logger,
	})

	if err := orc.Recover(ctx); err != nil {
		logger.Error().Err(err).Msg("api: job recovery failed")
	}

	sweep := sweeper.New(jobs, idem, sessionRepo, webhookRepo, artifacts, cfg.SweepInterval, logger)
	go sweep.Run(ctx)

	app := handlers.NewApp(orc, logger)
	server := infra.NewHTTPServer(cfg, httpapi.NewRouter(app, logger, cfg.RateLimitPerMin))

	go func() {
		logger.Info().Str("port", cfg.Port).Msg("api: listening")
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("api: server stopped")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("api: shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("api: shutdown failed")
	}
	orc.Wait()
	logger.Info().Msg("api: stopped")
}
