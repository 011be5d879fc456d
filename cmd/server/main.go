package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/openclaw/export-worker-go/internal/config"
	"github.com/openclaw/export-worker-go/internal/database"
	"github.com/openclaw/export-worker-go/internal/handler"
	"github.com/openclaw/export-worker-go/internal/httputil"
	"github.com/openclaw/export-worker-go/internal/jobs"
	"github.com/openclaw/export-worker-go/internal/middleware"
	"github.com/openclaw/export-worker-go/internal/queue"
	"github.com/openclaw/export-worker-go/internal/redis"
	"github.com/openclaw/export-worker-go/internal/repository"
	"github.com/openclaw/export-worker-go/internal/service"
	"github.com/openclaw/export-worker-go/internal/sse"
	"github.com/openclaw/export-worker-go/internal/telemetry"
	"github.com/openclaw/export-worker-go/internal/transport/anthropic"
	"github.com/openclaw/export-worker-go/internal/transport/gateway"
	"github.com/openclaw/export-worker-go/internal/transport/report"
	"github.com/openclaw/export-worker-go/internal/transport/telegram"
	"github.com/openclaw/export-worker-go/internal/util"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	setLogLevel(cfg.LogLevel)

	isProduction := os.Getenv("FLY_APP_NAME") != ""
	if err := cfg.Validate(isProduction); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}
	if cfg.APITokenHash == "" {
		log.Warn().Msg("API_TOKEN_HASH is empty: /v1 routes are not authenticated")
	}

	encryptionKey := cfg.EncryptionKey
	if encryptionKey == "" {
		encryptionKey, err = util.LoadOrCreateKey(cfg.EncryptionKeyPath())
		if err != nil {
			log.Fatal().Err(err).Msg("failed to load encryption key")
		}
	}

	startCtx, cancel := context.WithTimeout(context.Background(), config.ServerShutdownTimeout)
	db, err := database.Open(startCtx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	if err := db.Migrate(startCtx); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate database")
	}
	log.Info().Msg("database connected")

	redisClient, err := redis.Open(startCtx, cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer redisClient.Close()
	cancel()
	log.Info().Msg("redis connected")

	credentialRepo := repository.NewCredentialRepository(db.DB)
	cipher, err := util.NewCipher(encryptionKey)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid encryption key")
	}
	credentialStore := service.NewCredentialStore(credentialRepo, cipher)

	gatewayClient := gateway.NewClient(cfg.GatewayURL)
	analyzer := anthropic.NewClient(cfg.AnalysisAPIURL, cfg.AnalysisModel, cfg.AnalysisDelay())
	notifier := telegram.NewNotifier(cfg.BotAPIURL, cfg.BotToken)
	renderer := report.NewTextRenderer()

	handshake := service.NewHandshake(gatewayClient, credentialStore, notifier, cfg.QRTimeout(), cfg.CodeTimeout())
	jobQueue := queue.NewJobQueue(cfg.QueueCapacity)

	pipeline := jobs.NewPipeline(credentialStore, gatewayClient, analyzer, renderer, notifier, jobs.PipelineConfig{
		OutputDir:          cfg.OutputDir(),
		DefaultExportLimit: cfg.DefaultExportLimit,
		Retry: jobs.RetryPolicy{
			MaxAttempts: cfg.AnalysisMaxAttempts,
			Backoff:     cfg.AnalysisBackoff(),
		},
	})
	runner := jobs.NewRunner(jobQueue, notifier)
	pipeline.Register(runner)

	broker := sse.NewBroker(redisClient)
	defer broker.Close()

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go broker.Forward(rootCtx, jobQueue.Events())

	runnerDone := make(chan error, 1)
	go func() {
		runnerDone <- runner.Run(rootCtx)
	}()

	go jobs.NewCleanupJob(handshake, config.CleanupJobInterval).Run(rootCtx)

	tokenAuthMiddleware := middleware.NewTokenAuthMiddleware(cfg.APITokenHash)
	rateLimitMiddleware := middleware.NewOwnerRateLimitMiddleware(service.NewRateLimiter(redisClient.Client), config.DefaultRateLimitPerMin)
	bodyLimitMiddleware := middleware.NewBodyLimitMiddleware(0)
	securityHeadersMiddleware := middleware.NewSecurityHeadersMiddleware(isProduction)

	jobsHandler := handler.NewJobsHandler(jobQueue)
	authHandler := handler.NewAuthHandler(handshake)
	settingsHandler := handler.NewSettingsHandler(credentialStore)
	eventsHandler := handler.NewEventsHandler(broker, jobQueue)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(securityHeadersMiddleware.Handler)
	r.Use(bodyLimitMiddleware.Handler)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		status, code := "ok", http.StatusOK
		checks := map[string]string{"database": "ok", "redis": "ok"}
		if err := db.Check(r.Context()); err != nil {
			checks["database"] = err.Error()
			status, code = "degraded", http.StatusServiceUnavailable
		}
		if err := redisClient.Check(r.Context()); err != nil {
			checks["redis"] = err.Error()
			status, code = "degraded", http.StatusServiceUnavailable
		}

		httputil.WriteJSON(w, code, map[string]any{
			"status":     status,
			"checks":     checks,
			"queueDepth": jobQueue.Len(),
			"queueSize":  jobQueue.Capacity(),
			"timestamp":  time.Now().UnixMilli(),
		})
	})

	r.Handle("/metrics", telemetry.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(tokenAuthMiddleware.Handler)

		// Event streams are long lived and skip the request timeout.
		r.With(rateLimitMiddleware.Handler).Get("/owners/{ownerID}/events", eventsHandler.ServeHTTP)

		r.Group(func(r chi.Router) {
			r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))
			r = r.With(rateLimitMiddleware.Handler)
			jobsHandler.Register(r)
			authHandler.Register(r)
			settingsHandler.Register(r)
		})
	})

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  config.ServerReadTimeout,
		WriteTimeout: 0,
		IdleTimeout:  config.ServerIdleTimeout,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr()).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	select {
	case <-rootCtx.Done():
		log.Info().Msg("shutting down server")
	case err := <-runnerDone:
		log.Error().Err(err).Msg("job runner stopped, shutting down server")
		runnerDone <- err
	}
	stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ServerShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	select {
	case <-runnerDone:
	case <-time.After(config.RunnerStopTimeout):
		log.Warn().Msg("job runner did not stop in time")
	}

	log.Info().Msg("server stopped")
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
