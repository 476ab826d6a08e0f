package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/Dosada05/talent-vote/backend"
	"github.com/Dosada05/talent-vote/config"
	"github.com/Dosada05/talent-vote/db"
	"github.com/Dosada05/talent-vote/gateway"
	"github.com/Dosada05/talent-vote/handlers"
	"github.com/Dosada05/talent-vote/live"
	"github.com/Dosada05/talent-vote/messaging"
	"github.com/Dosada05/talent-vote/middleware"
	"github.com/Dosada05/talent-vote/ratelimit"
	"github.com/Dosada05/talent-vote/repositories"
	api "github.com/Dosada05/talent-vote/routes"
	"github.com/Dosada05/talent-vote/services"
	"github.com/Dosada05/talent-vote/storage"
)

func main() {
	// Настройка логгера
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	// Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}
	location := cfg.Location()
	logger.Info("configuration loaded",
		slog.Int("port", cfg.ServerPort),
		slog.String("phase_timezone", location.String()),
		slog.Int64("max_votes_per_submission", cfg.MaxVotesPerSubmission))

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// Подключение к базе данных
	dbConn, err := db.Connect(cfg.DatabaseURL, 5*time.Second, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := dbConn.Close(); err != nil {
			logger.Error("failed to close database connection", slog.Any("error", err))
		} else {
			logger.Info("database connection closed")
		}
	}()
	schemaCtx, cancelSchema := context.WithTimeout(ctx, 10*time.Second)
	err = db.EnsureSchema(schemaCtx, dbConn)
	cancelSchema()
	if err != nil {
		logger.Error("failed to ensure database schema", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("database connection established")

	// Медиа и архив уведомлений (Cloudflare R2). Без ключей архив отключён.
	var assets services.AssetURLResolver
	var archiver services.PayloadArchiver
	if cfg.ArchiveEnabled() {
		uploader, err := storage.NewCloudflareR2Uploader(ctx, storage.CloudflareR2UploaderConfig{
			AccountID:       cfg.R2AccountID,
			AccessKeyID:     cfg.R2AccessKeyID,
			SecretAccessKey: cfg.R2SecretAccessKey,
			BucketName:      cfg.R2BucketName,
			PublicBaseURL:   cfg.R2PublicBaseURL,
		})
		if err != nil {
			logger.Error("failed to initialize Cloudflare R2 uploader", slog.Any("error", err))
			os.Exit(1)
		}
		assets = uploader
		archiver = storage.NewWebhookArchive(uploader, "")
		logger.Info("Cloudflare R2 uploader initialized")
	} else {
		resolver, err := storage.NewURLResolver(cfg.R2PublicBaseURL)
		if err != nil {
			logger.Error("failed to initialize media URL resolver", slog.Any("error", err))
			os.Exit(1)
		}
		assets = resolver
		logger.Info("webhook archive disabled: R2 credentials are not configured")
	}

	// Ограничение частоты голосований (Redis)
	var limiter middleware.Limiter
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Error("invalid REDIS_URL", slog.Any("error", err))
			os.Exit(1)
		}
		redisClient := redis.NewClient(opts)
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Error("failed to close redis client", slog.Any("error", err))
			}
		}()
		pingCtx, cancelPing := context.WithTimeout(ctx, 5*time.Second)
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			// Лимитер работает в режиме fail-open, поэтому старт не прерываем.
			logger.Warn("redis is not reachable at startup", slog.Any("error", err))
		}
		cancelPing()
		limiter = ratelimit.NewRedisLimiter(redisClient, cfg.RateLimitPrefix)
		logger.Info("vote rate limiter enabled", slog.Int("per_minute", cfg.VoteRateLimitPerMin))
	}

	// Публикация событий оплаты (RabbitMQ)
	var publisher services.EventPublisher
	if cfg.RabbitMQURL != "" {
		producer, err := messaging.NewProducer(cfg.RabbitMQURL, cfg.EventsExchange, logger)
		if err != nil {
			logger.Error("failed to initialize RabbitMQ producer", slog.Any("error", err))
			os.Exit(1)
		}
		defer producer.Close()
		publisher = producer
		logger.Info("RabbitMQ producer initialized", slog.String("exchange", cfg.EventsExchange))
	}

	// Клиенты внешних API
	backendClient := backend.NewClient(cfg.BackendBaseURL, cfg.BackendAPIToken, cfg.UpstreamTimeout, location, logger)
	gatewayClient := gateway.NewClient(cfg.GatewayBaseURL, cfg.GatewaySecretKey, cfg.UpstreamTimeout, logger)
	verifier := gateway.NewSignatureVerifier(cfg.GatewayWebhookSecret, cfg.GatewayWebhookTolerance)

	// Инициализация репозиториев
	gatewayEventRepo := repositories.NewPostgresGatewayEventRepository(dbConn)
	logger.Info("Repositories initialized")

	// WebSocket Hub и обратный отсчёт
	wsHub := live.NewHub(logger)
	go wsHub.Run(ctx)

	// Инициализация сервисов
	eventService := services.NewEventService(backendClient, assets, location, logger)
	tracker := live.NewTracker(wsHub, eventService, location, logger)
	go tracker.Run(ctx)
	logger.Info("WebSocket Hub started")

	voteService := services.NewVoteService(
		eventService,
		backendClient,
		gatewayClient,
		cfg.OperatorEmail,
		cfg.MaxVotesPerSubmission,
		logger,
	)
	reconciliationService := services.NewReconciliationService(
		gatewayEventRepo,
		backendClient,
		tracker,
		publisher,
		archiver,
		logger,
	)
	navigationService := services.NewNavigationService()
	logger.Info("Services initialized")

	// Планировщик обновления деревьев событий
	scheduler := live.NewScheduler(tracker, logger)
	if err := scheduler.Start(ctx, cfg.EventRefreshSchedule); err != nil {
		logger.Error("failed to start event refresh scheduler", slog.Any("error", err))
		os.Exit(1)
	}

	// Инициализация обработчиков HTTP
	deps := api.Dependencies{
		EventHandler:      handlers.NewEventHandler(eventService),
		VoteHandler:       handlers.NewVoteHandler(voteService),
		WebhookHandler:    handlers.NewWebhookHandler(reconciliationService, verifier, logger),
		NavigationHandler: handlers.NewNavigationHandler(navigationService),
		AdminHandler:      handlers.NewAdminHandler(reconciliationService, logger),
		WebSocketHandler:  handlers.NewWebSocketHandler(wsHub, tracker, logger),
		Authenticator:     middleware.NewAuthenticator(cfg.JWTSecretKey, logger),
		Limiter:           limiter,
		VoteLimitPerMin:   cfg.VoteRateLimitPerMin,
		AllowedOrigins:    cfg.AllowedOrigins,
		SwaggerDocURL:     cfg.SwaggerDocURL,
		Logger:            logger,
	}
	logger.Info("HTTP handlers initialized")

	// Настройка маршрутизатора
	router := chi.NewRouter()
	api.SetupRoutes(router, deps)
	logger.Info("Routes configured")

	// WriteTimeout должен покрывать два последовательных вызова апстрима при голосовании.
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 2*cfg.UpstreamTimeout + 10*time.Second,
		IdleTimeout:  120 * time.Second,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("starting server", slog.String("address", server.Addr))
		serverErrors <- server.ListenAndServe()
	}()

	// Ожидание сигнала завершения
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", slog.Any("error", err))
			stop()
			os.Exit(1)
		}
		logger.Info("server stopped gracefully")
	case sig := <-quit:
		logger.Info("shutdown signal received", slog.String("signal", sig.String()))
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancelShutdown()

		logger.Info("shutting down server", slog.Duration("timeout", 15*time.Second))
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", slog.Any("error", err))
			if closeErr := server.Close(); closeErr != nil {
				logger.Error("failed to force close server", slog.Any("error", closeErr))
			}
		} else {
			logger.Info("server shutdown complete")
		}
	}

	// Останавливаем фоновые задачи: cron дожидается текущего обновления.
	stop()
	select {
	case <-scheduler.Stop().Done():
	case <-time.After(10 * time.Second):
		logger.Warn("event refresh job did not finish in time")
	}
	logger.Info("application exited")
}
