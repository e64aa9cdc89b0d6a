package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/kitalumni/backend/internal/api"
	"github.com/kitalumni/backend/internal/auth"
	"github.com/kitalumni/backend/internal/config"
	"github.com/kitalumni/backend/internal/database"
	"github.com/kitalumni/backend/internal/domain"
	"github.com/kitalumni/backend/internal/fcm"
	"github.com/kitalumni/backend/internal/metrics"
	"github.com/kitalumni/backend/internal/middleware"
	"github.com/kitalumni/backend/internal/notify"
	"github.com/kitalumni/backend/internal/realtime"
	"github.com/kitalumni/backend/internal/repository"
)

func main() {
	// Load .env file if exists
	_ = godotenv.Load()

	// Initialize logger
	logger, err := initLogger(os.Getenv("ENV"), os.Getenv("LOG_LEVEL"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	logger.Info("Starting KIT Alumni API",
		zap.String("env", cfg.Server.Env),
		zap.String("port", cfg.Server.Port),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Database.Migrate {
		if err := database.RunMigrations(cfg.Database.URL); err != nil {
			logger.Fatal("Failed to run migrations", zap.Error(err))
		}
		logger.Info("Database migrations applied")
	}

	// Initialize database
	db, err := initDatabase(ctx, cfg.Database.URL)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	logger.Info("Connected to database")

	repo := repository.NewPostgresRepository(db)
	users := repository.NewCachedDirectory(repo, cfg.Cache.DirectoryTTL)
	defer users.Stop()

	// Nobody is connected to a freshly started instance.
	if err := users.ResetPresence(ctx); err != nil {
		logger.Warn("Failed to reset presence flags", zap.Error(err))
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder := metrics.NewCollector(registry)

	bus, err := initBus(ctx, cfg.Redis, logger)
	if err != nil {
		logger.Fatal("Failed to connect to redis", zap.Error(err))
	}
	defer bus.Close()

	notifier := initNotifier(cfg.SMTP, logger)

	// Initialize Firebase
	var pushSender domain.PushSender
	fcmClient, err := fcm.NewClient(ctx, logger, cfg.Firebase.CredentialsFile)
	if err != nil {
		logger.Warn("Failed to initialize Firebase client - push notifications will be disabled", zap.Error(err))
	} else {
		pushSender = fcmClient
		logger.Info("Firebase client initialized")
	}

	jwtManager := auth.NewJWTManager(cfg.JWT.Secret, cfg.JWT.AccessExpiry)
	requestTokens := auth.NewRequestTokenManager(cfg.Connection.TokenSecret, cfg.Connection.TokenExpiry)

	// Live channel
	hub := realtime.NewHub(realtime.NewPresence(), bus, users, recorder, logger)
	go func() {
		if err := hub.Run(ctx); err != nil {
			logger.Error("Realtime hub stopped", zap.Error(err))
		}
	}()

	// Initialize services
	pushService := domain.NewPushService(repo, pushSender, logger)
	connectionService := domain.NewConnectionService(repo, users, requestTokens, notifier, domain.ConnectionServiceConfig{
		LinkBaseURL:   cfg.Server.BaseURL + "/api/v1/connections",
		NotifyTimeout: cfg.Connection.NotifyTimeout,
		Metrics:       recorder,
	}, logger)
	chatService := domain.NewChatService(repo, users, hub, pushService, recorder, logger)
	directoryService := domain.NewDirectoryService(users, hub)

	rateLimiter := middleware.NewRateLimiter(
		middleware.PerMinute(cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.Burst),
		logger,
	)
	defer rateLimiter.Stop()

	// Initialize router
	router := api.NewRouter(api.RouterDeps{
		ConnectionHandler: api.NewConnectionHandler(connectionService, logger),
		ChatHandler:       api.NewChatHandler(chatService, directoryService, logger),
		SocketHandler:     api.NewSocketHandler(hub, chatService, cfg.Server.AllowedOrigins, logger),
		DirectoryHandler:  api.NewDirectoryHandler(directoryService, logger),
		DeviceHandler:     api.NewDeviceHandler(pushService, logger),
		HealthHandler:     api.NewHealthHandler(repo),
		MetricsHandler:    metrics.Handler(registry),
		JWTManager:        jwtManager,
		RateLimiter:       rateLimiter,
		AllowedOrigins:    cfg.Server.AllowedOrigins,
		Logger:            logger,
	})
	r := router.Setup()

	// Start cleanup worker
	connectionService.StartCleanupWorker(ctx, 1*time.Hour, cfg.Connection.Retention)

	// Create server. No write timeout: the live channel is long-lived.
	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("Server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", zap.Error(err))
	}

	// Stops the hub and the cleanup worker
	cancel()

	logger.Info("Server stopped")
}

func initLogger(env, level string) (*zap.Logger, error) {
	zcfg := zap.NewDevelopmentConfig()
	if env == "production" {
		zcfg = zap.NewProductionConfig()
	}
	if level != "" {
		lvl, err := zap.ParseAtomicLevel(level)
		if err != nil {
			return nil, err
		}
		zcfg.Level = lvl
	}
	return zcfg.Build()
}

func initDatabase(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	// Connection pool settings
	config.MaxConns = 25
	config.MinConns = 5
	config.MaxConnLifetime = 1 * time.Hour
	config.MaxConnIdleTime = 30 * time.Minute
	config.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}

// initBus picks the event bus. Without redis every event stays in process,
// which is only correct for a single instance.
func initBus(ctx context.Context, cfg config.RedisConfig, logger *zap.Logger) (realtime.Bus, error) {
	if cfg.URL == "" {
		logger.Info("REDIS_URL not set - presence is local to this instance")
		return realtime.NewLocalBus(), nil
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	rdb := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	logger.Info("Connected to redis", zap.String("channel", cfg.Channel))
	return realtime.NewRedisBus(rdb, cfg.Channel, logger), nil
}

func initNotifier(cfg config.SMTPConfig, logger *zap.Logger) domain.Notifier {
	if !cfg.Enabled() {
		logger.Warn("SMTP_HOST not set - connection emails will only be logged")
		return notify.NewLogNotifier(logger)
	}

	emailNotifier, err := notify.NewEmailNotifier(notify.EmailConfig{
		Host:     cfg.Host,
		Port:     cfg.Port,
		Username: cfg.Username,
		Password: cfg.Password,
		From:     cfg.From,
	}, logger)
	if err != nil {
		logger.Warn("Failed to initialize SMTP client - connection emails will only be logged", zap.Error(err))
		return notify.NewLogNotifier(logger)
	}
	return emailNotifier
}
