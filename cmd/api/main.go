// Package main - точка входа REST API движка аттестаций.
//
// API обслуживает проекцию расписания для приложений учеников, принимает
// вебхуки платформы (завершённые сдачи и перегенерация расписания) и
// административные операции поверх записей прогресса.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/eduhub/assessment-engine/config"
	"github.com/eduhub/assessment-engine/internal/application/command"
	"github.com/eduhub/assessment-engine/internal/application/eventhandler"
	"github.com/eduhub/assessment-engine/internal/application/query"
	"github.com/eduhub/assessment-engine/internal/domain/schedule"
	"github.com/eduhub/assessment-engine/internal/domain/shared"
	"github.com/eduhub/assessment-engine/internal/infrastructure/external/authoring"
	"github.com/eduhub/assessment-engine/internal/infrastructure/messaging"
	"github.com/eduhub/assessment-engine/internal/infrastructure/persistence/postgres"
	"github.com/eduhub/assessment-engine/internal/infrastructure/persistence/redis"
	httpapi "github.com/eduhub/assessment-engine/internal/interface/http"
	"github.com/eduhub/assessment-engine/internal/interface/http/handlers"
	"github.com/eduhub/assessment-engine/pkg/clock"
	"github.com/eduhub/assessment-engine/pkg/logger"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. КОНФИГУРАЦИЯ И ЛОГИРОВАНИЕ
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := setupSlog(cfg)
	appLog := setupAppLogger(cfg)
	log.Info("starting assessment engine API",
		"env", string(cfg.App.Environment),
		"port", cfg.HTTP.Port,
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 2. БАЗА ДАННЫХ
	// ─────────────────────────────────────────────────────────────────────────
	dbConn, err := postgres.NewConnectionFromURL(ctx, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer dbConn.Close()

	if err := dbConn.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	migrator := postgres.NewMigrator(dbConn)
	if err := migrator.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 3. REDIS (кэш проекции расписания, опционально)
	// ─────────────────────────────────────────────────────────────────────────
	var redisCache *redis.Cache
	var scheduleCache query.ScheduleCache

	if !cfg.Redis.Disabled && cfg.Features.IsEnabled(config.FeatureScheduleCache, nil) {
		redisCfg := redis.DefaultConfig()
		redisCfg.Host = cfg.Redis.Host
		redisCfg.Port = cfg.Redis.Port
		redisCfg.Password = cfg.Redis.Password
		redisCfg.DB = cfg.Redis.DB
		redisCfg.PoolSize = cfg.Redis.PoolSize
		redisCfg.MinIdleConns = cfg.Redis.MinIdleConns
		redisCfg.DialTimeout = cfg.Redis.DialTimeout
		redisCfg.ReadTimeout = cfg.Redis.ReadTimeout
		redisCfg.WriteTimeout = cfg.Redis.WriteTimeout

		redisCache, err = redis.NewCache(redisCfg)
		if err != nil {
			log.Warn("failed to connect to Redis, schedule caching disabled", "error", err)
			redisCache = nil
		} else {
			defer redisCache.Close()
			scheduleCache = redis.NewScheduleCache(redisCache, cfg.Redis.ScheduleCacheTTL)
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. ШИНА СОБЫТИЙ И ОБРАБОТЧИКИ
	// Вебхуки генерируют события в этом же процессе, поэтому API несёт
	// собственный сброс кэша. Уведомления рассылает worker: при включённом
	// Redis события уходят к нему через pub/sub.
	// ─────────────────────────────────────────────────────────────────────────
	localBusConfig := messaging.DefaultInMemoryEventBusConfig()
	localBusConfig.Logger = log

	var eventBus shared.EventBus
	if redisCache != nil {
		redisBus, busErr := messaging.NewRedisEventBus(messaging.RedisEventBusConfig{
			Client:         redis.NewEventBusClient(redisCache),
			LocalBusConfig: localBusConfig,
			Logger:         log,
		})
		if busErr != nil {
			return fmt.Errorf("failed to create redis event bus: %w", busErr)
		}
		defer redisBus.Close()
		eventBus = redisBus
	} else {
		memBus := messaging.NewInMemoryEventBus(localBusConfig)
		defer memBus.Close()
		eventBus = memBus
	}

	onLinked := eventhandler.NewOnSubmissionLinkedHandler(scheduleCache, log)
	if err := eventBus.Subscribe(shared.EventSubmissionLinked, onLinked.Handle()); err != nil {
		return fmt.Errorf("failed to subscribe cache invalidation: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. ВНЕШНИЕ КЛИЕНТЫ И КОМАНДЫ
	// ─────────────────────────────────────────────────────────────────────────
	authoringConfig := authoring.DefaultClientConfig(cfg.Authoring.BaseURL)
	authoringConfig.APIKey = cfg.Authoring.APIKey
	authoringConfig.Timeout = cfg.Authoring.RequestTimeout
	authoringConfig.TeacherCacheTTL = cfg.Authoring.TeacherCacheTTL
	authoringConfig.Logger = log
	authoringClient := authoring.NewClient(authoringConfig)

	progressRepo := postgres.NewProgressRepository(dbConn)
	submissionSource := postgres.NewSubmissionSource(dbConn)

	clk := clock.System{}

	scheduleHandler := query.NewGetStudentScheduleHandler(
		progressRepo, authoringClient, scheduleCache, clk, appLog)
	statsHandler := query.NewGetProgressStatsHandler(progressRepo, clk)

	linkHandler := command.NewLinkSubmissionHandler(progressRepo, submissionSource, eventBus, clk, appLog)
	linkAllHandler := command.NewLinkAllHandler(linkHandler, submissionSource, clk, appLog)
	expireHandler := command.NewExpireRecordHandler(progressRepo, eventBus, clk, appLog)
	sweepHandler := command.NewSweepExpiredHandler(progressRepo, eventBus, clk, appLog,
		command.SweepExpiredHandlerConfig{Tolerance: cfg.Assessment.SweepTolerance})

	calculator := schedule.NewCalculator(cfg.Assessment.GracePeriod)
	materializeHandler := command.NewMaterializeSlotsHandler(
		progressRepo, calculator, eventBus, clk, appLog)

	webhookProcessor := handlers.NewPlatformWebhookProcessor(linkHandler, materializeHandler, log)

	// ─────────────────────────────────────────────────────────────────────────
	// 6. HEALTH CHECKS
	// ─────────────────────────────────────────────────────────────────────────
	healthChecker := handlers.NewCompositeHealthChecker(cfg.App.Version)
	healthChecker.AddCheck("database", handlers.NewDatabaseCheck(dbConn))
	if redisCache != nil {
		healthChecker.AddCheck("cache", handlers.NewCacheCheck(redisCache))
	}
	if cfg.Authoring.BaseURL != "" {
		healthChecker.AddCheck("authoring", handlers.NewAuthoringCheck(authoringClient))
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 7. HTTP СЕРВЕР
	// ─────────────────────────────────────────────────────────────────────────
	serverConfig := httpapi.DefaultConfig()
	serverConfig.Host = cfg.HTTP.Host
	serverConfig.Port = cfg.HTTP.Port
	serverConfig.ReadTimeout = cfg.HTTP.ReadTimeout
	serverConfig.WriteTimeout = cfg.HTTP.WriteTimeout
	serverConfig.IdleTimeout = cfg.HTTP.IdleTimeout
	serverConfig.EnableCORS = cfg.HTTP.EnableCORS
	serverConfig.AllowedOrigins = cfg.HTTP.AllowedOrigins
	serverConfig.RateLimitPerMinute = cfg.HTTP.RateLimitPerMinute
	serverConfig.APIKeyHeader = cfg.HTTP.APIKeyHeader
	serverConfig.APIKeys = cfg.HTTP.APIKeys
	serverConfig.WebhookSecret = cfg.HTTP.WebhookSecret

	server := httpapi.NewServer(serverConfig, httpapi.Dependencies{
		GetScheduleHandler: scheduleHandler,
		GetStatsHandler:    statsHandler,
		RelinkHandler:      linkAllHandler,
		ExpireHandler:      expireHandler,
		SweepHandler:       sweepHandler,
		WebhookHandler:     webhookProcessor,
		HealthChecker:      healthChecker,
		Logger:             appLog,
	})

	errCh := server.StartAsync()
	log.Info("HTTP server listening", "address", server.Address())

	// ─────────────────────────────────────────────────────────────────────────
	// 8. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	select {
	case sig := <-sigCh:
		log.Info("received shutdown signal", "signal", sig.String())
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	log.Info("shutdown completed successfully")
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// setupSlog настраивает структурированное логирование инфраструктуры.
func setupSlog(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if cfg.App.Debug || cfg.Observability.LogLevel == "debug" {
		opts.Level = slog.LevelDebug
	}

	var handler slog.Handler
	if cfg.Observability.LogFormat == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	log := slog.New(handler)
	slog.SetDefault(log)
	return log
}

// setupAppLogger настраивает логгер прикладного слоя (команды и запросы).
func setupAppLogger(cfg *config.Config) *logger.Logger {
	level := logger.LevelInfo
	switch cfg.Observability.LogLevel {
	case "debug":
		level = logger.LevelDebug
	case "warn":
		level = logger.LevelWarn
	case "error":
		level = logger.LevelError
	}
	return logger.New(logger.Options{Level: level, AddCaller: true})
}
