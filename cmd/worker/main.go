// Package main - точка входа фонового процесса (Worker) движка аттестаций.
//
// Worker двигает движок вперёд во времени:
// - периодический sweep закрывает записи с истёкшим льготным сроком
// - периодическая привязка сопоставляет сдачи с запланированными периодами
// - обработчики событий рассылают уведомления и сбрасывают кэш проекций
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
	"github.com/eduhub/assessment-engine/internal/domain/notification"
	"github.com/eduhub/assessment-engine/internal/domain/shared"
	"github.com/eduhub/assessment-engine/internal/infrastructure/external/authoring"
	"github.com/eduhub/assessment-engine/internal/infrastructure/messaging"
	"github.com/eduhub/assessment-engine/internal/infrastructure/persistence/postgres"
	"github.com/eduhub/assessment-engine/internal/infrastructure/persistence/redis"
	"github.com/eduhub/assessment-engine/internal/infrastructure/scheduler"
	"github.com/eduhub/assessment-engine/internal/infrastructure/scheduler/jobs"
	"github.com/eduhub/assessment-engine/internal/infrastructure/service"
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
	// 1. ЗАГРУЗКА КОНФИГУРАЦИИ
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. НАСТРОЙКА ЛОГИРОВАНИЯ
	// ─────────────────────────────────────────────────────────────────────────
	log := setupSlog(cfg)
	appLog := setupAppLogger(cfg)
	log.Info("starting assessment engine worker",
		"env", string(cfg.App.Environment),
		"debug", cfg.App.Debug,
		"timezone", cfg.App.Timezone,
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 3. ПОДКЛЮЧЕНИЕ К БАЗЕ ДАННЫХ
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("connecting to database...")
	dbConn, err := postgres.NewConnectionFromURL(ctx, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer func() {
		log.Info("closing database connection...")
		dbConn.Close()
	}()

	if err := dbConn.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	log.Info("database connection established")

	// ─────────────────────────────────────────────────────────────────────────
	// 4. МИГРАЦИИ СХЕМЫ
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("checking database migrations...")
	migrator := postgres.NewMigrator(dbConn)
	if err := migrator.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	log.Info("database schema is up to date")

	// ─────────────────────────────────────────────────────────────────────────
	// 5. REDIS (кэш проекции расписания, опционально)
	// ─────────────────────────────────────────────────────────────────────────
	var redisCache *redis.Cache
	var scheduleCache query.ScheduleCache

	if !cfg.Redis.Disabled {
		log.Info("connecting to Redis...")
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
			// Кэш - ускорение, не зависимость: без Redis проекция
			// строится напрямую из PostgreSQL.
			log.Warn("failed to connect to Redis, schedule caching disabled", "error", err)
			redisCache = nil
		} else {
			defer redisCache.Close()
			scheduleCache = redis.NewScheduleCache(redisCache, cfg.Redis.ScheduleCacheTTL)
			log.Info("Redis connection established")
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 6. ШИНА СОБЫТИЙ
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("initializing event bus...")
	localBusConfig := messaging.DefaultInMemoryEventBusConfig()
	localBusConfig.Logger = log

	// С Redis события разделяются между процессами: worker видит события,
	// порождённые вебхуками в процессе API.
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
		defer func() {
			log.Info("closing event bus...")
			_ = redisBus.Close()
		}()
		eventBus = redisBus
	} else {
		memBus := messaging.NewInMemoryEventBus(localBusConfig)
		defer func() {
			log.Info("closing event bus...")
			_ = memBus.Close()
		}()
		eventBus = memBus
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 7. ВНЕШНИЕ КЛИЕНТЫ (модуль авторинга аттестаций)
	// ─────────────────────────────────────────────────────────────────────────
	authoringConfig := authoring.DefaultClientConfig(cfg.Authoring.BaseURL)
	authoringConfig.APIKey = cfg.Authoring.APIKey
	authoringConfig.Timeout = cfg.Authoring.RequestTimeout
	authoringConfig.TeacherCacheTTL = cfg.Authoring.TeacherCacheTTL
	authoringConfig.Logger = log
	authoringClient := authoring.NewClient(authoringConfig)

	// ─────────────────────────────────────────────────────────────────────────
	// 8. РЕПОЗИТОРИИ И КОМАНДЫ
	// ─────────────────────────────────────────────────────────────────────────
	progressRepo := postgres.NewProgressRepository(dbConn)
	notificationRepo := postgres.NewNotificationRepository(dbConn)
	submissionSource := postgres.NewSubmissionSource(dbConn)

	clk := clock.System{}

	sweepHandler := command.NewSweepExpiredHandler(progressRepo, eventBus, clk, appLog,
		command.SweepExpiredHandlerConfig{Tolerance: cfg.Assessment.SweepTolerance})

	linkHandler := command.NewLinkSubmissionHandler(progressRepo, submissionSource, eventBus, clk, appLog)
	linkAllHandler := command.NewLinkAllHandler(linkHandler, submissionSource, clk, appLog)

	// ─────────────────────────────────────────────────────────────────────────
	// 9. ДИСПЕТЧЕР УВЕДОМЛЕНИЙ
	// ─────────────────────────────────────────────────────────────────────────
	policy := buildDispatchPolicy(cfg, log)

	var channels []notification.Channel
	if cfg.Notifications.WebhookURL != "" {
		channels = append(channels, service.NewWebhookChannel(service.WebhookChannelConfig{
			URL:     cfg.Notifications.WebhookURL,
			APIKey:  cfg.Notifications.WebhookAPIKey,
			Timeout: cfg.Notifications.WebhookTimeout,
		}, clk))
	}
	// Лог-канал замыкает цепочку: уведомление без доставки всё равно
	// остаётся видимым в логах.
	channels = append(channels, service.NewLogChannel(log, clk))

	notifier := service.NewNotificationDispatcher(channels, notificationRepo, policy, eventBus, clk, log)

	// ─────────────────────────────────────────────────────────────────────────
	// 10. ОБРАБОТЧИКИ СОБЫТИЙ
	// ─────────────────────────────────────────────────────────────────────────
	dispatcher := messaging.NewDispatcher(messaging.DefaultDispatcherConfig(eventBus))

	expiredConfig := eventhandler.DefaultAssessmentExpiredConfig()
	expiredConfig.NotifyStudent = cfg.Notifications.Enabled &&
		cfg.Features.IsEnabled(config.FeatureNotifyExpiry, nil)
	expiredConfig.NotifyTeacher = cfg.Notifications.Enabled &&
		cfg.Features.IsEnabled(config.FeatureNotifyExpiry, nil)

	onExpired := eventhandler.NewOnAssessmentExpiredHandler(
		notifier, authoringClient, scheduleCache, log, expiredConfig)
	onLinked := eventhandler.NewOnSubmissionLinkedHandler(scheduleCache, log)
	onTopicMissing := eventhandler.NewOnTopicMissingHandler(notifier, authoringClient, log)

	if err := dispatcher.Register(shared.EventAssessmentExpired, "on_assessment_expired", onExpired.Handle()); err != nil {
		return fmt.Errorf("failed to register expired handler: %w", err)
	}
	if err := dispatcher.Register(shared.EventSubmissionLinked, "on_submission_linked", onLinked.Handle()); err != nil {
		return fmt.Errorf("failed to register linked handler: %w", err)
	}
	if err := dispatcher.Register(shared.EventTopicMissing, "on_topic_missing", onTopicMissing.Handle()); err != nil {
		return fmt.Errorf("failed to register topic missing handler: %w", err)
	}

	if err := dispatcher.Start(); err != nil {
		return fmt.Errorf("failed to start dispatcher: %w", err)
	}
	defer func() {
		log.Info("stopping event dispatcher...")
		_ = dispatcher.Stop()
	}()

	// ─────────────────────────────────────────────────────────────────────────
	// 11. ПЛАНИРОВЩИК ФОНОВЫХ ЗАДАЧ
	// ─────────────────────────────────────────────────────────────────────────
	if cfg.Scheduler.Enabled {
		schedConfig := scheduler.DefaultSchedulerConfig()
		schedConfig.Logger = log
		schedConfig.Timezone = cfg.App.Location
		sched := scheduler.NewScheduler(schedConfig)

		sweepJob := jobs.NewSweepExpiredJob(sweepHandler, appLog, jobs.SweepExpiredConfig{
			BatchLimit: cfg.Assessment.SweepBatchLimit,
			Timeout:    cfg.Scheduler.JobTimeout,
		})
		linkJob := jobs.NewLinkSubmissionsJob(linkAllHandler, appLog, jobs.LinkSubmissionsConfig{
			BatchLimit: cfg.Assessment.LinkBatchLimit,
			Timeout:    cfg.Scheduler.JobTimeout,
		})
		purgeJob := jobs.NewPurgeNotificationsJob(notificationRepo, clk, appLog, jobs.PurgeNotificationsConfig{
			Retention: cfg.Notifications.Retention,
			Timeout:   cfg.Scheduler.JobTimeout,
		})

		if err := sched.Register(sweepJob, scheduler.NewIntervalSchedule(cfg.Assessment.SweepInterval)); err != nil {
			return fmt.Errorf("failed to register sweep job: %w", err)
		}
		if err := sched.Register(linkJob, scheduler.NewIntervalSchedule(cfg.Assessment.LinkInterval)); err != nil {
			return fmt.Errorf("failed to register link job: %w", err)
		}
		// Журнал уведомлений чистится ночью, вне учебных часов.
		if err := sched.Register(purgeJob, scheduler.MustParseCron(scheduler.CronNightly)); err != nil {
			return fmt.Errorf("failed to register purge job: %w", err)
		}

		if err := sched.Start(ctx); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
		defer func() {
			log.Info("stopping scheduler...")
			_ = sched.Stop()
		}()

		log.Info("scheduler started",
			"sweep_interval", cfg.Assessment.SweepInterval.String(),
			"link_interval", cfg.Assessment.LinkInterval.String(),
		)
	} else {
		log.Warn("scheduler disabled, no background sweeps will run")
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 12. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("assessment engine worker is running",
		"grace_period", cfg.Assessment.GracePeriod.String(),
		"timezone", cfg.App.Timezone,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	sig := <-sigCh
	log.Info("received shutdown signal", "signal", sig.String())

	log.Info("starting graceful shutdown...", "timeout", cfg.App.ShutdownTimeout.String())
	// Отложенные Stop/Close выполняются в обратном порядке регистрации.

	log.Info("shutdown completed successfully")
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// buildDispatchPolicy собирает политику доставки из конфигурации.
// Некорректные тихие часы отключают ограничение, а не валят процесс.
func buildDispatchPolicy(cfg *config.Config, log *slog.Logger) notification.DispatchPolicy {
	var policy notification.DispatchPolicy

	if cfg.Notifications.QuietHoursStart >= 0 && cfg.Notifications.QuietHoursEnd >= 0 {
		// TimeConstraint хранит окно разрешённой отправки, то есть
		// интервал от конца тихих часов до их начала.
		tc, err := notification.NewTimeConstraint(
			cfg.Notifications.QuietHoursEnd,
			cfg.Notifications.QuietHoursStart,
			cfg.App.Timezone,
		)
		if err != nil {
			log.Warn("invalid quiet hours, constraint disabled", "error", err)
		} else {
			policy.QuietHours = tc
		}
	}

	if cfg.Notifications.RateLimitPerRecipient > 0 {
		rl, err := notification.NewRateLimit(
			cfg.Notifications.RateLimitPerRecipient,
			cfg.Notifications.RateLimitWindow,
		)
		if err != nil {
			log.Warn("invalid notification rate limit, limit disabled", "error", err)
		} else {
			policy.RateLimit = rl
		}
	}

	return policy
}

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
