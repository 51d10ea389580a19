// Package main is the entry point for the reputation engine.
//
// The engine consumes engagement events from the maker platform, converts
// them into XP through a fixed rule table, watches for bot-like behavior,
// and maintains the public leaderboard. One process carries the REST API
// and the background jobs; a distributed lock keeps multi-instance
// deployments from running the recompute pass twice.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/makerhub/reputation-engine/config"
	"github.com/makerhub/reputation-engine/internal/application/command"
	"github.com/makerhub/reputation-engine/internal/application/eventhandler"
	"github.com/makerhub/reputation-engine/internal/application/query"
	"github.com/makerhub/reputation-engine/internal/domain/leaderboard"
	"github.com/makerhub/reputation-engine/internal/domain/shared"
	"github.com/makerhub/reputation-engine/internal/infrastructure/messaging"
	"github.com/makerhub/reputation-engine/internal/infrastructure/persistence/postgres"
	redisinfra "github.com/makerhub/reputation-engine/internal/infrastructure/persistence/redis"
	"github.com/makerhub/reputation-engine/internal/infrastructure/scheduler"
	"github.com/makerhub/reputation-engine/internal/infrastructure/scheduler/jobs"
	httpapi "github.com/makerhub/reputation-engine/internal/interface/http"
	"github.com/makerhub/reputation-engine/pkg/circuitbreaker"
)

// ══════════════════════════════════════════════════════════════════════════════
// MAIN
// ══════════════════════════════════════════════════════════════════════════════

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
	// 1. CONFIGURATION
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. LOGGING
	// ─────────────────────────────────────────────────────────────────────────
	log := setupLogger(cfg)
	log.Info("starting reputation engine",
		"env", cfg.App.Environment,
		"version", cfg.App.Version,
		"debug", cfg.App.Debug,
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 3. POSTGRESQL
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
	// 4. MIGRATIONS
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("checking database migrations...")
	migrator := postgres.NewMigrator(dbConn)
	if err := migrator.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	log.Info("database schema is up to date")

	// ─────────────────────────────────────────────────────────────────────────
	// 5. REDIS (optional: caching, event fan-out, distributed locks)
	// ─────────────────────────────────────────────────────────────────────────
	var redisCache *redisinfra.Cache
	var leaderboardCache *redisinfra.LeaderboardCache
	var resultCache query.ResultCache

	if !cfg.Redis.Disabled {
		log.Info("connecting to Redis...")
		redisCfg := redisinfra.DefaultConfig()
		redisCfg.Host = cfg.Redis.Host
		redisCfg.Port = cfg.Redis.Port
		redisCfg.Password = cfg.Redis.Password
		redisCfg.DB = cfg.Redis.DB
		redisCfg.PoolSize = cfg.Redis.PoolSize
		redisCfg.MinIdleConns = cfg.Redis.MinIdleConns
		redisCfg.DialTimeout = cfg.Redis.DialTimeout
		redisCfg.ReadTimeout = cfg.Redis.ReadTimeout
		redisCfg.WriteTimeout = cfg.Redis.WriteTimeout

		redisCache, err = redisinfra.NewCache(redisCfg)
		if err != nil {
			log.Warn("failed to connect to Redis, caching disabled", "error", err)
			redisCache = nil
		} else {
			defer redisCache.Close()
			leaderboardCache = redisinfra.NewLeaderboardCache(redisCache)
			resultCache = redisCache
			log.Info("Redis connection established")
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 6. REPOSITORIES
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("initializing repositories...")
	actorRepo := postgres.NewActorRepository(dbConn)
	ledgerRepo := postgres.NewLedgerRepository(dbConn)
	alertRepo := postgres.NewAlertRepository(dbConn)
	leaderboardRepo := postgres.NewLeaderboardRepository(dbConn)

	// ─────────────────────────────────────────────────────────────────────────
	// 7. EVENT BUS & DISPATCHER
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("initializing event bus...")
	localBusConfig := messaging.DefaultInMemoryEventBusConfig()
	localBusConfig.Logger = log

	var eventBus shared.EventBus
	var closeBus func() error
	if redisCache != nil && cfg.Features.IsEnabled(config.FeatureEventsRedisBus, nil) {
		redisBus, err := messaging.NewRedisEventBus(messaging.RedisEventBusConfig{
			Client:         redisinfra.NewPubSubAdapter(redisCache),
			LocalBusConfig: localBusConfig,
			Logger:         log,
		})
		if err != nil {
			return fmt.Errorf("failed to start redis event bus: %w", err)
		}
		log.Info("event fan-out across instances enabled")
		eventBus, closeBus = redisBus, redisBus.Close
	} else {
		memBus := messaging.NewInMemoryEventBus(localBusConfig)
		eventBus, closeBus = memBus, memBus.Close
	}
	defer func() {
		log.Info("closing event bus...")
		_ = closeBus()
	}()

	dispatcher := messaging.NewDispatcher(messaging.DefaultDispatcherConfig(eventBus))
	dispatcher.Use(messaging.RecoveryMiddleware(log))
	dispatcher.Use(messaging.LoggingMiddleware(log))

	flaggedHandler := eventhandler.NewOnActorFlaggedHandler(leaderboardCacheOrNil(leaderboardCache), resultCache, log)
	if err := dispatcher.Register(shared.EventActorFlagged, "on_actor_flagged", flaggedHandler.Handle); err != nil {
		return fmt.Errorf("failed to register event handler: %w", err)
	}

	standingHandler := eventhandler.NewOnStandingChangedHandler(resultCache, log)
	for _, eventType := range standingHandler.EventTypes() {
		if err := dispatcher.Register(eventType, "on_standing_changed", standingHandler.Handle); err != nil {
			return fmt.Errorf("failed to register event handler: %w", err)
		}
	}

	if err := dispatcher.Start(); err != nil {
		return fmt.Errorf("failed to start dispatcher: %w", err)
	}
	defer func() { _ = dispatcher.Stop() }()

	// ─────────────────────────────────────────────────────────────────────────
	// 8. APPLICATION HANDLERS
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("initializing application handlers...")
	recordEventHandler := command.NewRecordEventHandler(
		actorRepo, ledgerRepo, alertRepo, nil, eventBus, nil, log,
	)
	backfillHandler := command.NewBackfillHandler(recordEventHandler)
	provisionHandler := command.NewProvisionActorHandler(actorRepo)
	reviewHandler := command.NewReviewAlertHandler(alertRepo)

	leaderboardQuery := query.NewGetLeaderboardHandler(leaderboardRepo, leaderboardCacheOrNil(leaderboardCache))
	standingQuery := query.NewGetActorStandingHandler(actorRepo, leaderboardCacheOrNil(leaderboardCache), resultCache)
	historyQuery := query.NewGetXPHistoryHandler(ledgerRepo)
	alertsQuery := query.NewListBotAlertsHandler(alertRepo)

	// ─────────────────────────────────────────────────────────────────────────
	// 9. SCHEDULER & BACKGROUND JOBS
	// ─────────────────────────────────────────────────────────────────────────
	var sched *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		log.Info("initializing scheduler...")
		schedCfg := scheduler.DefaultSchedulerConfig()
		schedCfg.Logger = log
		sched = scheduler.NewScheduler(schedCfg)

		cacheBreaker := circuitbreaker.CacheBreaker(func(name string, from, to circuitbreaker.State) {
			log.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		})

		recomputeCfg := jobs.DefaultRecomputeRanksConfig()
		recomputeCfg.Timeout = cfg.Scheduler.JobTimeout
		var recomputeJob jobs.Job = jobs.NewRecomputeRanksJob(
			leaderboardRepo, leaderboardCacheOrNil(leaderboardCache), eventBus, cacheBreaker, log, recomputeCfg,
		)
		if cfg.Scheduler.UseDistributedLock && redisCache != nil {
			recomputeJob = jobs.NewLockedJob(
				recomputeJob, redisCache, redisinfra.LockKey("recompute_ranks"), cfg.Scheduler.LockTTL, log,
			)
		}
		var recomputeSchedule scheduler.Schedule = scheduler.NewIntervalSchedule(cfg.Scheduler.RecomputeRanksInterval)
		if cfg.Scheduler.RecomputeRanksCron != "" {
			recomputeSchedule, err = scheduler.NewCronSchedule(cfg.Scheduler.RecomputeRanksCron)
			if err != nil {
				return fmt.Errorf("invalid SCHEDULER_RECOMPUTE_CRON: %w", err)
			}
		}
		if err := sched.Register(recomputeJob, recomputeSchedule); err != nil {
			return fmt.Errorf("failed to register recompute job: %w", err)
		}

		cohortJob := jobs.NewMarkFirstCohortJob(leaderboardRepo, log, jobs.DefaultMarkFirstCohortConfig())
		if err := sched.Register(cohortJob, scheduler.NewIntervalSchedule(cfg.Scheduler.FirstCohortInterval)); err != nil {
			return fmt.Errorf("failed to register first-cohort job: %w", err)
		}

		if cfg.Features.IsEnabled(config.FeatureJobsVerifyLedger, nil) {
			verifyJob := jobs.NewVerifyLedgerJob(ledgerRepo, eventBus, log, jobs.DefaultVerifyLedgerConfig())
			if err := sched.Register(verifyJob, scheduler.NewIntervalSchedule(cfg.Scheduler.VerifyLedgerInterval)); err != nil {
				return fmt.Errorf("failed to register verify-ledger job: %w", err)
			}
		}

		if err := sched.Start(ctx); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
		defer func() {
			log.Info("stopping scheduler...")
			_ = sched.Stop()
		}()
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 10. HTTP SERVER
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("initializing HTTP server...")

	healthCheckers := map[string]httpapi.HealthChecker{
		"postgres": dbConn.Ping,
	}
	if redisCache != nil {
		healthCheckers["redis"] = redisCache.Ping
	}

	serverCfg := httpapi.DefaultConfig()
	serverCfg.Host = cfg.HTTP.Host
	serverCfg.Port = cfg.HTTP.Port
	serverCfg.ReadTimeout = cfg.HTTP.ReadTimeout
	serverCfg.WriteTimeout = cfg.HTTP.WriteTimeout
	serverCfg.IdleTimeout = cfg.HTTP.IdleTimeout
	serverCfg.MaxBodyBytes = cfg.HTTP.MaxBodyBytes
	serverCfg.EnableCORS = cfg.HTTP.EnableCORS
	serverCfg.AllowedOrigins = cfg.HTTP.AllowedOrigins
	serverCfg.RateLimitPerMinute = cfg.HTTP.RateLimitPerMinute
	serverCfg.APIKeyHeader = cfg.HTTP.APIKeyHeader
	serverCfg.APIKeys = cfg.HTTP.APIKeys

	server := httpapi.NewServer(serverCfg, httpapi.Dependencies{
		RecordEventHandler:      recordEventHandler,
		BackfillHandler:         backfillHandler,
		ProvisionActorHandler:   provisionHandler,
		ReviewAlertHandler:      reviewHandler,
		GetActorStandingHandler: standingQuery,
		GetLeaderboardHandler:   leaderboardQuery,
		GetXPHistoryHandler:     historyQuery,
		ListBotAlertsHandler:    alertsQuery,
		Logger:                  log,
		HealthCheckers:          healthCheckers,
	})

	serverErrCh := server.StartAsync()
	log.Info("reputation engine is running", "address", server.Address())

	// ─────────────────────────────────────────────────────────────────────────
	// 11. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	select {
	case sig := <-sigCh:
		log.Info("received shutdown signal", "signal", sig.String())
	case err := <-serverErrCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
	case <-ctx.Done():
	}

	log.Info("starting graceful shutdown...", "timeout", cfg.App.ShutdownTimeout.String())
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("http server shutdown failed", "error", err)
	}

	log.Info("shutdown completed successfully")
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// setupLogger configures structured logging.
func setupLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Observability.LogLevel),
	}
	if cfg.App.Debug {
		opts.Level = slog.LevelDebug
	}

	var handler slog.Handler
	if cfg.Observability.LogFormat == "json" || cfg.IsProduction() {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	log := slog.New(handler)
	slog.SetDefault(log)

	return log
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// leaderboardCacheOrNil avoids handing out a typed nil behind the
// leaderboard.Cache interface when Redis is down.
func leaderboardCacheOrNil(c *redisinfra.LeaderboardCache) leaderboard.Cache {
	if c == nil {
		return nil
	}
	return c
}
