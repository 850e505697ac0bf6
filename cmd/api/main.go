package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/sla-service/internal/api/http"
	"github.com/spec-kit/sla-service/internal/api/http/handlers"
	"github.com/spec-kit/sla-service/internal/auth"
	"github.com/spec-kit/sla-service/internal/cache"
	"github.com/spec-kit/sla-service/internal/config"
	"github.com/spec-kit/sla-service/internal/events"
	"github.com/spec-kit/sla-service/internal/notify"
	"github.com/spec-kit/sla-service/internal/observability"
	"github.com/spec-kit/sla-service/internal/persistence"
	"github.com/spec-kit/sla-service/internal/repository"
	"github.com/spec-kit/sla-service/internal/repository/memory"
	"github.com/spec-kit/sla-service/internal/service"
	"github.com/spec-kit/sla-service/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger, cfg.App)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing := observability.SetupTracing(ctx, cfg.Telemetry, cfg.App.Name, cfg.App.Version, logger)

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	var store repository.Store
	if pg.Enabled() {
		if cfg.Postgres.RunMigrations {
			if err := persistence.RunMigrations(ctx, pg.PoolHandle(), cfg.Postgres.MigrationsDir, logger); err != nil {
				logger.Fatal("failed to run migrations", zap.Error(err))
			}
		}
		store = repository.NewPostgresStore(pg.PoolHandle())
	} else {
		store = memory.NewStore(nil)
	}

	redis := persistence.NewRedis(ctx, cfg.Redis, logger)
	defer redis.Close()

	var snapshots cache.SnapshotCache = cache.Noop{}
	if redis != nil {
		snapshots = cache.NewRedisSnapshotCache(redis.Client, cfg.App.Name+":reports:")
	}

	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher(logger)

	var sender notify.Sender = notify.NewLogSender(logger)
	if cfg.Notification.WebhookURL != "" {
		sender = notify.NewWebhookSender(cfg.Notification.WebhookURL, time.Duration(cfg.Notification.TimeoutSeconds)*time.Second)
	}
	sender = notify.NewResilientSender(sender, notify.ResilientOptions{
		RatePerSecond:    cfg.Notification.RatePerSecond,
		Burst:            cfg.Notification.Burst,
		FailureThreshold: uint32(max(cfg.Notification.BreakerFailures, 0)),
		OpenTimeout:      time.Duration(cfg.Notification.BreakerOpenSeconds) * time.Second,
		HalfOpenRequests: uint32(max(cfg.Notification.BreakerHalfOpenReqs, 0)),
	}, logger)
	notifications := service.NewNotificationService(dispatcher, sender, metrics, logger).
		WithTimeout(time.Duration(cfg.Notification.TimeoutSeconds) * time.Second)
	worker.StartNotificationWorker(notifications)

	slaService := service.NewSLAService(service.SLADependencies{
		Store:      store,
		Targets:    cfg.SLA.Targets,
		Dispatcher: dispatcher,
		Logger:     logger,
	})
	reportService := service.NewReportService(service.ReportDependencies{
		Store:    store,
		Cache:    snapshots,
		CacheTTL: cfg.SLA.SnapshotTTL(),
		Metrics:  metrics,
		Logger:   logger,
	})
	assignmentService := service.NewAssignmentService(service.AssignmentDependencies{
		Store:      store,
		Dispatcher: dispatcher,
		Metrics:    metrics,
		Logger:     logger,
	})
	escalationService := service.NewEscalationService(service.EscalationDependencies{
		Store:           store,
		Assigner:        assignmentService,
		Dispatcher:      dispatcher,
		Metrics:         metrics,
		Logger:          logger,
		BreachRecipient: cfg.Escalation.BreachRecipient,
		AtRiskRecipient: cfg.Escalation.AtRiskRecipient,
	})
	timerService := service.NewTimerService(service.TimerDependencies{
		Store:   store,
		Metrics: metrics,
		Logger:  logger,
	})

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.AccessTokenTTLMinutes)
	authMiddleware := auth.NewAuthMiddleware(tokens, store.Repos().Workers)

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ErrorHandler: httptransport.ErrorHandler,
	})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis),
		SLA:            handlers.NewSLAHandler(slaService),
		Reports:        handlers.NewReportsHandler(reportService),
		Escalations:    handlers.NewEscalationsHandler(escalationService),
		Assignments:    handlers.NewAssignmentsHandler(assignmentService),
		Timers:         handlers.NewTimersHandler(timerService),
		Workers:        handlers.NewWorkersHandler(service.NewWorkerService(store, logger)),
		Audit:          handlers.NewAuditHandler(service.NewAuditService(store, logger)),
		Metrics:        metrics,
		AuthMiddleware: authMiddleware,
	})

	sweeper := worker.NewSweepWorker(escalationService, cfg.Escalation.SweepInterval(), logger)
	sweeper.Start(ctx)

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	sweeper.Stop()
	_ = app.ShutdownWithTimeout(10 * time.Second)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Warn("tracing shutdown failed", zap.Error(err))
	}
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
