package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/crm-engine/internal/api/http"
	"github.com/spec-kit/crm-engine/internal/api/http/handlers"
	"github.com/spec-kit/crm-engine/internal/auth"
	"github.com/spec-kit/crm-engine/internal/config"
	"github.com/spec-kit/crm-engine/internal/domain"
	"github.com/spec-kit/crm-engine/internal/events"
	"github.com/spec-kit/crm-engine/internal/observability"
	"github.com/spec-kit/crm-engine/internal/persistence"
	"github.com/spec-kit/crm-engine/internal/repository"
	"github.com/spec-kit/crm-engine/internal/service"
	"github.com/spec-kit/crm-engine/internal/sla"
	"github.com/spec-kit/crm-engine/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher()

	pool := pg.PoolHandle()
	ticketRepo := repository.NewTicketRepository(pool)
	queueRepo := repository.NewQueueRepository(pool)
	agentRepo := repository.NewAgentRepository(pool)
	ruleRepo := repository.NewDistributionRuleRepository(pool)
	messageRepo := repository.NewTicketMessageRepository(pool)
	historyRepo := repository.NewTicketHistoryRepository(pool)
	assignmentStore := repository.NewAssignmentStore(pool)

	policyRepo := repository.NewCachedSLAPolicyRepository(
		repository.NewSLAPolicyRepository(pool),
		redis.ClientHandle(),
		cfg.SLA.PolicyCacheTTL,
		logger,
	)

	calculator := sla.NewCalculator(sla.Config{
		AtRiskWindow:    cfg.SLA.AtRiskWindow,
		FallbackBudgets: slaBudgets(cfg.SLA),
	})

	var locker service.QueueLocker
	if redis.ClientHandle() != nil {
		locker = service.NewRedisQueueLocker(redis.ClientHandle(), cfg.Distribution.LockTTL)
	} else {
		locker = service.NewLocalQueueLocker()
	}

	assignmentService := service.NewAssignmentService(cfg.Distribution, service.AssignmentDependencies{
		TicketRepo:  ticketRepo,
		AgentRepo:   agentRepo,
		RuleRepo:    ruleRepo,
		Store:       assignmentStore,
		HistoryRepo: historyRepo,
		Locker:      locker,
		Dispatcher:  dispatcher,
		Metrics:     metrics,
		Logger:      logger,
	})
	ticketService := service.NewTicketService(service.TicketDependencies{
		TicketRepo:  ticketRepo,
		QueueRepo:   queueRepo,
		PolicyRepo:  policyRepo,
		MessageRepo: messageRepo,
		HistoryRepo: historyRepo,
		Assignment:  assignmentService,
		Calculator:  calculator,
		Dispatcher:  dispatcher,
		Metrics:     metrics,
		Logger:      logger,
	})
	collectionService := service.NewCollectionService(cfg.Collection, service.CollectionDependencies{
		TicketRepo:  ticketRepo,
		QueueRepo:   queueRepo,
		MessageRepo: messageRepo,
		HistoryRepo: historyRepo,
		Dispatcher:  dispatcher,
		Logger:      logger,
	})
	adminService := service.NewDistributionAdminService(queueRepo, agentRepo, ruleRepo, logger)
	notificationService := service.NewNotificationService(dispatcher, logger, cfg.Notification)

	worker.StartNotificationWorker(notificationService)
	slaMonitor := worker.NewSLAMonitor(ticketRepo, dispatcher, logger, cfg.SLA.SweepInterval)
	go slaMonitor.Run(ctx)

	tokenManager := auth.NewTokenManager(cfg.Auth.JWTSecret, 60)
	authMiddleware := auth.NewAuthMiddleware(tokenManager, agentRepo)

	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis),
		Tickets:        handlers.NewTicketsHandler(ticketService, assignmentService),
		Collection:     handlers.NewCollectionHandler(collectionService),
		Distribution:   handlers.NewDistributionHandler(adminService),
		AuthMiddleware: authMiddleware,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)
	cancel()

	_ = app.Shutdown()
}

func slaBudgets(cfg config.SLAConfig) map[domain.TicketPriority]sla.Budget {
	budgets := make(map[domain.TicketPriority]sla.Budget, len(cfg.DefaultBudgets))
	for priority, budget := range cfg.DefaultBudgets {
		budgets[domain.TicketPriority(priority)] = sla.Budget{
			FirstResponse: budget.FirstResponse,
			Resolution:    budget.Resolution,
		}
	}
	return budgets
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
