package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/propagentic/maintenance-service/internal/api/http"
	"github.com/propagentic/maintenance-service/internal/api/http/handlers"
	"github.com/propagentic/maintenance-service/internal/auth"
	"github.com/propagentic/maintenance-service/internal/classify"
	"github.com/propagentic/maintenance-service/internal/config"
	"github.com/propagentic/maintenance-service/internal/events"
	"github.com/propagentic/maintenance-service/internal/observability"
	"github.com/propagentic/maintenance-service/internal/persistence"
	"github.com/propagentic/maintenance-service/internal/provider"
	"github.com/propagentic/maintenance-service/internal/repository"
	"github.com/propagentic/maintenance-service/internal/service"
	"github.com/propagentic/maintenance-service/internal/worker"
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

	pool := pg.PoolHandle()
	ticketRepo := repository.NewTicketRepository(pool)
	userRepo := repository.NewUserRepository(pool)
	propertyRepo := repository.NewPropertyRepository(pool)
	historyRepo := repository.NewTicketHistoryRepository(pool)
	notificationRepo := repository.NewNotificationRepository(pool)
	pushTokenRepo := repository.NewPushTokenRepository(redis.Client)

	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher()
	tokenManager := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)

	var classifier classify.Classifier
	if httpClassifier := classify.NewHTTPClassifier(cfg.Classifier, logger); httpClassifier != nil {
		classifier = httpClassifier
	}

	accountService := service.NewAccountService(service.AccountDependencies{
		UserRepo:   userRepo,
		Tokens:     tokenManager,
		BcryptCost: cfg.Auth.BcryptCost,
		Logger:     logger,
	})
	ticketService := service.NewTicketService(service.TicketDependencies{
		TicketRepo:   ticketRepo,
		PropertyRepo: propertyRepo,
		HistoryRepo:  historyRepo,
		Dispatcher:   dispatcher,
		Logger:       logger,
	})
	classificationService := service.NewClassificationService(service.ClassificationDependencies{
		TicketRepo:   ticketRepo,
		PropertyRepo: propertyRepo,
		HistoryRepo:  historyRepo,
		Classifier:   classifier,
		Dispatcher:   dispatcher,
		Metrics:      metrics,
		Logger:       logger,
		MaxAttempts:  cfg.Classifier.MaxAttempts,
	})
	matchingService := service.NewMatchingService(service.MatchingDependencies{
		TicketRepo:   ticketRepo,
		UserRepo:     userRepo,
		PropertyRepo: propertyRepo,
		HistoryRepo:  historyRepo,
		Dispatcher:   dispatcher,
		Metrics:      metrics,
		Logger:       logger,
	})
	assignmentService := service.NewAssignmentService(service.AssignmentDependencies{
		TicketRepo:   ticketRepo,
		UserRepo:     userRepo,
		PropertyRepo: propertyRepo,
		HistoryRepo:  historyRepo,
		Dispatcher:   dispatcher,
		Metrics:      metrics,
		Logger:       logger,
	})
	escalationService := service.NewEscalationService(service.EscalationDependencies{
		TicketRepo:   ticketRepo,
		PropertyRepo: propertyRepo,
		HistoryRepo:  historyRepo,
		Dispatcher:   dispatcher,
		Metrics:      metrics,
		Logger:       logger,
	})
	deliveryService := service.NewDeliveryService(service.DeliveryDependencies{
		UserRepo:         userRepo,
		NotificationRepo: notificationRepo,
		PushTokenRepo:    pushTokenRepo,
		EmailSender:      provider.NewEmailSender(cfg.Providers),
		SMSSender:        provider.NewSMSSender(cfg.Providers),
		PushSender:       provider.NewPushSender(cfg.Providers),
		Metrics:          metrics,
		Logger:           logger,
	})
	notificationService := service.NewNotificationService(service.NotificationDependencies{
		NotificationRepo: notificationRepo,
		UserRepo:         userRepo,
		Delivery:         deliveryService,
		Dispatcher:       dispatcher,
		Logger:           logger,
	})

	classificationService.RegisterHandlers()
	matchingService.RegisterHandlers()
	notificationService.RegisterHandlers()

	worker.NewEscalationWorker(escalationService, redis.Client, cfg.Escalation, logger).Start(ctx)
	worker.NewCleanupWorker(notificationRepo, cfg.Cleanup, logger).Start(ctx)

	authMiddleware := auth.NewAuthMiddleware(tokenManager, userRepo)

	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis),
		Users:          handlers.NewUsersHandler(accountService),
		Tickets:        handlers.NewTicketsHandler(ticketService, assignmentService, escalationService),
		Notifications:  handlers.NewNotificationsHandler(notificationService, pushTokenRepo),
		Admin:          handlers.NewAdminHandler(escalationService, metrics),
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

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
