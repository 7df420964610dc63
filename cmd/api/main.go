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

	httptransport "github.com/atlasdesk/ticketd/internal/api/http"
	"github.com/atlasdesk/ticketd/internal/api/http/handlers"
	"github.com/atlasdesk/ticketd/internal/auth"
	"github.com/atlasdesk/ticketd/internal/cache"
	"github.com/atlasdesk/ticketd/internal/config"
	"github.com/atlasdesk/ticketd/internal/events"
	"github.com/atlasdesk/ticketd/internal/observability"
	"github.com/atlasdesk/ticketd/internal/outbox"
	"github.com/atlasdesk/ticketd/internal/persistence"
	"github.com/atlasdesk/ticketd/internal/pipeline"
	"github.com/atlasdesk/ticketd/internal/ratelimit"
	"github.com/atlasdesk/ticketd/internal/repository"
	"github.com/atlasdesk/ticketd/internal/service"
	"github.com/atlasdesk/ticketd/internal/txn"
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
	metrics := observability.NewMetrics()

	ticketRepo := repository.NewTicketRepository(pool)
	messageRepo := repository.NewTicketMessageRepository(pool)
	outboxRepo := repository.NewOutboxRepository(pool)
	idempotencyRepo := repository.NewIdempotencyRepository(pool)

	coordinator := txn.NewCoordinator(
		repository.NewPgxTxManager(pool),
		logger,
		metrics,
		cfg.Pipeline.MaxAttempts,
		cfg.Pipeline.BaseDelay(),
	)

	limiter := ratelimit.NewLimiter(redis.Client,
		ratelimit.Class{
			Name:   service.ClassTicketSubmit,
			Max:    cfg.RateLimit.SubmitMax,
			Window: time.Duration(cfg.RateLimit.SubmitWindowSeconds) * time.Second,
		},
		ratelimit.Class{
			Name:   service.ClassTicketWrite,
			Max:    cfg.RateLimit.WriteMax,
			Window: time.Duration(cfg.RateLimit.WriteWindowSeconds) * time.Second,
		},
	)

	ticketCache := cache.NewTicketCache(redis.Client, cfg.Cache.TTL())

	bus := pipeline.NewBus(pipeline.BusDeps{
		Logger:      logger,
		Metrics:     metrics,
		Coordinator: coordinator,
		Outbox:      outboxRepo,
		Idempotency: idempotencyRepo,
		Limiter:     limiter,
		Cache:       ticketCache,
		Config:      pipeline.Config{IdempotencyTTL: cfg.Idempotency.TTL()},
	})

	commandService := service.NewTicketCommandService(ticketRepo, messageRepo)
	commandService.RegisterHandlers(bus)

	queryService := service.NewTicketQueryService(ticketRepo, messageRepo, ticketCache, logger)

	dispatcher := events.NewInMemoryDispatcher()
	cache.NewInvalidationSubscriber(ticketCache, logger).RegisterHandlers(dispatcher)
	service.NewNotificationService(logger).RegisterHandlers(dispatcher)

	relay := outbox.NewRelay(outboxRepo, dispatcher, logger, metrics,
		cfg.Outbox.PollInterval(), cfg.Outbox.BatchSize, cfg.Outbox.RetryCeiling)
	go relay.Run(ctx)

	tokenManager := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)
	authMiddleware := auth.NewAuthMiddleware(tokenManager)

	app := fiber.New()
	httptransport.RegisterMiddlewares(app, logger, cfg.App.RequestTimeout())
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis, metrics),
		Tickets:        handlers.NewTicketsHandler(bus, queryService),
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
