package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/kursadbilgin/kitchen-engine/internal/catalog"
	"github.com/kursadbilgin/kitchen-engine/internal/classifier"
	"github.com/kursadbilgin/kitchen-engine/internal/config"
	"github.com/kursadbilgin/kitchen-engine/internal/handler"
	"github.com/kursadbilgin/kitchen-engine/internal/identity"
	"github.com/kursadbilgin/kitchen-engine/internal/infra/postgresql"
	"github.com/kursadbilgin/kitchen-engine/internal/infra/postgresql/migrations"
	infraredis "github.com/kursadbilgin/kitchen-engine/internal/infra/redis"
	"github.com/kursadbilgin/kitchen-engine/internal/observability"
	"github.com/kursadbilgin/kitchen-engine/internal/queue"
	"github.com/kursadbilgin/kitchen-engine/internal/repository"
	"github.com/kursadbilgin/kitchen-engine/internal/service"
	"github.com/kursadbilgin/kitchen-engine/internal/transport"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config", zap.Error(err))
	}

	logger, err := observability.NewLogger("api", cfg.LogLevel)
	if err != nil {
		log.Fatal("failed to initialize logger", zap.Error(err))
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := postgresql.NewPostgres(ctx, cfg.DatabaseDSN, postgresql.DefaultPoolOptions(), logger)
	if err != nil {
		logger.Fatal("postgres initialization failed", zap.Error(err))
	}

	if err := migrations.Migrate(db); err != nil {
		logger.Fatal("database migrations failed", zap.Error(err))
	}

	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatal("postgres underlying db init failed", zap.Error(err))
	}
	defer sqlDB.Close()

	rdb, err := infraredis.NewRedis(cfg.RedisURL)
	if err != nil {
		logger.Fatal("redis initialization failed", zap.Error(err))
	}
	defer rdb.Close()

	mq, err := queue.NewRabbitMQ(cfg.RabbitMQURL)
	if err != nil {
		logger.Fatal("rabbitmq initialization failed", zap.Error(err))
	}
	defer mq.Close()

	publisher := queue.NewRabbitMQPublisher(mq)
	defer publisher.Close()

	locker, err := infraredis.NewRedisBatchLocker(rdb, cfg.BatchLockTTL)
	if err != nil {
		logger.Fatal("batch locker initialization failed", zap.Error(err))
	}

	roles, err := identity.NewHTTPProvider(cfg.IdentityURL, logger)
	if err != nil {
		logger.Fatal("identity provider initialization failed", zap.Error(err))
	}

	metrics := observability.NewMetrics()
	storeOpts := service.StoreOptions{
		Timeout: cfg.StoreTimeout,
		Retries: cfg.StoreRetries,
	}

	processCatalog, err := service.NewCatalog(repository.NewGormProcessTypeRepo(db), storeOpts, logger)
	if err != nil {
		logger.Fatal("catalog initialization failed", zap.Error(err))
	}
	if err := seedCatalog(ctx, processCatalog, cfg.CatalogSeedFile, logger); err != nil {
		logger.Fatal("catalog seed failed", zap.Error(err))
	}

	instances := repository.NewGormInstanceRepo(db)
	timeline, err := service.NewTimeline(instances, storeOpts, logger)
	if err != nil {
		logger.Fatal("timeline initialization failed", zap.Error(err))
	}

	engine, err := service.NewEngine(service.EngineDeps{
		Batches:   repository.NewGormBatchRepo(db),
		Instances: instances,
		Catalog:   processCatalog,
		Timeline:  timeline,
		Locker:    locker,
		Roles:     roles,
		Publisher: publisher,
	}, service.EngineOptions{
		Store:  storeOpts,
		Policy: classifier.Policy{ShiftWidthFactor: cfg.ShiftWidthFactor},
	}, logger)
	if err != nil {
		logger.Fatal("engine initialization failed", zap.Error(err))
	}
	engine.SetMetrics(metrics)

	batchHandler, err := handler.NewBatchHandler(engine, processCatalog, cfg.ClockTickInterval, logger)
	if err != nil {
		logger.Fatal("batch handler initialization failed", zap.Error(err))
	}

	app := fiber.New(fiber.Config{
		AppName:               "kitchen-engine",
		DisableStartupMessage: true,
		ErrorHandler:          transport.ErrorHandler(logger),
	})
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(handler.RequestContext())
	app.Use(metrics.HTTPMiddleware())

	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))
	handler.RegisterHealthRoutes(app, map[string]handler.HealthCheck{
		"postgres": sqlDB.PingContext,
		"redis": func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		},
		"rabbitmq": mq.Ping,
	})
	handler.RegisterBatchRoutes(app, batchHandler)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("kitchen-engine api started", zap.Int("port", cfg.APIPort))
		if err := app.Listen(fmt.Sprintf(":%d", cfg.APIPort)); err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down api")
		return app.ShutdownWithTimeout(shutdownTimeout)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("api stopped with error", zap.Error(err))
	}
}

func seedCatalog(ctx context.Context, c *service.Catalog, path string, logger *zap.Logger) error {
	if path == "" {
		return nil
	}

	types, err := catalog.LoadSeed(path)
	if err != nil {
		return err
	}
	n, err := c.Seed(ctx, types)
	if err != nil {
		return err
	}
	logger.Info("process catalog seeded", zap.String("file", path), zap.Int("processTypes", n))
	return nil
}
