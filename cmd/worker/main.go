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
	"github.com/kursadbilgin/kitchen-engine/internal/config"
	"github.com/kursadbilgin/kitchen-engine/internal/handler"
	"github.com/kursadbilgin/kitchen-engine/internal/infra/postgresql"
	"github.com/kursadbilgin/kitchen-engine/internal/infra/postgresql/migrations"
	"github.com/kursadbilgin/kitchen-engine/internal/observability"
	"github.com/kursadbilgin/kitchen-engine/internal/queue"
	"github.com/kursadbilgin/kitchen-engine/internal/repository"
	"github.com/kursadbilgin/kitchen-engine/internal/service"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config", zap.Error(err))
	}

	logger, err := observability.NewLogger("worker", cfg.LogLevel)
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

	mq, err := queue.NewRabbitMQ(cfg.RabbitMQURL)
	if err != nil {
		logger.Fatal("rabbitmq initialization failed", zap.Error(err))
	}
	defer mq.Close()

	consumer := queue.NewRabbitMQConsumer(mq, cfg.WorkerConcurrency, logger)
	defer consumer.Close()

	metrics := observability.NewMetrics()
	recorder, err := service.NewEventRecorder(
		repository.NewGormEventRepo(db),
		consumer,
		cfg.WorkerConcurrency,
		service.StoreOptions{Timeout: cfg.StoreTimeout, Retries: cfg.StoreRetries},
		logger,
	)
	if err != nil {
		logger.Fatal("event recorder initialization failed", zap.Error(err))
	}
	recorder.SetMetrics(metrics)

	// The worker only serves probes and metrics.
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))
	handler.RegisterHealthRoutes(app, map[string]handler.HealthCheck{
		"postgres": sqlDB.PingContext,
		"rabbitmq": mq.Ping,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("kitchen-engine worker started", zap.Int("concurrency", cfg.WorkerConcurrency))
		return recorder.Start(gctx)
	})
	g.Go(func() error {
		if err := app.Listen(fmt.Sprintf(":%d", cfg.APIPort)); err != nil {
			return fmt.Errorf("probe server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		return app.ShutdownWithTimeout(shutdownTimeout)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker stopped with error", zap.Error(err))
		return
	}
	logger.Info("worker stopped")
}
