/**
 * @description
 * Entry point for the payments webhook service. Wires configuration, the
 * database pool, the optional Redis claim and RabbitMQ outbox relay, the
 * reconciliation scheduler and the HTTP router, then serves until signalled.
 */
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/Ced-Maker4352/luxe-mobile/internal/api"
	"github.com/Ced-Maker4352/luxe-mobile/internal/app"
	"github.com/Ced-Maker4352/luxe-mobile/internal/config"
	"github.com/Ced-Maker4352/luxe-mobile/internal/domain"
	"github.com/Ced-Maker4352/luxe-mobile/internal/store"
	"github.com/Ced-Maker4352/luxe-mobile/pkg/rabbitmq"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	if err := godotenv.Load(); err != nil {
		logger.Info("no .env file found; using environment variables")
	}

	cfg, err := config.LoadConfig(".")
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	if cfg.StripeWebhookSecret == "" {
		logger.Warn("STRIPE_WEBHOOK_SECRET is not set; webhook deliveries will be rejected with 500")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Error("unable to parse database URL", "error", err)
		os.Exit(1)
	}
	poolConfig.MaxConns = 20
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute
	// PgBouncer transaction pooling cannot hold prepared statements.
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Error("unable to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbpool.Close()
	logger.Info("database connection established")

	repository := store.NewPostgresRepository(dbpool)

	var inflight app.InflightGuard = app.NoopInflightGuard{}
	if cfg.RedisURL == "" {
		logger.Warn("redis url missing; in-flight delivery claim disabled", "env", "REDIS_URL")
	} else if redisOptions, parseErr := redis.ParseURL(cfg.RedisURL); parseErr != nil {
		logger.Warn("redis url parse failed; in-flight delivery claim disabled", "error", parseErr)
	} else {
		redisClient := redis.NewClient(redisOptions)
		pingCtx, cancelPing := context.WithTimeout(ctx, 5*time.Second)
		pingErr := redisClient.Ping(pingCtx).Err()
		cancelPing()
		if pingErr != nil {
			logger.Warn("redis ping failed; in-flight delivery claim disabled", "error", pingErr)
			redisClient.Close()
		} else {
			defer redisClient.Close()
			inflight = app.NewRedisInflightGuard(redisClient, cfg.RedisKeyPrefix, cfg.InflightLockTTL())
			logger.Info("redis connected")
		}
	}

	exchange := ""
	if cfg.RabbitMQURL == "" {
		logger.Warn("rabbitmq url missing; payment events will not be published", "env", "RABBITMQ_URL")
	} else {
		exchange = cfg.PaymentEventsExchange
		connect := func() (rabbitmq.Publisher, error) {
			producer, err := rabbitmq.NewEventProducer(cfg.RabbitMQURL, logger)
			if err != nil {
				return nil, err
			}
			return producer, nil
		}
		dispatcher := app.NewOutboxDispatcher(repository, connect, cfg.OutboxPollInterval(), logger)
		go dispatcher.Run(ctx)
		logger.Info("outbox dispatcher started", "exchange", exchange)
	}

	service := app.NewService(repository, domain.DefaultCatalog, inflight, exchange, logger)
	jobs := app.NewJobs(repository, exchange, cfg.ReconciliationGrace(), logger)

	scheduler := app.NewScheduler(jobs, logger, cfg.ReconciliationJobSchedule)
	if err := scheduler.Start(); err != nil {
		logger.Error("reconciliation scheduler not started", "error", err)
	}

	verifier := api.NewSignatureVerifier(cfg.SignatureTolerance())
	webhookHandler := api.NewWebhookHandler(service, verifier, cfg.StripeWebhookSecret, cfg.WebhookBodyLimitBytes, logger)

	var opsHandler *api.OpsHandler
	if cfg.OpsJWTSecret == "" {
		logger.Info("OPS_JWT_SECRET not set; operator API disabled")
	} else {
		opsHandler = api.NewOpsHandler(service, jobs, logger)
	}

	router := api.NewRouter(api.RouterConfig{
		Webhook:      webhookHandler,
		Ops:          opsHandler,
		OpsJWTSecret: cfg.OpsJWTSecret,
		Health:       repository,
		Logger:       logger,
	})

	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.ServerPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("starting server", "port", cfg.ServerPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	<-sigCh
	logger.Info("shutdown signal received, gracefully shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", "error", err)
	}
	<-scheduler.Stop().Done()
	cancel()

	logger.Info("server stopped")
}
