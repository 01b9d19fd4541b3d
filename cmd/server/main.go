package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/redis/go-redis/v9"

	"paycore/internal/app"
	"paycore/internal/config"
	"paycore/internal/events"
	"paycore/internal/gateway"
	"paycore/internal/handler"
	"paycore/internal/lock"
	"paycore/internal/logging"
	internalRedis "paycore/internal/redis"
	"paycore/internal/repository"
	"paycore/internal/repository/memory"
	"paycore/internal/repository/postgres"
	"paycore/internal/service"
)

func main() {
	// Load configuration.
	cfg := config.Load()
	logger := logging.New(cfg.Log.Level)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", "error", err)
		os.Exit(1)
	}
	logger.Info("server exited")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Initialize New Relic FIRST (before database so we can instrument DB).
	var nrApp *newrelic.Application
	if cfg.NewRelic.Enabled && cfg.NewRelic.LicenseKey != "" {
		var err error
		nrApp, err = newrelic.NewApplication(
			newrelic.ConfigAppName(cfg.NewRelic.AppName),
			newrelic.ConfigLicense(cfg.NewRelic.LicenseKey),
			newrelic.ConfigDistributedTracerEnabled(true),
			newrelic.ConfigAppLogForwardingEnabled(true),
		)
		if err != nil {
			logger.Warn("failed to initialize New Relic", "error", err)
		} else {
			logger.Info("New Relic enabled", "app", cfg.NewRelic.AppName)
			defer nrApp.Shutdown(5 * time.Second)
		}
	}

	ledger, closeLedger, err := openLedger(ctx, cfg, nrApp, logger)
	if err != nil {
		return err
	}
	defer closeLedger()

	var redisClient *redis.Client
	if cfg.Locking.Backend == "redis" || cfg.Events.HasSink("redis") {
		redisClient, err = app.NewRedisClient(ctx, cfg.Redis, nrApp)
		if err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
		defer redisClient.Close()
		logger.Info("connected to redis", "addr", cfg.Redis.Addr)
	}

	publisher, closePublisher, err := buildPublisher(cfg, redisClient, logger)
	if err != nil {
		return err
	}
	defer closePublisher()

	deps := service.Dependencies{
		Ledger:    ledger,
		Locker:    buildLocker(cfg, redisClient),
		Gateway:   gateway.NewSimulated(cfg.Gateway.AuthorizationLimit),
		Publisher: publisher,
		Logger:    logger,
		Features:  cfg.Features,
		Policy:    cfg.Policy,
		Scheduler: cfg.Scheduler,
		LockWait:  cfg.Locking.Wait,
	}
	if redisClient != nil {
		deps.Velocity = internalRedis.NewVelocityStore(redisClient)
		deps.Cache = internalRedis.NewCacheStore(redisClient)
	}
	engine := service.NewEngine(deps)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      newRouter(engine, redisClient, nrApp, cfg),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	runCtx, stopRun := context.WithCancel(context.Background())
	defer stopRun()

	var scheduler *service.Scheduler
	if cfg.Scheduler.Enabled && cfg.Features.RecurringPayments {
		scheduler = service.NewScheduler(engine.Recurring, cfg.Scheduler, logger)
		scheduler.Start(runCtx)
	}

	// Start server in goroutine.
	serverErr := make(chan error, 1)
	go func() {
		logger.Info("starting server", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		logger.Info("shutting down server", "signal", sig.String())
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)
	}

	if scheduler != nil {
		scheduler.Stop()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}

// openLedger selects the storage backend. The returned close func is never nil.
func openLedger(ctx context.Context, cfg *config.Config, nrApp *newrelic.Application, logger *slog.Logger) (repository.Ledger, func(), error) {
	switch cfg.Storage.Backend {
	case "postgres":
		db, err := app.NewDatabase(ctx, cfg.Database, nrApp)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to database: %w", err)
		}
		logger.Info("connected to PostgreSQL", "database", cfg.Database.DBName)
		return postgres.NewLedger(db), func() { db.Close() }, nil
	case "memory", "":
		logger.Warn("using in-memory ledger; state is lost on restart")
		return memory.NewStore(), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

func buildLocker(cfg *config.Config, redisClient *redis.Client) lock.Locker {
	if cfg.Locking.Backend == "redis" && redisClient != nil {
		return internalRedis.NewLockStore(redisClient, cfg.Locking.TTL, 50*time.Millisecond)
	}
	return lock.NewKeyedMutex()
}

// buildPublisher fans lifecycle events out to every configured sink.
func buildPublisher(cfg *config.Config, redisClient *redis.Client, logger *slog.Logger) (events.Publisher, func(), error) {
	var sinks []events.Publisher
	closeFn := func() {}

	if cfg.Events.HasSink("log") {
		sinks = append(sinks, events.NewLogPublisher(logger))
	}
	if cfg.Events.HasSink("redis") && redisClient != nil {
		sinks = append(sinks, internalRedis.NewStreamPublisher(redisClient, cfg.Events.Stream))
	}
	if cfg.Events.HasSink("kafka") {
		producer, err := events.NewKafkaProducer(cfg.Kafka.Brokers, cfg.Kafka.ClientID)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to kafka: %w", err)
		}
		kafka := events.NewKafkaPublisher(producer, cfg.Kafka.Topic)
		sinks = append(sinks, kafka)
		closeFn = func() {
			if err := kafka.Close(); err != nil {
				logger.Warn("failed to close kafka producer", "error", err)
			}
		}
		logger.Info("publishing events to kafka", "topic", cfg.Kafka.Topic, "brokers", cfg.Kafka.Brokers)
	}

	switch len(sinks) {
	case 0:
		return events.Discard{}, closeFn, nil
	case 1:
		return sinks[0], closeFn, nil
	default:
		return events.NewMultiPublisher(sinks...), closeFn, nil
	}
}

// newRouter wires the handlers over the engine and returns the HTTP router.
func newRouter(engine *service.Engine, redisClient *redis.Client, nrApp *newrelic.Application, cfg *config.Config) http.Handler {
	return app.NewRouter(app.RouterDeps{
		TransactionHandler: handler.NewTransactionHandler(engine.Payments, engine.Summary),
		SettlementHandler:  handler.NewSettlementHandler(engine.Settlement),
		RefundHandler:      handler.NewRefundHandler(engine.Refunds),
		DisputeHandler:     handler.NewDisputeHandler(engine.Disputes),
		InvoiceHandler:     handler.NewInvoiceHandler(engine.Reconciliation),
		RecurringHandler:   handler.NewRecurringHandler(engine.Recurring),
		CustomerHandler:    handler.NewCustomerHandler(engine.Summary),
		RedisClient:        redisClient,
		NewRelicApp:        nrApp,
		AllowedOrigins:     cfg.Server.AllowedOrigins,
	})
}
