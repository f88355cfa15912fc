package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/kevin07696/gateway-sync/internal/adapters/database"
	"github.com/kevin07696/gateway-sync/internal/adapters/gateway"
	"github.com/kevin07696/gateway-sync/internal/adapters/postgres"
	"github.com/kevin07696/gateway-sync/internal/adapters/secrets"
	"github.com/kevin07696/gateway-sync/internal/auth"
	"github.com/kevin07696/gateway-sync/internal/config"
	cronHandler "github.com/kevin07696/gateway-sync/internal/handlers/cron"
	controlHandler "github.com/kevin07696/gateway-sync/internal/handlers/control"
	webhookHandler "github.com/kevin07696/gateway-sync/internal/handlers/webhook"
	"github.com/kevin07696/gateway-sync/internal/services/gatewaysync"
	"github.com/kevin07696/gateway-sync/internal/services/inbound"
	"github.com/kevin07696/gateway-sync/internal/services/sweeper"
	webhookService "github.com/kevin07696/gateway-sync/internal/services/webhook"
	pkghttp "github.com/kevin07696/gateway-sync/pkg/http"
	httpmw "github.com/kevin07696/gateway-sync/pkg/middleware"
	"github.com/kevin07696/gateway-sync/pkg/observability"
	"github.com/kevin07696/gateway-sync/pkg/resilience"
	"github.com/kevin07696/gateway-sync/pkg/resourcemgmt"
	"github.com/kevin07696/gateway-sync/pkg/shutdown"
	"github.com/kevin07696/gateway-sync/pkg/timeutil"
)

const version = "0.1.0"

func main() {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger := initLogger(cfg.Logger)
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting gateway sync engine",
		zap.String("version", version),
		zap.String("environment", cfg.Server.Environment),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database connection pool
	dbCfg := database.DefaultPostgreSQLConfig(cfg.Database.ConnectionString())
	dbCfg.MaxConns = cfg.Database.MaxConns
	dbCfg.MinConns = cfg.Database.MinConns
	dbAdapter, err := database.NewPostgreSQLAdapter(ctx, dbCfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	dbAdapter.StartPoolMonitoring(ctx, 30*time.Second)
	db := postgres.NewDBExecutor(dbAdapter.Pool())

	// Secret references in gateway and client webhook rows
	secretStore, err := initSecretStore(ctx, cfg.Secrets, logger)
	if err != nil {
		logger.Fatal("Failed to initialize secret store", zap.Error(err))
	}
	resolver := secrets.NewResolver(secretStore)

	// Repositories
	queue := postgres.NewSyncQueueRepository(db)
	stats := postgres.NewStatsRepository(db)
	txns := postgres.NewTransactionRepository(db)
	syncLogs := postgres.NewSyncLogRepository(db)
	webhookLogs := postgres.NewWebhookLogRepository(db)
	gateways := postgres.NewGatewayConfigRepository(db, resolver)
	clientWebhooks := postgres.NewClientWebhookRepository(db, resolver)

	clock := timeutil.RealClock{}
	timeouts := resilience.DefaultTimeoutConfig()
	timeouts.Shutdown = cfg.Engine.ShutdownTimeout

	// Outbound HTTP
	gatewayClient := gateway.NewClient(
		pkghttp.NewHTTPClient(pkghttp.GatewayClientConfig(), timeouts.Gateway),
		syncLogs,
		gateway.DefaultCircuitBreakerConfig(),
		clock,
		logger,
	)
	webhookSvc := webhookService.NewWebhookDeliveryService(
		clientWebhooks,
		pkghttp.NewHTTPClient(pkghttp.WebhookClientConfig(), timeouts.WebhookDelivery),
		timeouts,
		clock,
		logger,
	)

	// Sync engine
	processor := gatewaysync.NewProcessor(txns, gateways, gatewayClient, syncLogs, webhookSvc, clock, logger)
	dispatcher := gatewaysync.NewDispatcher(queue, processor, gatewaysync.DispatcherConfig{
		Interval:  cfg.Engine.DispatchInterval,
		BatchSize: cfg.Engine.BatchSize,
		Workers:   cfg.Engine.Workers,
	}, timeouts, clock, logger)
	syncSvc := gatewaysync.NewService(queue, stats, syncLogs, gateways, gatewayClient, dispatcher, clock, cfg.Engine.MaxAttempts, logger)
	receiver := inbound.NewReceiver(gateways, txns, webhookLogs, syncSvc, webhookSvc, clock, logger)

	sweepers := sweeper.New(queue, txns, gateways, syncSvc, webhookSvc, dispatcher, stats, sweeper.Config{
		PendingProbeInterval: cfg.Engine.PendingProbeInterval,
		PendingProbeAge:      cfg.Engine.PendingProbeAge,
		RetryResetInterval:   cfg.Engine.RetryResetInterval,
		StuckInterval:        cfg.Engine.StuckInterval,
		WebhookRetryInterval: cfg.Engine.WebhookRetryInterval,
		PendingProbeLimit:    cfg.Engine.PendingProbeLimit,
		RetryResetLimit:      cfg.Engine.RetryResetLimit,
		WebhookRetryLimit:    cfg.Engine.WebhookRetryLimit,
	}, timeouts, clock, logger)

	// HTTP surface
	jwtManager, err := auth.NewJWTManager(cfg.Auth.JWTSecret)
	if err != nil {
		logger.Fatal("Failed to initialize token verification", zap.Error(err))
	}
	rateLimiter := httpmw.NewRateLimiter(cfg.Webhook.RateLimitRPS, cfg.Webhook.RateLimitBurst)

	router := newRouter(routerDeps{
		webhooks:    webhookHandler.NewHandler(receiver, clock, logger),
		control:     controlHandler.NewHandler(syncSvc, webhookLogs, webhookSvc, logger),
		cron:        cronHandler.NewSweeperHandler(sweepers, clock, logger),
		tokens:      jwtManager,
		limiter:     rateLimiter,
		timeouts:    timeouts,
		cronSecret:  cfg.Auth.CronSecret,
		development: !cfg.IsProduction(),
	}, logger)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      90 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		logger.Info("HTTP server listening", zap.String("address", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to serve HTTP", zap.Error(err))
		}
	}()

	// Ops endpoints
	healthChecker := observability.NewHealthChecker(dbAdapter)
	metricsServer := observability.StartMetricsServer(cfg.Server.MetricsPort, healthChecker, logger)
	grpcHealth, err := observability.StartGRPCHealthServer(ctx, cfg.Server.GRPCHealthPort, healthChecker, 10*time.Second, logger)
	if err != nil {
		logger.Fatal("Failed to start gRPC health server", zap.Error(err))
	}

	// Background work
	dispatchLoop := shutdown.NewBackgroundWorker("sync-dispatcher", logger)
	dispatchLoop.Start(dispatcher.Run)
	if err := sweepers.Start(); err != nil {
		logger.Fatal("Failed to schedule sweepers", zap.Error(err))
	}
	goroutines := resourcemgmt.NewGoroutineMonitor(logger, resourcemgmt.DefaultConfig())
	monitorLoop := shutdown.NewBackgroundWorker("goroutine-monitor", logger)
	monitorLoop.Start(goroutines.StartMonitoring)

	// Components shut down in reverse registration order.
	sm := shutdown.NewManager(logger, cfg.Engine.ShutdownTimeout)
	sm.Register("database", func(ctx context.Context) error {
		dbAdapter.Close()
		return nil
	})
	sm.Register("grpc-health", func(ctx context.Context) error {
		grpcHealth.GracefulStop()
		return nil
	})
	sm.Register("metrics-server", metricsServer.Shutdown)
	sm.Register("goroutine-monitor", monitorLoop.Shutdown)
	sm.Register("webhook-delivery", webhookSvc.Shutdown)
	sm.Register("sync-tasks", dispatcher.Shutdown)
	sm.Register("sync-dispatcher", dispatchLoop.Shutdown)
	sm.Register("sweepers", sweepers.Stop)
	sm.Register("rate-limiter", func(ctx context.Context) error {
		rateLimiter.Shutdown()
		return nil
	})
	sm.Register("http-server", httpServer.Shutdown)

	errs := sm.Wait(ctx)
	cancel()
	if len(errs) > 0 {
		os.Exit(1)
	}
	logger.Info("Gateway sync engine stopped")
}

// initLogger builds a production JSON logger or a development console logger
func initLogger(cfg config.LoggerConfig) *zap.Logger {
	level := zapcore.InfoLevel
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	zapCfg := zap.NewProductionConfig()
	if cfg.Development {
		zapCfg = zap.NewDevelopmentConfig()
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
