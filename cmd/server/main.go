package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	appinventory "github.com/erp/stockcore/internal/application/inventory"
	apppacking "github.com/erp/stockcore/internal/application/packing"
	"github.com/erp/stockcore/internal/domain/shared"
	"github.com/erp/stockcore/internal/infrastructure/auth"
	"github.com/erp/stockcore/internal/infrastructure/cache"
	"github.com/erp/stockcore/internal/infrastructure/config"
	"github.com/erp/stockcore/internal/infrastructure/event"
	"github.com/erp/stockcore/internal/infrastructure/logger"
	"github.com/erp/stockcore/internal/infrastructure/messaging"
	"github.com/erp/stockcore/internal/infrastructure/migration"
	"github.com/erp/stockcore/internal/infrastructure/persistence"
	"github.com/erp/stockcore/internal/infrastructure/scheduler"
	"github.com/erp/stockcore/internal/infrastructure/storage"
	"github.com/erp/stockcore/internal/infrastructure/telemetry"
	"github.com/erp/stockcore/internal/interfaces/http/handler"
	"github.com/erp/stockcore/internal/interfaces/http/router"
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

const shutdownTimeout = 30 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	ctx := context.Background()
	tel := setupTelemetry(ctx, cfg, log)
	defer tel.shutdown(log)
	log = tel.logger

	log.Info("Starting stock service",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("version", version),
	)

	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level))
	db, err := persistence.NewDatabase(&cfg.Database, persistence.WithGormLogger(gormLog))
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	sqlDB, err := db.DB.DB()
	if err != nil {
		log.Fatal("Failed to get sql.DB", zap.Error(err))
	}
	log.Info("Database connected successfully")

	if cfg.Database.MigrateOnStart {
		runMigrations(sqlDB, log)
	}

	if cfg.Telemetry.DBTraceEnabled {
		plugin := telemetry.NewDBTracingPlugin(telemetry.DBTracingConfig{
			Enabled:         true,
			LogFullSQL:      cfg.Telemetry.DBLogFullSQL,
			SlowQueryThresh: cfg.Telemetry.DBSlowQueryThresh,
			DBName:          cfg.Database.DBName,
		}, log)
		if err := plugin.Register(db.DB); err != nil {
			log.Fatal("Failed to register database tracing", zap.Error(err))
		}
	}
	dbMetrics, err := telemetry.RegisterDBMetrics(db.DB, tel.meters, telemetry.DBMetricsConfig{
		Enabled:            tel.meters.IsEnabled(),
		SlowQueryThreshold: cfg.Telemetry.DBSlowQueryThresh,
	}, log)
	if err != nil {
		log.Fatal("Failed to register database metrics", zap.Error(err))
	}
	if dbMetrics != nil {
		dbMetrics.StartPoolStatsCollection(ctx)
		defer dbMetrics.Stop()
	}

	// Repositories and the transaction scope
	eventSerializer := event.NewEventSerializer()
	productRepo := persistence.NewGormProductRepository(db.DB)
	batchRepo := persistence.NewGormBatchRepository(db.DB)
	transactionRepo := persistence.NewGormTransactionRepository(db.DB)
	orderRepo := persistence.NewGormOrderRepository(db.DB)
	outboxRepo := event.NewGormOutboxRepository(db.DB)
	scope := persistence.NewGormTransactionScope(db.DB, event.NewOutboxPublisher(eventSerializer))

	// Application services
	ledgerOpts := []appinventory.StockLedgerOption{
		appinventory.WithRetryConfig(appinventory.RetryConfig{
			MaxRetries:  cfg.Ledger.MaxRetries,
			BaseBackoff: cfg.Ledger.RetryBackoff,
			MaxBackoff:  cfg.Ledger.MaxBackoff,
		}),
	}
	var ledgerMetrics *telemetry.LedgerMetrics
	if tel.meters.IsEnabled() {
		ledgerMetrics, err = telemetry.NewLedgerMetrics(telemetry.LedgerMetricsConfig{
			Meter:         tel.meters.Meter("stockcore.ledger"),
			Logger:        log,
			StockProvider: telemetry.NewGormStockMetricsProvider(db.DB),
		})
		if err != nil {
			log.Fatal("Failed to create ledger metrics", zap.Error(err))
		}
		ledgerMetrics.StartPeriodicCollection(ctx, telemetry.NewGormTenantProvider(db.DB), time.Minute)
		ledgerOpts = append(ledgerOpts, appinventory.WithLedgerMetrics(ledgerMetrics))
	}
	ledgerService := appinventory.NewStockLedgerService(scope, productRepo, batchRepo, transactionRepo, log, ledgerOpts...)
	productService := appinventory.NewProductService(scope, productRepo, ledgerService.Propagator(), log)
	packingService := apppacking.NewPackingService(scope, orderRepo, productRepo, ledgerService, log)

	var archiver appinventory.ReportArchiver
	if cfg.Reconciliation.Archive && cfg.Storage.IsConfigured() {
		s3Archiver, err := storage.NewS3ReportArchiver(&cfg.Storage, storage.WithLogger(log))
		if err != nil {
			log.Fatal("Failed to create report archiver", zap.Error(err))
		}
		if err := s3Archiver.EnsureBucket(ctx); err != nil {
			log.Warn("Report bucket check failed", zap.Error(err))
		}
		archiver = s3Archiver
	}
	reconciliationReader := persistence.NewSQLReconciliationReader(sqlx.NewDb(sqlDB, "postgres"))
	reconciliationService := appinventory.NewReconciliationService(reconciliationReader, archiver, ledgerMetrics, log)

	// Event pipeline: outbox -> bus -> broker
	eventBus := event.NewInMemoryEventBus(log)
	forwarder, err := messaging.NewForwarder(cfg.Messaging, eventSerializer, log)
	if err != nil {
		log.Fatal("Failed to create event forwarder", zap.Error(err))
	}
	if forwarder != nil {
		defer func() {
			if err := forwarder.Close(); err != nil {
				log.Error("Error closing event forwarder", zap.Error(err))
			}
		}()
		store := idempotencyStore(ctx, cfg.Redis, log)
		eventBus.Subscribe(event.NewIdempotentHandler(forwarder, store, log,
			event.WithHandlerName(forwarder.Name()),
			event.WithIdempotencyConfig(shared.IdempotencyConfig{TTL: cfg.Outbox.IdempotencyTTL, Enabled: true}),
		))
		log.Info("Event forwarder registered",
			zap.String("driver", forwarder.Name()),
			zap.Strings("event_types", forwarder.EventTypes()),
		)
	}
	if err := eventBus.Start(ctx); err != nil {
		log.Fatal("Failed to start event bus", zap.Error(err))
	}
	defer func() {
		if err := eventBus.Stop(context.Background()); err != nil {
			log.Error("Error stopping event bus", zap.Error(err))
		}
	}()

	if cfg.Outbox.ProcessorEnabled {
		processorConfig := event.DefaultOutboxProcessorConfig()
		processorConfig.BatchSize = cfg.Outbox.BatchSize
		processorConfig.PollInterval = cfg.Outbox.PollInterval
		processorConfig.CleanupEnabled = cfg.Outbox.CleanupEnabled
		processorConfig.CleanupRetention = cfg.Outbox.CleanupRetention
		outboxProcessor := event.NewOutboxProcessor(outboxRepo, eventBus, eventSerializer, processorConfig, log)
		if err := outboxProcessor.Start(ctx); err != nil {
			log.Fatal("Failed to start outbox processor", zap.Error(err))
		}
		defer func() {
			if err := outboxProcessor.Stop(context.Background()); err != nil {
				log.Error("Error stopping outbox processor", zap.Error(err))
			}
		}()
		log.Info("Outbox processor started",
			zap.Int("batch_size", processorConfig.BatchSize),
			zap.Duration("poll_interval", processorConfig.PollInterval),
		)
	}

	// Reconciliation scheduler
	var runs handler.RunTracker
	if cfg.Reconciliation.Enabled {
		schedulerConfig := scheduler.DefaultConfig()
		schedulerConfig.Interval = cfg.Reconciliation.Interval
		schedulerConfig.RunTimeout = cfg.Reconciliation.Timeout
		reconciliationScheduler, err := scheduler.NewReconciliationScheduler(schedulerConfig, reconciliationService, log)
		if err != nil {
			log.Fatal("Invalid reconciliation schedule", zap.Error(err))
		}
		if err := reconciliationScheduler.Start(ctx); err != nil {
			log.Fatal("Failed to start reconciliation scheduler", zap.Error(err))
		}
		defer func() {
			if err := reconciliationScheduler.Stop(context.Background()); err != nil {
				log.Error("Error stopping reconciliation scheduler", zap.Error(err))
			}
		}()
		runs = reconciliationScheduler
	}

	// HTTP
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	var verifier *auth.TokenVerifier
	if cfg.JWT.Enabled {
		verifier = auth.NewTokenVerifier(cfg.JWT)
	}
	var meter metric.Meter
	if tel.meters.IsEnabled() {
		meter = tel.meters.Meter("stockcore.http")
	}

	engine := router.NewAPI(router.APIConfig{
		ServiceName:    cfg.Telemetry.ServiceName,
		Verifier:       verifier,
		TracingEnabled: cfg.Telemetry.Enabled,
		Profiling:      tel.profiler.IsEnabled(),
		Meter:          meter,
		MaxBodyBytes:   cfg.HTTP.MaxBodySize,
		RequestTimeout: cfg.HTTP.WriteTimeout,
		Logger:         log,
	}, router.Handlers{
		Health:         handler.NewHealthHandler(version, map[string]handler.Pinger{"database": sqlDB}),
		Products:       handler.NewProductHandler(productService),
		Stock:          handler.NewStockHandler(ledgerService),
		Packing:        handler.NewPackingHandler(packingService),
		Reconciliation: handler.NewReconciliationHandler(reconciliationService, runs),
	})
	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			log.Warn("Failed to set trusted proxies", zap.Error(err))
		}
	}

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	log.Info("Server exited gracefully")
}

// telemetryStack holds the OpenTelemetry providers. Disabled providers are
// non-nil and report IsEnabled false.
type telemetryStack struct {
	tracer   *telemetry.TracerProvider
	profiler *telemetry.Profiler
	meters   *telemetry.MeterProvider
	logs     *telemetry.LoggerProvider
	logger   *zap.Logger
}

func setupTelemetry(ctx context.Context, cfg *config.Config, log *zap.Logger) *telemetryStack {
	t := &telemetryStack{logger: log}
	tc := cfg.Telemetry

	var err error
	t.tracer, err = telemetry.NewTracerProvider(ctx, telemetry.Config{
		Enabled:           tc.Enabled,
		CollectorEndpoint: tc.CollectorEndpoint,
		SamplingRatio:     tc.SamplingRatio,
		ServiceName:       tc.ServiceName,
		ServiceVersion:    version,
		Insecure:          tc.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize tracing", zap.Error(err))
	}
	t.meters, err = telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		Enabled:           tc.Enabled,
		CollectorEndpoint: tc.CollectorEndpoint,
		ServiceName:       tc.ServiceName,
		ServiceVersion:    version,
		Insecure:          tc.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize metrics", zap.Error(err))
	}
	t.logs, err = telemetry.NewLoggerProvider(ctx, telemetry.LogsConfig{
		Enabled:           tc.Enabled,
		CollectorEndpoint: tc.CollectorEndpoint,
		ServiceName:       tc.ServiceName,
		ServiceVersion:    version,
		Insecure:          tc.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize log export", zap.Error(err))
	}
	if t.logs.IsEnabled() {
		t.logger = telemetry.BridgeLogger(log, t.logs, tc.ServiceName, log.Level())
	}
	t.profiler, err = telemetry.NewProfiler(telemetry.ProfilerConfig{
		Enabled:         tc.ProfilingEnabled,
		ServerAddress:   tc.ProfilingServer,
		ApplicationName: tc.ServiceName,
		ProfileTypes:    tc.ProfilingTypes,
	}, log)
	if err != nil {
		log.Fatal("Failed to start profiler", zap.Error(err))
	}
	t.profiler.LinkSpans(t.tracer)
	return t
}

func (t *telemetryStack) shutdown(log *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := t.meters.Shutdown(ctx); err != nil {
		log.Error("Error shutting down meter provider", zap.Error(err))
	}
	if err := t.tracer.Shutdown(ctx); err != nil {
		log.Error("Error shutting down tracer provider", zap.Error(err))
	}
	if err := t.logs.Shutdown(ctx); err != nil {
		log.Error("Error shutting down logger provider", zap.Error(err))
	}
	if err := t.profiler.Stop(); err != nil {
		log.Error("Error stopping profiler", zap.Error(err))
	}
}

func runMigrations(db *sql.DB, log *zap.Logger) {
	m, err := migration.New(db, "", log)
	if err != nil {
		log.Fatal("Failed to create migrator", zap.Error(err))
	}
	if err := m.Up(); err != nil {
		log.Fatal("Failed to run migrations", zap.Error(err))
	}
}

// idempotencyStore uses Redis when a host is configured and reachable
func idempotencyStore(ctx context.Context, cfg config.RedisConfig, log *zap.Logger) shared.IdempotencyStore {
	if cfg.Host == "" {
		return cache.NewInMemoryIdempotencyStore()
	}
	store, err := cache.NewIdempotencyStoreFactory(cfg, cache.WithLogger(log)).CreateStore(ctx)
	if err != nil {
		log.Fatal("Failed to create idempotency store", zap.Error(err))
	}
	return store
}
