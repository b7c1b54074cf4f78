package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/erp/reconciler/internal/application/erpsync"
	"github.com/erp/reconciler/internal/application/fees"
	"github.com/erp/reconciler/internal/application/linking"
	"github.com/erp/reconciler/internal/application/payments"
	"github.com/erp/reconciler/internal/domain/fee"
	"github.com/erp/reconciler/internal/domain/marketplace"
	"github.com/erp/reconciler/internal/domain/payment"
	"github.com/erp/reconciler/internal/infrastructure/cache"
	"github.com/erp/reconciler/internal/infrastructure/config"
	"github.com/erp/reconciler/internal/infrastructure/ecommerce"
	"github.com/erp/reconciler/internal/infrastructure/erp"
	"github.com/erp/reconciler/internal/infrastructure/event"
	"github.com/erp/reconciler/internal/infrastructure/logger"
	"github.com/erp/reconciler/internal/infrastructure/persistence"
	"github.com/erp/reconciler/internal/infrastructure/rules"
	"github.com/erp/reconciler/internal/infrastructure/scheduler"
	"github.com/erp/reconciler/internal/infrastructure/storage"
	"github.com/erp/reconciler/internal/infrastructure/telemetry"
	"github.com/erp/reconciler/internal/interfaces/http/handler"
	"github.com/erp/reconciler/internal/interfaces/http/middleware"
	"github.com/erp/reconciler/internal/interfaces/http/router"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	ctx := context.Background()
	bootLog := logger.New(logger.FromAppConfig(cfg.Log))

	logsProvider, err := telemetry.NewLoggerProvider(ctx, telemetry.LogsConfig{
		Enabled:           cfg.Telemetry.Enabled && cfg.Telemetry.LogExportEnabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, bootLog)
	if err != nil {
		bootLog.Fatal("Failed to initialize log export", zap.Error(err))
	}

	// the stdout core and the OTLP bridge see the same entries
	log := logger.New(logger.FromAppConfig(cfg.Log), logsProvider.Core(zapcore.InfoLevel))
	defer func() {
		_ = log.Sync()
	}()

	log.Info("Starting reconciler",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("timezone", cfg.App.Timezone),
		zap.String("version", version),
	)

	tracerProvider, err := telemetry.NewTracerProvider(ctx, telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize tracing", zap.Error(err))
	}

	meterProvider, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		Enabled:           cfg.Telemetry.Enabled && cfg.Telemetry.MetricsEnabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ExportInterval:    cfg.Telemetry.MetricsInterval,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize metrics", zap.Error(err))
	}

	profiler, err := telemetry.NewProfiler(telemetry.ProfilerConfig{
		Enabled:         cfg.Telemetry.ProfilingEnabled,
		ServerAddress:   cfg.Telemetry.PyroscopeServer,
		ApplicationName: cfg.Telemetry.ServiceName,
		Environment:     cfg.App.Env,
	}, log)
	if err != nil {
		log.Fatal("Failed to start profiler", zap.Error(err))
	}
	if profiler.IsEnabled() {
		tracerProvider.EnableSpanProfiles()
	}

	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level),
		logger.WithSlowThreshold(cfg.Telemetry.DBSlowQueryThresh))
	db, err := persistence.NewDatabase(&cfg.Database, gormLog)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	if err := db.VerifySchema(ctx); err != nil {
		log.Fatal("Database schema is not up to date, run the migrate command first", zap.Error(err))
	}
	log.Info("Database connected successfully")

	dbCfg := telemetry.DBInstrumentationConfig{
		Tracing:            cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled,
		LogFullSQL:         cfg.Telemetry.DBLogFullSQL,
		DBSystem:           "postgresql",
		SlowQueryThreshold: cfg.Telemetry.DBSlowQueryThresh,
	}
	if meterProvider.IsEnabled() {
		dbCfg.Meter = meterProvider.Meter("reconciler/db")
	}
	dbInstrumentation, err := telemetry.InstrumentDB(db.DB, dbCfg, log)
	if err != nil {
		log.Fatal("Failed to instrument database", zap.Error(err))
	}
	dbInstrumentation.StartPoolStats(ctx)
	defer dbInstrumentation.Stop()

	var reconMetrics *telemetry.ReconMetrics
	if meterProvider.IsEnabled() {
		reconMetrics, err = telemetry.NewReconMetrics(telemetry.ReconMetricsConfig{
			Meter:           meterProvider.Meter("reconciler/business"),
			Logger:          log,
			BacklogProvider: telemetry.NewGormBacklogProvider(db.DB),
		})
		if err != nil {
			log.Fatal("Failed to create business metrics", zap.Error(err))
		}
		reconMetrics.StartPeriodicCollection(ctx, cfg.Telemetry.MetricsInterval)
		defer reconMetrics.Stop()
	}

	orderRepo := persistence.NewGormERPOrderRepository(db.DB)
	linkRepo := persistence.NewGormLinkRepository(db.DB)
	paymentRepo := persistence.NewGormPaymentRepository(db.DB)
	syncRunRepo := persistence.NewGormSyncRunRepository(db.DB)

	loc := cfg.App.Location()

	erpClient, err := erp.NewClient(ctx, erp.Config{
		BaseURL:      cfg.ERP.BaseURL,
		TokenURL:     cfg.ERP.TokenURL,
		ClientID:     cfg.ERP.ClientID,
		ClientSecret: cfg.ERP.ClientSecret,
		RefreshToken: cfg.ERP.RefreshToken,
		Timeout:      cfg.ERP.Timeout,
	}, erp.WithLocation(loc), erp.WithLogger(log))
	if err != nil {
		log.Fatal("Failed to create ERP client", zap.Error(err))
	}

	lookups, err := ecommerce.NewRegistry(cfg.Marketplaces, log)
	if err != nil {
		log.Fatal("Failed to create marketplace clients", zap.Error(err))
	}
	log.Info("Marketplace lookups configured", zap.Int("count", len(lookups)))

	var feed *storage.S3SettlementFeed
	if cfg.Settlement.Enabled() {
		feed, err = storage.NewS3SettlementFeed(ctx, &cfg.Settlement, storage.WithLogger(log))
		if err != nil {
			log.Fatal("Failed to create settlement feed", zap.Error(err))
		}
		log.Info("Settlement feed configured", zap.String("bucket", feed.Bucket()))
	}

	runLock, err := cache.NewRunLockFactory(cfg.Redis,
		cache.WithLogger(log),
		cache.WithInMemoryFallback(cfg.App.Env != "production"),
	).CreateLock()
	if err != nil {
		log.Fatal("Failed to create run lock", zap.Error(err))
	}
	defer func() {
		if err := runLock.Close(); err != nil {
			log.Error("Error closing run lock", zap.Error(err))
		}
	}()

	var seeds []fee.RuleSet
	if cfg.Fees.RulesFile != "" {
		seeds, err = rules.LoadFeeRuleSets(cfg.Fees.RulesFile)
		if err != nil {
			log.Fatal("Failed to load fee rules", zap.Error(err), zap.String("path", cfg.Fees.RulesFile))
		}
	}
	feeRules := persistence.NewGormFeeRuleStore(db.DB, cfg.Fees.CacheTTL, persistence.WithFeeRuleSeeds(seeds))

	var classifier *payment.Classifier
	if cfg.Classifier.RulesFile != "" {
		classifier, err = rules.LoadClassifier(cfg.Classifier.RulesFile)
		if err != nil {
			log.Fatal("Failed to load classifier rules", zap.Error(err), zap.String("path", cfg.Classifier.RulesFile))
		}
	}

	var busOpts []event.Option
	if cfg.Linking.AutoLink {
		busOpts = append(busOpts, event.WithWorkers(cfg.Linking.EventWorkers), event.WithQueueSize(cfg.Linking.EventQueueSize))
	}
	bus := event.NewInMemoryEventBus(log, busOpts...)

	syncService := erpsync.NewService(erpsync.ServiceConfig{
		Source: erpClient,
		Orders: orderRepo,
		Runs:   syncRunRepo,
		Lock:   runLock,
		Config: erpsync.Config{
			PageSize:        cfg.Sync.PageSize,
			WindowDays:      cfg.Sync.WindowDays,
			RequestInterval: cfg.Sync.RequestInterval,
			MaxRetries:      cfg.Sync.MaxRetries,
			InitialBackoff:  cfg.Sync.InitialBackoff,
			MaxBackoff:      cfg.Sync.MaxBackoff,
			MaxRequests:     cfg.Sync.MaxRequests,
			LockTTL:         cfg.Sync.LockTTL,
		},
		Events:  bus,
		Logger:  log,
		Metrics: reconMetrics,
	})

	linkService := linking.NewService(linking.ServiceConfig{
		Orders:  orderRepo,
		Links:   linkRepo,
		Lookups: lookups,
		Config: linking.Config{
			Concurrency: cfg.Linking.Concurrency,
			BatchLimit:  cfg.Linking.BatchLimit,
			RetryAfter:  cfg.Linking.RetryAfter,
			Lookback:    cfg.Linking.Lookback,
		},
		Logger:  log,
		Metrics: reconMetrics,
	})
	if cfg.Linking.AutoLink {
		bus.Subscribe(linking.NewAutoLinker(linkService, log))
	}
	if err := bus.Start(ctx); err != nil {
		log.Fatal("Failed to start event bus", zap.Error(err))
	}

	feeService := fees.NewService(fees.ServiceConfig{
		Rules:   feeRules,
		Orders:  orderRepo,
		Links:   linkRepo,
		Logger:  log,
		Metrics: reconMetrics,
	})

	paymentCfg := payments.Config{
		ResolveLimit:      cfg.Settlement.ResolveLimit,
		ResolveRetryAfter: cfg.Settlement.ResolveRetryAfter,
		PullLookback:      cfg.Settlement.PullLookback,
	}
	if cfg.Classifier.Epsilon != "" {
		paymentCfg.Epsilon = decimal.RequireFromString(cfg.Classifier.Epsilon)
	}
	if cfg.Classifier.Tolerance != "" {
		paymentCfg.Tolerance = decimal.RequireFromString(cfg.Classifier.Tolerance)
	}
	paymentDeps := payments.ServiceConfig{
		Payments:   paymentRepo,
		Links:      linkRepo,
		Orders:     orderRepo,
		Classifier: classifier,
		Config:     paymentCfg,
		Logger:     log,
		Metrics:    reconMetrics,
	}
	if feed != nil {
		paymentDeps.Feed = feed
	}
	paymentService := payments.NewService(paymentDeps)

	systemOpts := []handler.SystemHandlerOption{
		handler.WithVersion(cfg.App.Name, version),
		handler.WithHealthCheck("database", db.Ping),
	}
	if feed != nil {
		systemOpts = append(systemOpts, handler.WithHealthCheck("settlement_bucket", feed.Ping))
	}

	var jobs *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		jobs = scheduler.NewScheduler(scheduler.Config{
			Enabled:    true,
			JobTimeout: cfg.Scheduler.JobTimeout,
		}, log)
		for _, job := range []scheduler.Job{
			{
				Name:     scheduler.JobERPSync,
				Interval: cfg.Scheduler.SyncInterval,
				Run:      scheduler.SyncJob(syncService, cfg.Scheduler.SyncLookbackDays, nil, log),
			},
			{
				Name:     scheduler.JobLinking,
				Interval: cfg.Scheduler.LinkInterval,
				Run:      scheduler.LinkJob(linkService),
			},
			{
				Name:     scheduler.JobPayments,
				Interval: cfg.Scheduler.PaymentInterval,
				Run:      scheduler.PaymentJob(paymentService, marketplace.All(), feed != nil, log),
			},
		} {
			if err := jobs.Register(job); err != nil {
				log.Fatal("Failed to register job", zap.String("job", job.Name), zap.Error(err))
			}
		}
		if err := jobs.Start(ctx); err != nil {
			log.Fatal("Failed to start scheduler", zap.Error(err))
		}
		systemOpts = append(systemOpts, handler.WithScheduler(jobs))
		log.Info("Scheduler started",
			zap.Duration("sync_interval", cfg.Scheduler.SyncInterval),
			zap.Duration("link_interval", cfg.Scheduler.LinkInterval),
			zap.Duration("payment_interval", cfg.Scheduler.PaymentInterval),
		)
	}

	paymentOpts := []handler.PaymentHandlerOption{handler.WithPaymentLogger(log)}
	if feed != nil {
		paymentOpts = append(paymentOpts, handler.WithSettlementArchive(feed))
	}

	handlers := router.Handlers{
		Sync:    handler.NewSyncHandler(syncService, loc),
		Link:    handler.NewLinkHandler(linkService, loc),
		Fee:     handler.NewFeeHandler(feeService, loc),
		Payment: handler.NewPaymentHandler(paymentService, loc, paymentOpts...),
		System:  handler.NewSystemHandler(systemOpts...),
	}

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	var engineMeter *telemetry.MeterProvider
	if meterProvider.IsEnabled() {
		engineMeter = meterProvider
	}
	engine := router.NewEngine(router.EngineConfig{
		Logger:         log,
		ServiceName:    cfg.Telemetry.ServiceName,
		TracingEnabled: tracerProvider.IsEnabled(),
		MeterProvider:  engineMeter,
		Profiling:      profiler.IsEnabled(),
		TrustedProxies: cfg.HTTP.TrustedProxies,
		CORSOrigins:    cfg.HTTP.CORSOrigins,
		MaxBodySize:    cfg.HTTP.MaxBodySize,
		RateLimit:      cfg.HTTP.RateLimit,
		RateLimitBurst: cfg.HTTP.RateLimitBurst,
		Docs: middleware.DocsConfig{
			Enabled:    cfg.HTTP.DocsEnabled,
			AllowedIPs: cfg.HTTP.DocsAllowedIPs,
		},
	}, handlers)

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("Server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	if jobs != nil {
		if err := jobs.Stop(shutdownCtx); err != nil {
			log.Error("Error stopping scheduler", zap.Error(err))
		}
	}
	if err := bus.Stop(shutdownCtx); err != nil {
		log.Error("Error draining event bus", zap.Error(err))
	}
	if err := profiler.Stop(); err != nil {
		log.Error("Error stopping profiler", zap.Error(err))
	}
	if err := meterProvider.Shutdown(shutdownCtx); err != nil {
		log.Error("Error shutting down meter provider", zap.Error(err))
	}
	if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
		log.Error("Error shutting down tracer provider", zap.Error(err))
	}
	if err := logsProvider.Shutdown(shutdownCtx); err != nil {
		log.Error("Error shutting down log provider", zap.Error(err))
	}

	log.Info("Server exited")
}
