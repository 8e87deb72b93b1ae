package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/iplixera/nivostack-monorepo-sub006/internal/application/billing"
	domainbilling "github.com/iplixera/nivostack-monorepo-sub006/internal/domain/billing"
	"github.com/iplixera/nivostack-monorepo-sub006/internal/infrastructure/auth"
	"github.com/iplixera/nivostack-monorepo-sub006/internal/infrastructure/cache"
	"github.com/iplixera/nivostack-monorepo-sub006/internal/infrastructure/config"
	"github.com/iplixera/nivostack-monorepo-sub006/internal/infrastructure/event"
	"github.com/iplixera/nivostack-monorepo-sub006/internal/infrastructure/logger"
	"github.com/iplixera/nivostack-monorepo-sub006/internal/infrastructure/persistence"
	"github.com/iplixera/nivostack-monorepo-sub006/internal/infrastructure/scheduler"
	"github.com/iplixera/nivostack-monorepo-sub006/internal/infrastructure/telemetry"
	"github.com/iplixera/nivostack-monorepo-sub006/internal/interfaces/http/handler"
	"github.com/iplixera/nivostack-monorepo-sub006/internal/interfaces/http/middleware"
	"github.com/iplixera/nivostack-monorepo-sub006/internal/interfaces/http/router"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

//	@title			Quota Engine API
//	@version		1.0
//	@description	Subscription usage quotas and enforcement for telemetry tenants

//	@BasePath	/api/v1

//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				Dashboard token. Format: "Bearer {token}"

//	@securityDefinitions.apikey	APIKeyAuth
//	@in							header
//	@name						X-API-Key

//	@securityDefinitions.apikey	AdminKeyAuth
//	@in							header
//	@name						X-Admin-Key

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log, err := logger.New(logger.Config{
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
		Output:  cfg.Log.Output,
		Service: cfg.App.Name,
		Env:     cfg.App.Env,
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = log.Sync()
	}()

	rootCtx, stopRoot := context.WithCancel(context.Background())
	defer stopRoot()

	// Telemetry comes first so the logger can be teed into OTLP
	tel, err := telemetry.Setup(rootCtx, telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		LogsEnabled:       cfg.Telemetry.LogsEnabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		Insecure:          cfg.Telemetry.Insecure,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ExportInterval:    cfg.Telemetry.ExportInterval,
		ServiceName:       cfg.Telemetry.ServiceName,
		ServiceVersion:    version,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize telemetry", zap.Error(err))
	}
	defer func() {
		if err := tel.Shutdown(context.Background()); err != nil {
			log.Error("Error shutting down telemetry", zap.Error(err))
		}
	}()
	log = tel.WrapLogger(log)
	meter := tel.Meter(cfg.Telemetry.MeterName)

	profiler, err := telemetry.NewProfiler(telemetry.ProfilerConfig{
		Enabled:           cfg.Profiling.Enabled,
		ServerAddress:     cfg.Profiling.ServerAddress,
		ApplicationName:   cfg.Profiling.ApplicationName,
		BasicAuthUser:     cfg.Profiling.BasicAuthUser,
		BasicAuthPassword: cfg.Profiling.BasicAuthPassword,
		ProfileTypes:      cfg.Profiling.ProfileTypes,
	}, log)
	if err != nil {
		log.Fatal("Failed to start profiler", zap.Error(err))
	}
	defer func() {
		if err := profiler.Stop(); err != nil {
			log.Error("Error stopping profiler", zap.Error(err))
		}
	}()
	if profiler.IsEnabled() && cfg.Profiling.SpanProfiles {
		tel.EnableSpanProfiles()
	}

	log.Info("Starting quota engine",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("version", version),
	)

	// Initialize database connection
	db, err := persistence.NewDatabase(&cfg.Database, log, logger.MapGormLogLevel(cfg.Log.Level))
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected successfully", zap.String("driver", cfg.Database.Driver))

	if err := telemetry.InstrumentDB(db.DB, telemetry.DBTracingConfig{
		Enabled:  cfg.Telemetry.Enabled && cfg.Telemetry.DBTracing,
		DBSystem: cfg.Database.Driver,
	}, log); err != nil {
		log.Fatal("Failed to instrument database", zap.Error(err))
	}
	sqlDB, err := db.DB.DB()
	if err != nil {
		log.Fatal("Failed to access connection pool", zap.Error(err))
	}
	dbMetrics, err := telemetry.RegisterDBMetrics(db.DB, meter, telemetry.DefaultDBMetricsConfig(), log)
	if err != nil {
		log.Fatal("Failed to register database metrics", zap.Error(err))
	}
	if err := dbMetrics.ObservePool(meter, sqlDB); err != nil {
		log.Warn("Failed to observe connection pool", zap.Error(err))
	}

	// Initialize repositories
	planRepo := persistence.NewGormPlanRepository(db.DB)
	subRepo := persistence.NewGormSubscriptionRepository(db.DB)
	stateRepo := persistence.NewGormEnforcementStateRepository(db.DB)
	historyRepo := persistence.NewGormEnforcementHistoryRepository(db.DB)
	projectRepo := persistence.NewGormProjectRepository(db.DB)

	if cfg.Database.AutoMigrate {
		if err := db.AutoMigrate(); err != nil {
			log.Fatal("Failed to auto-migrate schema", zap.Error(err))
		}
		seeded, err := planRepo.SeedDefaults(rootCtx, domainbilling.DefaultCatalog(time.Now()))
		if err != nil {
			log.Fatal("Failed to seed plan catalog", zap.Error(err))
		}
		log.Info("Schema migrated", zap.Int("plans_seeded", seeded))
	}

	// Redis backs the count cache and cross-replica invalidation
	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient, err = cache.NewRedisClient(rootCtx, cfg.Redis)
		if err != nil {
			log.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				log.Error("Error closing Redis client", zap.Error(err))
			}
		}()
		log.Info("Redis connected", zap.String("addr", cfg.Redis.Addr()))
	}

	var counter domainbilling.UsageCounter = persistence.NewGormUsageCounter(db.DB)
	var purger cache.TenantPurger
	if cfg.Quota.CountCacheEnabled {
		var store cache.CountStore = cache.NewInMemoryCountStore()
		if redisClient != nil {
			store = cache.NewRedisCountStore(redisClient)
		}
		cached := cache.NewCachingUsageCounter(counter, store, cfg.Quota.CountCacheTTL, log)
		counter = cached
		purger = cached
		log.Info("Usage count cache enabled", zap.Duration("ttl", cfg.Quota.CountCacheTTL))
	}

	// Event bus feeds the enforcement audit trail
	eventBus := event.NewInMemoryEventBus(log)
	eventBus.Subscribe(event.NewEnforcementAuditHandler(historyRepo, log))
	if err := eventBus.Start(rootCtx); err != nil {
		log.Fatal("Failed to start event bus", zap.Error(err))
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := eventBus.Stop(stopCtx); err != nil {
			log.Error("Error stopping event bus", zap.Error(err))
		}
	}()

	var invalidationBus cache.InvalidationBus
	if redisClient != nil {
		invalidationBus = cache.NewRedisInvalidationBus(redisClient,
			cache.WithInvalidationChannel(cfg.Redis.InvalidationChannel),
			cache.WithInvalidationLogger(log),
		)
	} else {
		invalidationBus = cache.NewLocalInvalidationBus(log)
	}
	defer func() {
		if err := invalidationBus.Close(); err != nil {
			log.Error("Error closing invalidation bus", zap.Error(err))
		}
	}()

	// Initialize application services
	quotaMetrics, err := telemetry.NewQuotaMetrics(meter)
	if err != nil {
		log.Fatal("Failed to create quota metrics", zap.Error(err))
	}
	meterService := billing.NewUsageMeterService(subRepo, planRepo, counter, log)
	enforcementService := billing.NewEnforcementService(meterService, stateRepo, eventBus, quotaMetrics, log,
		billing.EnforcementServiceConfig{
			Evaluator:      cfg.EvaluatorConfig(),
			Policy:         cfg.PolicyConfig(),
			FailureBackoff: cfg.Scheduler.FailureBackoff,
		})
	quotaService := billing.NewQuotaService(meterService, quotaMetrics, log)
	historyService := billing.NewHistoryService(historyRepo)
	adminService := billing.NewSubscriptionAdminService(subRepo, planRepo, enforcementService, eventBus, invalidationBus, log)

	onInvalidate := cache.NewInvalidationHandler(purger, enforcementService, log)
	if redisClient != nil {
		go func() {
			if err := invalidationBus.Subscribe(rootCtx, onInvalidate); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("Invalidation subscription stopped", zap.Error(err))
			}
		}()
	} else if err := invalidationBus.Subscribe(rootCtx, onInvalidate); err != nil {
		log.Fatal("Failed to subscribe to invalidations", zap.Error(err))
	}

	// Background sweep keeps GRACE deadlines moving without reads
	sweepScheduler := scheduler.NewEnforcementSweepScheduler(enforcementService, log, scheduler.EnforcementSweepConfig{
		Enabled:          cfg.Scheduler.Enabled,
		Interval:         cfg.Scheduler.SweepInterval,
		BatchSize:        cfg.Scheduler.BatchSize,
		MaxBatchesPerRun: scheduler.DefaultEnforcementSweepConfig().MaxBatchesPerRun,
		Timeout:          cfg.Scheduler.Timeout,
		RunOnStartup:     cfg.Scheduler.RunOnStartup,
	})
	if err := sweepScheduler.Start(rootCtx); err != nil {
		log.Fatal("Failed to start enforcement sweep", zap.Error(err))
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := sweepScheduler.Stop(stopCtx); err != nil {
			log.Error("Error stopping enforcement sweep", zap.Error(err))
		}
	}()

	// Renewal rolls finished billing periods forward and expires ended trials
	renewalDefaults := scheduler.DefaultSubscriptionRenewalConfig()
	renewalScheduler := scheduler.NewSubscriptionRenewalScheduler(adminService, log, scheduler.SubscriptionRenewalConfig{
		Enabled:          cfg.Scheduler.RenewalEnabled,
		Interval:         cfg.Scheduler.RenewalInterval,
		BatchSize:        cfg.Scheduler.RenewalBatchSize,
		MaxBatchesPerRun: renewalDefaults.MaxBatchesPerRun,
		Timeout:          cfg.Scheduler.Timeout,
		RunOnStartup:     cfg.Scheduler.RunOnStartup,
	})
	if err := renewalScheduler.Start(rootCtx); err != nil {
		log.Fatal("Failed to start subscription renewal", zap.Error(err))
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := renewalScheduler.Stop(stopCtx); err != nil {
			log.Error("Error stopping subscription renewal", zap.Error(err))
		}
	}()

	// Initialize HTTP layer
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	if err := middleware.SetupValidator(); err != nil {
		log.Fatal("Failed to register validators", zap.Error(err))
	}

	httpMetrics, err := middleware.HTTPMetrics(meter)
	if err != nil {
		log.Fatal("Failed to create HTTP metrics", zap.Error(err))
	}

	corsCfg := middleware.DefaultCORSConfig()
	if len(cfg.HTTP.CORSAllowOrigins) > 0 {
		corsCfg.AllowOrigins = cfg.HTTP.CORSAllowOrigins
	}
	if len(cfg.HTTP.CORSAllowMethods) > 0 {
		corsCfg.AllowMethods = cfg.HTTP.CORSAllowMethods
	}
	if len(cfg.HTTP.CORSAllowHeaders) > 0 {
		corsCfg.AllowHeaders = cfg.HTTP.CORSAllowHeaders
	}

	healthPaths := []string{"/health", "/ready"}
	engine := gin.New()
	if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
		log.Fatal("Invalid trusted proxies", zap.Error(err))
	}
	engine.Use(
		middleware.RequestID(),
		logger.GinMiddleware(log, healthPaths...),
		logger.Recovery(log),
		middleware.Tracing(middleware.TracingConfig{
			ServiceName: cfg.Telemetry.ServiceName,
			Enabled:     cfg.Telemetry.Enabled,
			SkipPaths:   healthPaths,
		}),
		middleware.SpanErrorMarker(),
		httpMetrics,
		middleware.Secure(),
		middleware.CORSWithConfig(corsCfg),
		middleware.BodyLimit(cfg.HTTP.MaxBodyBytes),
	)
	if profiler.IsEnabled() {
		engine.Use(middleware.ProfilingLabels())
	}

	checks := map[string]handler.ReadinessCheck{
		"database": sqlDB.PingContext,
	}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}
	}

	handlers := router.Handlers{
		Enforcement:  handler.NewEnforcementHandler(enforcementService, historyService, cfg.PolicyConfig()),
		Usage:        handler.NewUsageHandler(meterService, quotaService),
		Subscription: handler.NewSubscriptionHandler(adminService, planRepo),
		Scheduler:    handler.NewSchedulerHandler(sweepScheduler),
		System:       handler.NewSystemHandler(cfg.App.Name, version, checks),
	}

	sdkGuards := []gin.HandlerFunc{
		middleware.APIKeyAuth(middleware.APIKeyAuthConfig{
			Resolver: projectRepo,
			Logger:   log,
			FailOpen: true,
		}),
	}
	if cfg.HTTP.SDKRateLimit > 0 {
		limiter := middleware.NewRateLimiter(cfg.HTTP.SDKRateLimit, cfg.HTTP.SDKRateWindow)
		defer limiter.Stop()
		sdkGuards = append(sdkGuards, middleware.RateLimitByKey(limiter, middleware.APIKeyRateKey))
	}
	sdkGuards = append(sdkGuards, middleware.SpanAttributes())

	jwtService := auth.NewJWTService(cfg.JWT)
	if cfg.HTTP.AdminAPIKey == "" {
		log.Warn("No admin API key configured; admin routes will reject every request")
	}

	r := router.NewRouter(engine)
	r.Register(router.SDKRoutes(handlers, quotaService, sdkGuards...)).
		Register(router.DashboardRoutes(handlers, middleware.DashboardAuth(jwtService, log), middleware.SpanAttributes())).
		Register(router.AdminRoutes(handlers, middleware.AdminKeyAuth(cfg.HTTP.AdminAPIKey))).
		Register(router.SystemRoutes(handlers))
	r.Setup()
	router.RegisterProbes(engine, handlers.System)

	// Create HTTP server with config
	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	// Start server in goroutine
	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	stopRoot()

	log.Info("Server exited gracefully")
}
