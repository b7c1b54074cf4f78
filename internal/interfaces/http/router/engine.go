package router

import (
	_ "github.com/erp/reconciler/docs"
	"github.com/erp/reconciler/internal/infrastructure/logger"
	"github.com/erp/reconciler/internal/infrastructure/telemetry"
	"github.com/erp/reconciler/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
)

// EngineConfig configures the middleware stack of the admin API
type EngineConfig struct {
	Logger         *zap.Logger
	ServiceName    string
	TracingEnabled bool
	MeterProvider  *telemetry.MeterProvider
	Profiling      bool
	TrustedProxies []string
	CORSOrigins    []string
	MaxBodySize    int64
	// RateLimit is requests per second per client; zero disables it
	RateLimit      float64
	RateLimitBurst int
	Docs           middleware.DocsConfig
}

// NewEngine builds the gin engine with the middleware stack and every API
// route mounted. Middleware order:
//  1. RequestID, so every later layer can tag its output
//  2. Recovery
//  3. Tracing then SpanEnricher, which needs the server span
//  4. HTTPMetrics and Profiling
//  5. request logging
//  6. Secure, CORS, BodyLimit and RateLimit
func NewEngine(cfg EngineConfig, h Handlers) *gin.Engine {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	middleware.SetupValidator()

	engine := gin.New()
	if len(cfg.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.TrustedProxies); err != nil {
			log.Warn("Failed to set trusted proxies", zap.Error(err))
		}
	}

	tracing := middleware.DefaultTracingConfig()
	tracing.Enabled = cfg.TracingEnabled
	if cfg.ServiceName != "" {
		tracing.ServiceName = cfg.ServiceName
	}
	profiling := middleware.DefaultProfilingConfig()
	profiling.Enabled = cfg.Profiling

	engine.Use(middleware.RequestID())
	engine.Use(logger.Recovery(log))
	engine.Use(middleware.TracingWithConfig(tracing))
	engine.Use(middleware.SpanEnricher())
	engine.Use(middleware.HTTPMetrics(middleware.HTTPMetricsConfig{
		MeterProvider: cfg.MeterProvider,
		Enabled:       cfg.MeterProvider != nil,
		Logger:        log,
	}))
	engine.Use(middleware.ProfilingWithConfig(profiling))
	engine.Use(logger.GinMiddleware(log, "/health", "/api/v1/health"))
	engine.Use(middleware.Secure())

	cors := middleware.DefaultCORSConfig()
	cors.AllowOrigins = cfg.CORSOrigins
	engine.Use(middleware.CORSWithConfig(cors))

	if cfg.MaxBodySize > 0 {
		engine.Use(middleware.BodyLimit(cfg.MaxBodySize))
	}
	if cfg.RateLimit > 0 {
		limiter := middleware.NewRateLimiter(cfg.RateLimit, cfg.RateLimitBurst)
		engine.Use(middleware.RateLimit(limiter))
		log.Info("Rate limiting enabled",
			zap.Float64("per_second", cfg.RateLimit),
			zap.Int("burst", limiter.Burst()))
	}

	// load balancers hit the unversioned path
	engine.GET("/health", h.System.Health)
	engine.GET("/swagger/*any", middleware.DocsProtection(cfg.Docs), ginSwagger.WrapHandler(swaggerFiles.Handler))

	NewRouter(engine).Register(APIGroups(h)...).Setup()
	return engine
}
