package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	_ "github.com/lib/pq" // PostgreSQL driver

	"relay/internal/adapter"
	"relay/internal/api"
	"relay/internal/audit"
	"relay/internal/config"
	"relay/internal/consent"
	"relay/internal/constants"
	"relay/internal/decorator"
	"relay/internal/logger"
	"relay/internal/orchestrator"
	"relay/internal/router"
	"relay/pkg/bootstrap"
	"relay/pkg/health"
	"relay/pkg/metrics"
	"relay/pkg/middleware"
	"relay/pkg/migrations"
	"relay/pkg/ratelimit"
	"relay/pkg/tracing"
)

const serviceName = "dispatch-service"

type App struct {
	config         *config.Config
	logger         logger.Logger
	dbConnector    *bootstrap.DatabaseConnector
	db             *sql.DB
	redisClient    *redis.Client
	mongoClient    *mongo.Client
	server         *http.Server
	engine         *gin.Engine
	tracerProvider *tracing.TracerProvider

	consentStore consent.Store
	auditStore   audit.Store
	registry     *orchestrator.Registry
	eventRouter  *router.Router
	ruleRepo     router.Repository
	reloader     *router.Reloader
	orchestrator *orchestrator.Orchestrator
}

func NewApp(cfg *config.Config, log logger.Logger) *App {
	return &App{
		config:      cfg,
		logger:      log,
		dbConnector: bootstrap.NewDatabaseConnector(cfg, log),
	}
}

func (a *App) Initialize(ctx context.Context) error {
	if err := a.initDatabases(ctx); err != nil {
		return fmt.Errorf("failed to initialize databases: %w", err)
	}

	if err := a.initDispatch(ctx); err != nil {
		return fmt.Errorf("failed to initialize dispatch pipeline: %w", err)
	}

	if err := a.initRouter(); err != nil {
		return fmt.Errorf("failed to initialize router: %w", err)
	}

	if err := a.initServer(); err != nil {
		return fmt.Errorf("failed to initialize server: %w", err)
	}

	tp, err := tracing.Init(a.config.Tracing, serviceName)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	a.tracerProvider = tp

	return nil
}

func (a *App) initDatabases(ctx context.Context) error {
	db, err := a.dbConnector.InitPostgreSQL(ctx)
	if err != nil {
		return err
	}
	a.db = db

	if a.db != nil && a.config.Database.RunMigrations {
		if err := migrations.RunPostgres(a.db); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		a.logger.InfowCtx(ctx, "PostgreSQL migrations applied")
	}

	redisClient, err := a.dbConnector.InitRedis(ctx)
	if err != nil {
		return err
	}
	a.redisClient = redisClient

	mongoClient, err := a.dbConnector.InitMongoDB(ctx)
	if err != nil {
		return err
	}
	a.mongoClient = mongoClient

	if a.mongoClient != nil {
		if err := migrations.EnsureMongoCollections(ctx, a.mongoClient.Database(a.mongoDBName())); err != nil {
			return fmt.Errorf("failed to prepare MongoDB collections: %w", err)
		}
	}

	return nil
}

func (a *App) initDispatch(ctx context.Context) error {
	if a.redisClient != nil {
		a.consentStore = consent.NewRedisStore(a.redisClient, 0)
	} else {
		a.consentStore = consent.NewMemoryStore()
		a.logger.InfowCtx(ctx, "Redis not configured, consent state held in memory")
	}

	if a.mongoClient != nil {
		a.auditStore = audit.NewMongoStore(a.mongoClient.Database(a.mongoDBName()))
	} else {
		a.auditStore = audit.NopStore{}
	}

	a.registry = orchestrator.NewRegistry(a.logger)
	for name, providerCfg := range a.config.Providers {
		loader, err := a.providerLoader(name, providerCfg)
		if err != nil {
			return err
		}
		a.registry.Register(name, loader)
	}

	eventRouter, err := router.NewFromConfig(a.config, a.logger)
	if err != nil {
		return err
	}
	a.eventRouter = eventRouter

	if a.db != nil {
		a.ruleRepo = router.NewRepository(a.db)
		a.reloader = router.NewReloader(a.ruleRepo, a.eventRouter, a.config.Routing.Reload, a.logger)
	}

	a.orchestrator = orchestrator.New(a.registry, a.eventRouter, a.config, a.auditStore, a.logger)
	return nil
}

// providerLoader wraps the base adapter for one provider in the decorator
// chain. Construction stays deferred until the provider is first targeted.
func (a *App) providerLoader(name string, providerCfg config.ProviderConfig) (adapter.Loader, error) {
	var base func() adapter.Adapter
	switch providerCfg.Type {
	case "webhook":
		base = func() adapter.Adapter { return adapter.NewWebhookAdapter(name, providerCfg, a.logger) }
	case "kafka":
		base = func() adapter.Adapter { return adapter.NewKafkaAdapter(name, providerCfg, a.logger) }
	default:
		return nil, fmt.Errorf("provider %q has unknown type %q", name, providerCfg.Type)
	}

	return func(ctx context.Context) (adapter.Adapter, error) {
		return decorator.Compose(base(), a.config, providerCfg, a.consentStore, a.logger), nil
	}, nil
}

func (a *App) initRouter() error {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()

	if a.config.Tracing.Enabled {
		engine.Use(tracing.GinMiddleware(serviceName))
	}

	engine.Use(middleware.Recovery(a.logger))
	engine.Use(middleware.RequestLogger(a.logger))
	engine.Use(middleware.RequestID())

	var managementMiddleware []gin.HandlerFunc
	if a.config.Management.RateLimit.Enabled {
		rateLimitConfig := ratelimit.Config{
			RPS:             a.config.Management.RateLimit.RPS,
			Burst:           a.config.Management.RateLimit.Burst,
			CleanupInterval: time.Duration(a.config.Management.RateLimit.CleanupInterval) * time.Second,
			MaxAge:          time.Duration(a.config.Management.RateLimit.MaxAge) * time.Second,
		}
		managementMiddleware = append(managementMiddleware, ratelimit.Middleware(rateLimitConfig))
		a.logger.InfowCtx(context.Background(), "Rate limiting enabled", "rps", rateLimitConfig.RPS, "burst", rateLimitConfig.Burst)
	}

	api.NewIngestHandler(a.orchestrator, a.logger).RegisterRoutes(engine)
	api.NewRulesHandler(a.eventRouter, a.ruleRepo, a.reloader, a.logger).RegisterRoutes(engine, managementMiddleware...)
	api.NewConsentHandler(a.consentStore, a.logger).RegisterRoutes(engine, managementMiddleware...)

	metrics.RegisterDispatchMetrics()
	metrics.RegisterValidationMetrics()
	metrics.RegisterRoutingMetrics()
	metrics.RegisterDecoratorMetrics()
	metrics.RegisterCircuitBreakerMetrics()
	metrics.RegisterManagementMetrics()

	healthRegistry := health.NewRegistry()
	if a.db != nil {
		healthRegistry.Register("postgresql", health.PostgresCheck(a.db))
	}
	if a.redisClient != nil {
		healthRegistry.Register("redis", health.RedisCheck(a.redisClient))
	}
	if a.mongoClient != nil {
		healthRegistry.Register("mongodb", health.MongoCheck(a.mongoClient))
	}

	engine.GET("/health", func(c *gin.Context) {
		report := healthRegistry.Run(c.Request.Context())
		statusCode := http.StatusOK
		if report.Status == health.StatusUnhealthy {
			statusCode = http.StatusServiceUnavailable
		}
		c.JSON(statusCode, report)
	})

	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	a.engine = engine
	return nil
}

func (a *App) initServer() error {
	a.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", a.config.Server.Port),
		Handler:      a.engine,
		ReadTimeout:  a.config.Server.ReadTimeoutSeconds * time.Second,
		WriteTimeout: a.config.Server.WriteTimeoutSeconds * time.Second,
	}
	return nil
}

func (a *App) Run(ctx context.Context) error {
	if a.reloader != nil {
		go func() {
			if err := a.reloader.Start(ctx); err != nil {
				a.logger.ErrorwCtx(ctx, "Rule reloader stopped", "error", err)
			}
		}()
	}

	errChan := make(chan error, 1)
	go func() {
		a.logger.InfowCtx(ctx, "Server listening", "port", a.config.Server.Port)
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		return a.Shutdown(ctx)
	case err := <-errChan:
		return err
	}
}

func (a *App) Shutdown(ctx context.Context) error {
	a.logger.InfowCtx(ctx, "Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
	defer cancel()

	var errs []error

	if a.server != nil {
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("server shutdown error: %w", err))
		}
	}

	if a.orchestrator != nil {
		if err := a.orchestrator.Flush(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("adapter flush error: %w", err))
		}
		if err := a.orchestrator.Destroy(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("adapter destroy error: %w", err))
		}
	}

	if a.tracerProvider != nil {
		if err := a.tracerProvider.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("tracer provider shutdown error: %w", err))
		}
	}

	dbErrs := a.dbConnector.ShutdownDatabases(shutdownCtx, a.redisClient, a.db, a.mongoClient)
	errs = append(errs, dbErrs...)

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}

	a.logger.InfowCtx(ctx, "Server exited successfully")
	return nil
}

func (a *App) mongoDBName() string {
	if a.config.Database.MongoDB.Database != "" {
		return a.config.Database.MongoDB.Database
	}
	return constants.DefaultMongoDBName
}
