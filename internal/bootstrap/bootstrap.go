package bootstrap

import (
	"context"
	"net/http"

	"github.com/expense-tracker/authgate/internal/config"
	"github.com/expense-tracker/authgate/internal/core"
	"github.com/expense-tracker/authgate/internal/metrics"
	"github.com/expense-tracker/authgate/internal/models"
	"github.com/expense-tracker/authgate/internal/services"
	"github.com/expense-tracker/authgate/internal/store"
	"github.com/expense-tracker/authgate/internal/token"

	"github.com/appleboy/graceful"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Application holds all initialized components
type Application struct {
	Config *config.Config
	Logger *zap.Logger

	// Core infrastructure
	DB          *store.Store
	Metrics     metrics.Recorder
	RedisClient *redis.Client
	UserCache   core.Cache[models.User]

	// Identity and credentials
	Identity core.IdentityProvider
	Tokens   *token.LocalTokenProvider

	// Services
	UserService          *services.UserService
	AuthService          *services.AuthService
	AuthorizationService *services.AuthorizationService

	// HTTP
	Router *gin.Engine
	Server *http.Server
}

// Run initializes the application and blocks until a shutdown signal has
// been handled.
func Run(cfg *config.Config, logger *zap.Logger) error {
	app, err := New(context.Background(), cfg, logger)
	if err != nil {
		return err
	}
	app.startWithGracefulShutdown()
	return nil
}

// New validates the configuration and builds every component without
// starting the listener.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Application, error) {
	app := &Application{
		Config: cfg,
		Logger: logger,
	}

	// Phase 1: Validate configuration
	if err := validateConfiguration(cfg, logger); err != nil {
		return nil, err
	}

	// Phase 2: Initialize infrastructure
	if err := app.initializeInfrastructure(ctx); err != nil {
		app.closeInfrastructure()
		return nil, err
	}

	// Phase 3: Initialize business layer
	if err := app.initializeBusinessLayer(); err != nil {
		app.closeInfrastructure()
		return nil, err
	}

	// Phase 4: Initialize HTTP layer
	if err := app.initializeHTTPLayer(); err != nil {
		app.closeInfrastructure()
		return nil, err
	}

	return app, nil
}

// initializeInfrastructure sets up database, metrics, Redis and the user cache
func (app *Application) initializeInfrastructure(ctx context.Context) error {
	var err error

	app.DB, err = initializeDatabase(ctx, app.Config)
	if err != nil {
		return err
	}

	app.Metrics = initializeMetrics(app.Config, app.Logger)

	app.RedisClient, err = initializeRedisClient(ctx, app.Config, app.Logger)
	if err != nil {
		return err
	}

	app.UserCache, err = initializeUserCache(ctx, app.Config, app.Logger)
	if err != nil {
		return err
	}

	return nil
}

// initializeBusinessLayer sets up the identity provider, token provider and services
func (app *Application) initializeBusinessLayer() error {
	httpClient, err := createIdentityHTTPClient(app.Config, app.Logger)
	if err != nil {
		return err
	}
	app.Identity = initializeIdentityProvider(app.Config, httpClient, app.Logger, app.Metrics)
	app.Tokens = token.NewLocalTokenProvider(app.Config, app.Logger, app.Metrics)

	app.UserService,
		app.AuthService,
		app.AuthorizationService = initializeServices(
		app.Config,
		app.DB,
		app.UserCache,
		app.Identity,
		app.Tokens,
		app.Logger,
		app.Metrics,
	)
	return nil
}

// initializeHTTPLayer sets up handlers, router, and server
func (app *Application) initializeHTTPLayer() error {
	h := initializeHandlers(app)

	limiters, err := setupRateLimiting(app.Config, app.RedisClient, app.Logger)
	if err != nil {
		return err
	}

	app.Router = setupRouter(app, h, limiters)
	app.Server = createHTTPServer(app.Config, app.Router)
	return nil
}

// startWithGracefulShutdown starts the server and handles graceful shutdown
func (app *Application) startWithGracefulShutdown() {
	m := graceful.NewManager()

	addServerRunningJob(m, app.Server, app.Logger)
	addServerShutdownJob(m, app.Server, app.Config, app.Logger)
	addAuthorizationCleanupJob(m, app.Config, app.AuthorizationService, app.Logger)
	addRedisClientShutdownJob(m, app.RedisClient, app.Logger)
	addCacheShutdownJob(m, app.UserCache, app.Logger)
	addDatabaseShutdownJob(m, app.Config, app.DB, app.Logger)

	<-m.Done()
	_ = app.Logger.Sync()
}

// closeInfrastructure releases whatever was opened before a failed startup.
func (app *Application) closeInfrastructure() {
	if app.UserCache != nil {
		_ = app.UserCache.Close()
	}
	if app.RedisClient != nil {
		_ = app.RedisClient.Close()
	}
	if app.DB != nil {
		ctx, cancel := context.WithTimeout(context.Background(), app.Config.DBCloseTimeout)
		defer cancel()
		_ = app.DB.Close(ctx)
	}
}
