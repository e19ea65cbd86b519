package bootstrap

import (
	"github.com/expense-tracker/authgate/internal/config"
	"github.com/expense-tracker/authgate/internal/handlers"
	"github.com/expense-tracker/authgate/internal/metrics"
	"github.com/expense-tracker/authgate/internal/middleware"
	"github.com/expense-tracker/authgate/internal/version"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// setupRouter configures the Gin router with all routes and middleware
func setupRouter(app *Application, h handlerSet, limiters rateLimitMiddlewares) *gin.Engine {
	setupGinMode(app.Config, app.Logger)
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(app.Logger.Named("http")))
	r.Use(metrics.HTTPMetricsMiddleware(app.Metrics))

	r.GET("/health", h.health.Health)
	setupMetricsEndpoint(r, app.Config, app.Logger)

	requireBearer := middleware.RequireBearer(
		app.Tokens,
		handlers.ResourceMetadataURL(app.Config),
		app.Logger.Named("http"),
	)
	setupAllRoutes(r, h, limiters, requireBearer)

	app.Logger.Info("expense auth gateway configured",
		zap.String("version", version.String()),
		zap.String("addr", app.Config.ServerAddr),
		zap.String("base_url", app.Config.BaseURL),
		zap.Strings("oauth_clients", app.Config.ClientIDs()))

	return r
}

// setupAllRoutes configures all application routes
func setupAllRoutes(
	r *gin.Engine,
	h handlerSet,
	limiters rateLimitMiddlewares,
	requireBearer gin.HandlerFunc,
) {
	// Discovery
	r.GET(handlers.PathAuthorizationServerConfig, h.oauth.AuthorizationServerMetadata)
	r.GET(handlers.PathProtectedResourceConfig, h.oauth.ProtectedResourceMetadata)

	// Browser sign-in
	authAPI := r.Group("/api/auth")
	{
		authAPI.POST("/login", limiters.login, h.auth.Login)
		authAPI.POST("/google", limiters.login, h.auth.GoogleLogin)
		authAPI.GET("/me", requireBearer, h.auth.Me)
	}

	// Authorization code + PKCE for agent clients
	oauth := r.Group("/oauth")
	{
		oauth.GET("/authorize", limiters.authorize, h.oauth.Authorize)
		oauth.GET("/callback", limiters.callback, h.oauth.Callback)
		oauth.POST("/token", limiters.token, h.oauth.Token)
	}

	// Admin routes (require admin role)
	admin := r.Group("/api/admin")
	admin.Use(requireBearer, middleware.RequireAdmin())
	{
		admin.GET("/users", h.admin.ListUsers)
		admin.POST("/users/:id/elevate", h.admin.Elevate)
	}
}

// setupMetricsEndpoint configures the Prometheus metrics endpoint
func setupMetricsEndpoint(r *gin.Engine, cfg *config.Config, logger *zap.Logger) {
	switch {
	case !cfg.MetricsEnabled:
		logger.Info("prometheus metrics endpoint disabled")
	case cfg.MetricsToken != "":
		logger.Info("prometheus metrics enabled at /metrics with bearer token authentication")
		r.GET(
			"/metrics",
			middleware.MetricsAuthMiddleware(cfg.MetricsToken),
			gin.WrapH(promhttp.Handler()),
		)
	default:
		logger.Warn("prometheus metrics enabled at /metrics (no authentication)")
		r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}
}

// setupGinMode sets Gin mode based on environment configuration.
// Test mode set by a caller is left alone.
func setupGinMode(cfg *config.Config, logger *zap.Logger) {
	if gin.Mode() == gin.TestMode {
		return
	}
	mode := gin.DebugMode
	if cfg.IsProduction() {
		mode = gin.ReleaseMode
	}
	gin.SetMode(mode)
	logger.Info("gin mode", zap.String("mode", mode))
}
