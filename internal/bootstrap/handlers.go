package bootstrap

import (
	"github.com/expense-tracker/authgate/internal/handlers"
)

// handlerSet holds all HTTP handlers
type handlerSet struct {
	auth   *handlers.AuthHandler
	oauth  *handlers.OAuthHandler
	admin  *handlers.AdminHandler
	health *handlers.HealthHandler
}

// initializeHandlers creates all HTTP handlers
func initializeHandlers(app *Application) handlerSet {
	checks := map[string]handlers.HealthChecker{
		"database":   app.DB,
		"user_cache": app.UserCache,
	}
	if app.RedisClient != nil {
		checks["redis"] = redisHealth{client: app.RedisClient}
	}

	return handlerSet{
		auth: handlers.NewAuthHandler(
			app.AuthService,
			app.UserService,
			app.Logger.Named("http"),
		),
		oauth: handlers.NewOAuthHandler(
			app.AuthorizationService,
			app.Config,
			app.Logger.Named("http"),
		),
		admin:  handlers.NewAdminHandler(app.UserService, app.Logger.Named("http")),
		health: handlers.NewHealthHandler(checks),
	}
}
