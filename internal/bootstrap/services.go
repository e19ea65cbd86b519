package bootstrap

import (
	"github.com/expense-tracker/authgate/internal/config"
	"github.com/expense-tracker/authgate/internal/core"
	"github.com/expense-tracker/authgate/internal/metrics"
	"github.com/expense-tracker/authgate/internal/models"
	"github.com/expense-tracker/authgate/internal/services"
	"github.com/expense-tracker/authgate/internal/store"

	"go.uber.org/zap"
)

// initializeServices creates all business logic services
func initializeServices(
	cfg *config.Config,
	db *store.Store,
	userCache core.Cache[models.User],
	idp core.IdentityProvider,
	tokens core.TokenProvider,
	logger *zap.Logger,
	recorder metrics.Recorder,
) (*services.UserService, *services.AuthService, *services.AuthorizationService) {
	userService := services.NewUserService(
		db,
		cfg,
		userCache,
		logger.Named("users"),
		recorder,
	)
	authService := services.NewAuthService(
		idp,
		userService,
		tokens,
		logger.Named("auth"),
		recorder,
	)
	authorizationService := services.NewAuthorizationService(
		db,
		cfg,
		idp,
		userService,
		tokens,
		logger.Named("oauth"),
		recorder,
	)

	return userService, authService, authorizationService
}
