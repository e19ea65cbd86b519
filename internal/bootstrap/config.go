package bootstrap

import (
	"errors"
	"fmt"

	"github.com/expense-tracker/authgate/internal/config"

	"go.uber.org/zap"
)

// validateConfiguration validates all configuration settings
func validateConfiguration(cfg *config.Config, logger *zap.Logger) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if err := validateAuthorizationServerConfig(cfg); err != nil {
		return fmt.Errorf("invalid authorization server configuration: %w", err)
	}

	if len(cfg.OAuthClients) == 0 {
		logger.Warn("no OAuth clients registered; /oauth/authorize will reject every request")
	}
	if len(cfg.AdminEmails) == 0 {
		logger.Warn("ADMIN_EMAILS is empty; no user can become admin until one is elevated")
	}
	return nil
}

// validateAuthorizationServerConfig checks that the PKCE flow can complete
// a Google code exchange when clients are registered.
func validateAuthorizationServerConfig(cfg *config.Config) error {
	if len(cfg.OAuthClients) == 0 {
		return nil
	}
	if cfg.GoogleClientSecret == "" {
		return errors.New("GOOGLE_CLIENT_SECRET is required when OAUTH_CLIENTS is set")
	}
	if cfg.GoogleRedirectURL == "" {
		return errors.New("GOOGLE_REDIRECT_URL is required when OAUTH_CLIENTS is set")
	}
	if cfg.OAuthCleanupInterval <= 0 {
		return errors.New("OAUTH_CLEANUP_INTERVAL must be positive")
	}
	return nil
}
