package bootstrap

import (
	"fmt"
	"net/http"

	"github.com/expense-tracker/authgate/internal/config"
	"github.com/expense-tracker/authgate/internal/core"
	"github.com/expense-tracker/authgate/internal/identity"
	"github.com/expense-tracker/authgate/internal/metrics"
	"github.com/expense-tracker/authgate/internal/retry"

	"github.com/appleboy/go-httpclient"
	"go.uber.org/zap"
)

// createIdentityHTTPClient creates the outbound client for Google key fetches
// and code exchanges: bounded timeout, retries on network errors and 5xx/429.
func createIdentityHTTPClient(cfg *config.Config, logger *zap.Logger) (*http.Client, error) {
	transport := retry.NewTransport(
		retry.WithBase(http.DefaultTransport.(*http.Transport).Clone()),
		retry.WithMaxRetries(cfg.OAuthMaxRetries),
		retry.WithInitialRetryDelay(cfg.OAuthRetryDelay),
		retry.WithMaxRetryDelay(cfg.OAuthMaxRetryDelay),
		retry.WithOnRetry(func(attempt int, err error, resp *http.Response) {
			fields := []zap.Field{zap.Int("attempt", attempt)}
			if err != nil {
				fields = append(fields, zap.Error(err))
			}
			if resp != nil {
				fields = append(fields, zap.Int("status", resp.StatusCode))
			}
			logger.Warn("retrying identity provider request", fields...)
		}),
	)

	client, err := httpclient.NewClient(
		httpclient.WithTimeout(cfg.OAuthTimeout),
		httpclient.WithTransport(transport),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create identity provider HTTP client: %w", err)
	}
	return client, nil
}

// initializeIdentityProvider builds the Google provider from configuration.
func initializeIdentityProvider(
	cfg *config.Config,
	httpClient *http.Client,
	logger *zap.Logger,
	recorder metrics.Recorder,
) core.IdentityProvider {
	logger.Info("identity provider: google",
		zap.String("client_id", cfg.GoogleClientID),
		zap.String("redirect_url", cfg.GoogleRedirectURL))

	return identity.NewGoogleProvider(identity.GoogleConfig{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.GoogleRedirectURL,
		JWKSURL:      cfg.GoogleJWKSURL,
		HTTPClient:   httpClient,
	}, logger, recorder)
}
