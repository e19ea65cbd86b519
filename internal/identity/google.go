package identity

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/expense-tracker/authgate/internal/core"

	"github.com/coreos/go-oidc/v3/oidc"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// Google publishes ID tokens under either issuer spelling.
var googleIssuers = map[string]bool{
	"accounts.google.com":         true,
	"https://accounts.google.com": true,
}

// DefaultJWKSURL is Google's signing key endpoint.
const DefaultJWKSURL = "https://www.googleapis.com/oauth2/v3/certs"

var _ core.IdentityProvider = (*GoogleProvider)(nil)

// GoogleConfig holds the registered OAuth client and transport for Google.
type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string // our /oauth/callback
	JWKSURL      string

	// HTTPClient is used for key fetches and code exchange. It should carry
	// a bounded timeout and retry transport.
	HTTPClient *http.Client

	// Overrides for tests.
	KeySet   oidc.KeySet
	Endpoint *oauth2.Endpoint
	Now      func() time.Time
}

// GoogleProvider verifies Google ID tokens and completes Google's
// authorization-code sign-in.
type GoogleProvider struct {
	verifier   *oidc.IDTokenVerifier
	oauth      *oauth2.Config
	httpClient *http.Client
	logger     *zap.Logger
	metrics    core.Recorder
}

// NewGoogleProvider builds a provider. Signing keys are fetched lazily,
// cached, and refetched when a token names an unknown key id.
func NewGoogleProvider(
	cfg GoogleConfig,
	logger *zap.Logger,
	recorder core.Recorder,
) *GoogleProvider {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}

	keySet := cfg.KeySet
	if keySet == nil {
		jwksURL := cfg.JWKSURL
		if jwksURL == "" {
			jwksURL = DefaultJWKSURL
		}
		keySet = oidc.NewRemoteKeySet(oidc.ClientContext(context.Background(), httpClient), jwksURL)
	}

	endpoint := google.Endpoint
	if cfg.Endpoint != nil {
		endpoint = *cfg.Endpoint
	}

	verifier := oidc.NewVerifier("https://accounts.google.com", keySet, &oidc.Config{
		ClientID: cfg.ClientID,
		// Both issuer spellings are valid; checked after signature verification.
		SkipIssuerCheck: true,
		Now:             cfg.Now,
	})

	return &GoogleProvider{
		verifier: verifier,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     endpoint,
			Scopes:       []string{oidc.ScopeOpenID, "email", "profile"},
		},
		httpClient: httpClient,
		logger:     logger,
		metrics:    recorder,
	}
}

type googleClaims struct {
	Email         string `json:"email"`
	EmailVerified any    `json:"email_verified"` // bool, or "true" in older tokens
	Name          string `json:"name"`
	Picture       string `json:"picture"`
}

func (c googleClaims) emailVerified() bool {
	switch v := c.EmailVerified.(type) {
	case bool:
		return v
	case string:
		return strings.EqualFold(v, "true")
	}
	return false
}

// Verify checks signature, exp, iss and aud of a Google ID token.
func (p *GoogleProvider) Verify(ctx context.Context, rawIDToken string) (*core.ExternalIdentity, error) {
	start := time.Now()
	id, err := p.verify(ctx, rawIDToken)
	p.metrics.RecordIdentityProviderCall("verify", err == nil, time.Since(start))
	if err != nil {
		p.logger.Info("identity assertion rejected", zap.Error(err))
	}
	return id, err
}

func (p *GoogleProvider) verify(ctx context.Context, rawIDToken string) (*core.ExternalIdentity, error) {
	ctx = oidc.ClientContext(ctx, p.httpClient)

	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, classifyVerifyError(err)
	}
	if !googleIssuers[idToken.Issuer] {
		return nil, fmt.Errorf("%w: %q", ErrIssuerMismatch, idToken.Issuer)
	}

	var claims googleClaims
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if claims.Email == "" {
		return nil, ErrMissingEmail
	}

	return &core.ExternalIdentity{
		SubjectID:     idToken.Subject,
		Email:         strings.ToLower(claims.Email),
		EmailVerified: claims.emailVerified(),
		Name:          claims.Name,
		PictureURL:    claims.Picture,
	}, nil
}

func classifyVerifyError(err error) error {
	var expired *oidc.TokenExpiredError
	if errors.As(err, &expired) {
		return fmt.Errorf("%w: %v", ErrExpired, err)
	}
	if isNetworkError(err) || strings.Contains(err.Error(), "fetching keys") {
		return fmt.Errorf("%w: %v", ErrProviderUnreachable, err)
	}
	if strings.Contains(err.Error(), "expected audience") {
		return fmt.Errorf("%w: %v", ErrAudienceMismatch, err)
	}
	return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
}

func isNetworkError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}

// AuthCodeURL returns Google's consent page URL carrying state.
func (p *GoogleProvider) AuthCodeURL(state string) string {
	return p.oauth.AuthCodeURL(state, oauth2.SetAuthURLParam("prompt", "select_account"))
}

// Exchange redeems Google's authorization code and verifies the returned ID token.
func (p *GoogleProvider) Exchange(ctx context.Context, code string) (*core.ExternalIdentity, error) {
	start := time.Now()
	tok, err := p.oauth.Exchange(context.WithValue(ctx, oauth2.HTTPClient, p.httpClient), code)
	p.metrics.RecordIdentityProviderCall("exchange", err == nil, time.Since(start))
	if err != nil {
		p.logger.Warn("google code exchange failed", zap.Error(err))
		return nil, classifyExchangeError(err)
	}

	rawIDToken, ok := tok.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return nil, fmt.Errorf("%w: token response has no id_token", ErrExchangeFailed)
	}
	return p.Verify(ctx, rawIDToken)
}

func classifyExchangeError(err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) && re.Response != nil {
		if re.Response.StatusCode >= http.StatusInternalServerError ||
			re.Response.StatusCode == http.StatusTooManyRequests {
			return fmt.Errorf("%w: %v", ErrProviderUnreachable, err)
		}
		return fmt.Errorf("%w: %v", ErrExchangeFailed, err)
	}
	if isNetworkError(err) {
		return fmt.Errorf("%w: %v", ErrProviderUnreachable, err)
	}
	return fmt.Errorf("%w: %v", ErrExchangeFailed, err)
}
