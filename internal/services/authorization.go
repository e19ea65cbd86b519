package services

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"time"

	"github.com/expense-tracker/authgate/internal/config"
	"github.com/expense-tracker/authgate/internal/core"
	"github.com/expense-tracker/authgate/internal/identity"
	"github.com/expense-tracker/authgate/internal/models"
	"github.com/expense-tracker/authgate/internal/store"
	"github.com/expense-tracker/authgate/internal/util"

	"go.uber.org/zap"
)

// Grant types accepted at the token endpoint.
const (
	GrantTypeAuthorizationCode = "authorization_code"
	GrantTypeRefreshToken      = "refresh_token"
)

const maxStateLength = 1024

var (
	// base64url(SHA-256) is always 43 characters without padding.
	codeChallengePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{43}$`)
	// RFC 7636 §4.1 unreserved characters, 43 to 128 long.
	codeVerifierPattern = regexp.MustCompile(`^[A-Za-z0-9._~-]{43,128}$`)
)

// AuthorizeParams are the query parameters of GET /oauth/authorize.
type AuthorizeParams struct {
	ClientID            string
	RedirectURI         string
	ResponseType        string
	CodeChallenge       string
	CodeChallengeMethod string
	State               string
}

// CallbackParams are the query parameters Google sends to GET /oauth/callback.
type CallbackParams struct {
	State string // our request_id
	Code  string
	Error string
}

// TokenRequest is the body of POST /oauth/token.
type TokenRequest struct {
	GrantType    string
	Code         string
	CodeVerifier string
	RedirectURI  string
	ClientID     string
	RefreshToken string
}

// TokenGrant is a successful token endpoint response. Refresh is nil when
// refresh tokens are disabled.
type TokenGrant struct {
	Access  *core.TokenResult
	Refresh *core.TokenResult
}

// RedirectError is an authorize failure that is reported to the client by
// redirecting to its already validated redirect_uri.
type RedirectError struct {
	RedirectURI string
	State       string
	Code        string
	Description string
}

func (e *RedirectError) Error() string {
	return e.Code + ": " + e.Description
}

// Location is the redirect target carrying error, error_description and state.
func (e *RedirectError) Location() (string, error) {
	q := url.Values{}
	q.Set("error", e.Code)
	if e.Description != "" {
		q.Set("error_description", e.Description)
	}
	if e.State != "" {
		q.Set("state", e.State)
	}
	return util.AppendQuery(e.RedirectURI, q)
}

// AuthorizationOption configures an AuthorizationService.
type AuthorizationOption func(*AuthorizationService)

// WithClock overrides the time source used for expiry decisions.
func WithClock(now func() time.Time) AuthorizationOption {
	return func(s *AuthorizationService) {
		s.now = now
	}
}

// AuthorizationService runs the OAuth 2.1 authorization code flow with PKCE
// for agent clients. Requests and codes live in the shared store so any
// process may serve any step.
type AuthorizationService struct {
	store    *store.Store
	config   *config.Config
	identity core.IdentityProvider
	users    *UserService
	tokens   core.TokenProvider
	logger   *zap.Logger
	metrics  core.Recorder
	now      func() time.Time
}

func NewAuthorizationService(
	s *store.Store,
	cfg *config.Config,
	idp core.IdentityProvider,
	users *UserService,
	tokens core.TokenProvider,
	logger *zap.Logger,
	recorder core.Recorder,
	opts ...AuthorizationOption,
) *AuthorizationService {
	svc := &AuthorizationService{
		store:    s,
		config:   cfg,
		identity: idp,
		users:    users,
		tokens:   tokens,
		logger:   logger,
		metrics:  recorder,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// ValidateClient checks client_id and redirect_uri against the allow-list.
func (s *AuthorizationService) ValidateClient(clientID, redirectURI string) error {
	uris, ok := s.config.OAuthClients[clientID]
	if !ok {
		return ErrInvalidClient
	}
	if !util.ContainsRedirectURI(uris, redirectURI) {
		return ErrInvalidRedirectURI
	}
	return nil
}

// Authorize validates an authorization request, persists it and returns the
// Google consent URL to send the user agent to. Client and redirect URI
// failures are returned as plain errors and must never be redirected; other
// validation failures come back as *RedirectError.
func (s *AuthorizationService) Authorize(ctx context.Context, p AuthorizeParams) (string, error) {
	if err := s.ValidateClient(p.ClientID, p.RedirectURI); err != nil {
		s.metrics.RecordAuthorizationStep("authorize", "invalid_client")
		s.logger.Warn("authorize rejected",
			zap.String("client_id", p.ClientID),
			zap.String("redirect_uri", p.RedirectURI),
			zap.Error(err))
		return "", err
	}

	if desc := validateAuthorizeParams(p); desc != "" {
		s.metrics.RecordAuthorizationStep("authorize", OAuthErrInvalidRequest)
		return "", &RedirectError{
			RedirectURI: p.RedirectURI,
			State:       p.State,
			Code:        OAuthErrInvalidRequest,
			Description: desc,
		}
	}

	requestID, err := util.RandomURLToken(32)
	if err != nil {
		return "", fmt.Errorf("generate request id: %w", err)
	}

	now := s.now().UTC()
	req := &models.AuthorizationRequest{
		RequestID:           requestID,
		ClientID:            p.ClientID,
		RedirectURI:         p.RedirectURI,
		CodeChallenge:       p.CodeChallenge,
		CodeChallengeMethod: models.CodeChallengeMethodS256,
		State:               p.State,
		ExpiresAt:           now.Add(s.config.AuthRequestExpiration),
		CreatedAt:           now,
	}
	if err := s.store.CreateAuthorizationRequest(ctx, req); err != nil {
		return "", fmt.Errorf("save authorization request: %w", err)
	}

	s.metrics.RecordAuthorizationStep("authorize", "ok")
	s.logger.Debug("authorization request started",
		zap.String("client_id", p.ClientID), zap.Time("expires_at", req.ExpiresAt))

	return s.identity.AuthCodeURL(requestID), nil
}

func validateAuthorizeParams(p AuthorizeParams) string {
	switch {
	case p.ResponseType != "" && p.ResponseType != "code":
		return "response_type must be code"
	case p.CodeChallengeMethod != models.CodeChallengeMethodS256:
		return "code_challenge_method must be S256"
	case !codeChallengePattern.MatchString(p.CodeChallenge):
		return "code_challenge must be a base64url encoded SHA-256 digest"
	case len(p.State) > maxStateLength:
		return "state is too long"
	}
	return ""
}

// Callback completes the identity step. On success it returns the client
// redirect carrying the new code and the client's original state. When the
// user declined at Google, the returned URL carries error=access_denied.
func (s *AuthorizationService) Callback(ctx context.Context, p CallbackParams) (string, error) {
	location, err := s.callback(ctx, p)
	result := "ok"
	if err != nil {
		result = callbackResult(err)
	}
	s.metrics.RecordAuthorizationStep("callback", result)
	return location, err
}

func callbackResult(err error) string {
	var redirect *RedirectError
	switch {
	case errors.As(err, &redirect):
		return redirect.Code
	case errors.Is(err, ErrRequestNotUsable):
		return "not_usable"
	case errors.Is(err, ErrIdentityUnavailable):
		return "provider_unavailable"
	default:
		return "error"
	}
}

func (s *AuthorizationService) callback(ctx context.Context, p CallbackParams) (string, error) {
	if p.State == "" {
		return "", ErrRequestNotUsable
	}
	req, err := s.store.GetAuthorizationRequest(ctx, p.State)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return "", ErrRequestNotUsable
		}
		return "", err
	}
	if req.IsConsumed() || req.IsExpired(s.now()) {
		return "", ErrRequestNotUsable
	}

	deny := func(desc string) error {
		if err := s.consume(ctx, req.RequestID); err != nil {
			return err
		}
		return &RedirectError{
			RedirectURI: req.RedirectURI,
			State:       req.State,
			Code:        OAuthErrAccessDenied,
			Description: desc,
		}
	}

	if p.Error != "" {
		s.logger.Info("user did not complete sign-in", zap.String("provider_error", p.Error))
		return "", deny("sign-in was cancelled")
	}
	if p.Code == "" {
		return "", fmt.Errorf("%w: missing code", ErrInvalidRequest)
	}

	ext, err := s.identity.Exchange(ctx, p.Code)
	if err != nil {
		if identity.IsProviderUnavailable(err) {
			return "", fmt.Errorf("%w: %v", ErrIdentityUnavailable, err)
		}
		return "", deny("identity verification failed")
	}

	user, err := s.users.UpsertFromIdentity(ctx, ext)
	if err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return "", deny("account conflict")
		}
		return "", err
	}

	if err := s.consume(ctx, req.RequestID); err != nil {
		return "", err
	}

	plainCode, err := util.RandomURLToken(32)
	if err != nil {
		return "", fmt.Errorf("generate authorization code: %w", err)
	}
	now := s.now().UTC()
	code := &models.AuthorizationCode{
		CodeHash:            util.SHA256Hex(plainCode),
		RequestID:           req.RequestID,
		UserID:              user.ID,
		ClientID:            req.ClientID,
		RedirectURI:         req.RedirectURI,
		CodeChallenge:       req.CodeChallenge,
		CodeChallengeMethod: req.CodeChallengeMethod,
		ExpiresAt:           now.Add(s.config.AuthCodeExpiration),
		CreatedAt:           now,
	}
	if err := s.store.CreateAuthorizationCode(ctx, code); err != nil {
		return "", fmt.Errorf("save authorization code: %w", err)
	}

	q := url.Values{}
	q.Set("code", plainCode)
	if req.State != "" {
		q.Set("state", req.State)
	}
	s.logger.Info("authorization code issued",
		zap.String("client_id", req.ClientID), zap.String("user_id", user.ID))
	return util.AppendQuery(req.RedirectURI, q)
}

func (s *AuthorizationService) consume(ctx context.Context, requestID string) error {
	if err := s.store.ConsumeAuthorizationRequest(ctx, requestID, s.now()); err != nil {
		if errors.Is(err, store.ErrAuthRequestNotUsable) {
			return ErrRequestNotUsable
		}
		return err
	}
	return nil
}

// Token serves POST /oauth/token for both supported grant types.
func (s *AuthorizationService) Token(ctx context.Context, r TokenRequest) (*TokenGrant, error) {
	var (
		grant *TokenGrant
		err   error
	)
	grantType := r.GrantType
	switch grantType {
	case "", GrantTypeAuthorizationCode:
		grantType = GrantTypeAuthorizationCode
		grant, err = s.exchangeCode(ctx, r)
	case GrantTypeRefreshToken:
		grant, err = s.refresh(ctx, r)
	default:
		err = ErrUnsupportedGrantType
	}

	if err != nil {
		code, _ := OAuthErrorCode(err)
		s.metrics.RecordAuthorizationStep("token", code)
		s.logger.Info("token request rejected", zap.String("grant_type", grantType), zap.Error(err))
		return nil, err
	}

	s.metrics.RecordAuthorizationStep("token", "ok")
	s.metrics.RecordTokenIssued(core.TokenCategoryAccess, grantType)
	if grant.Refresh != nil {
		s.metrics.RecordTokenIssued(core.TokenCategoryRefresh, grantType)
	}
	return grant, nil
}

func (s *AuthorizationService) exchangeCode(ctx context.Context, r TokenRequest) (*TokenGrant, error) {
	switch {
	case r.Code == "":
		return nil, fmt.Errorf("%w: code is required", ErrInvalidRequest)
	case r.CodeVerifier == "":
		return nil, fmt.Errorf("%w: code_verifier is required", ErrInvalidRequest)
	case r.RedirectURI == "":
		return nil, fmt.Errorf("%w: redirect_uri is required", ErrInvalidRequest)
	case !codeVerifierPattern.MatchString(r.CodeVerifier):
		return nil, fmt.Errorf("%w: malformed code_verifier", ErrInvalidRequest)
	}
	if r.ClientID != "" {
		if _, ok := s.config.OAuthClients[r.ClientID]; !ok {
			return nil, ErrInvalidClient
		}
	}

	codeHash := util.SHA256Hex(r.Code)
	rec, err := s.store.GetAuthorizationCodeByHash(ctx, codeHash)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: unknown code", ErrInvalidGrant)
		}
		return nil, err
	}

	if rec.IsRedeemed() || rec.IsExpired(s.now()) {
		return nil, ErrCodeNotUsable
	}
	if r.ClientID != "" && r.ClientID != rec.ClientID {
		return nil, fmt.Errorf("%w: code was issued to another client", ErrInvalidGrant)
	}
	if r.RedirectURI != rec.RedirectURI {
		return nil, fmt.Errorf("%w: redirect_uri mismatch", ErrInvalidGrant)
	}
	challenge := util.S256Challenge(r.CodeVerifier)
	if subtle.ConstantTimeCompare([]byte(challenge), []byte(rec.CodeChallenge)) != 1 {
		return nil, fmt.Errorf("%w: code_verifier does not match", ErrInvalidGrant)
	}

	// Mark as redeemed only if still unredeemed and unexpired. Of concurrent
	// redeemers exactly one passes; the rest see ErrAuthCodeNotUsable.
	if err := s.store.RedeemAuthorizationCode(ctx, codeHash, s.now()); err != nil {
		if errors.Is(err, store.ErrAuthCodeNotUsable) {
			return nil, ErrCodeNotUsable
		}
		return nil, err
	}

	return s.grantFor(ctx, rec.UserID)
}

func (s *AuthorizationService) refresh(ctx context.Context, r TokenRequest) (*TokenGrant, error) {
	if r.RefreshToken == "" {
		return nil, fmt.Errorf("%w: refresh_token is required", ErrInvalidRequest)
	}
	if !s.config.EnableRefreshTokens {
		return nil, ErrUnsupportedGrantType
	}
	claims, err := s.tokens.VerifyRefresh(r.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidGrant, err)
	}
	return s.grantFor(ctx, claims.UserID)
}

// grantFor issues tokens from the stored directory record, bypassing the
// user cache: another process may have changed is_admin, and only its own
// cache entry was invalidated.
func (s *AuthorizationService) grantFor(ctx context.Context, userID string) (*TokenGrant, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: user no longer exists", ErrInvalidGrant)
		}
		return nil, err
	}

	subject := core.TokenSubject{UserID: user.ID, Email: user.Email, IsAdmin: user.IsAdmin}
	access, err := s.tokens.Issue(subject)
	if err != nil {
		return nil, err
	}
	grant := &TokenGrant{Access: access}

	if s.config.EnableRefreshTokens {
		refresh, err := s.tokens.IssueRefresh(subject)
		if err != nil {
			return nil, err
		}
		grant.Refresh = refresh
	}
	return grant, nil
}

// CleanupExpired deletes authorization requests and codes past their expiry.
func (s *AuthorizationService) CleanupExpired(ctx context.Context) error {
	requests, codes, err := s.store.DeleteExpiredAuthorizationRecords(ctx, s.now())
	if err != nil {
		return fmt.Errorf("purge authorization records: %w", err)
	}
	s.metrics.RecordAuthorizationRecordsPurged("request", requests)
	s.metrics.RecordAuthorizationRecordsPurged("code", codes)
	if requests > 0 || codes > 0 {
		s.logger.Info("purged expired authorization records",
			zap.Int64("requests", requests), zap.Int64("codes", codes))
	}
	return nil
}
