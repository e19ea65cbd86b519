package services

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/expense-tracker/authgate/internal/cache"
	"github.com/expense-tracker/authgate/internal/config"
	"github.com/expense-tracker/authgate/internal/identity"
	"github.com/expense-tracker/authgate/internal/metrics"
	"github.com/expense-tracker/authgate/internal/models"
	"github.com/expense-tracker/authgate/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"
)

func validAuthorizeParams() AuthorizeParams {
	return AuthorizeParams{
		ClientID:            testClientID,
		RedirectURI:         testRedirectURI,
		ResponseType:        "code",
		CodeChallenge:       testChallenge,
		CodeChallengeMethod: "S256",
		State:               "client-state-xyz",
	}
}

func (f *fixture) expectConsentURL() {
	f.idp.EXPECT().AuthCodeURL(gomock.Any()).DoAndReturn(func(state string) string {
		return "https://accounts.google.com/o/oauth2/auth?state=" + url.QueryEscape(state)
	}).AnyTimes()
}

// startFlow runs /oauth/authorize and returns the request id Google will echo back.
func (f *fixture) startFlow(t *testing.T, p AuthorizeParams) string {
	t.Helper()
	f.expectConsentURL()

	location, err := f.authz.Authorize(context.Background(), p)
	require.NoError(t, err)

	u, err := url.Parse(location)
	require.NoError(t, err)
	requestID := u.Query().Get("state")
	require.NotEmpty(t, requestID)
	return requestID
}

// issueCode runs authorize and callback and returns the plaintext code.
func (f *fixture) issueCode(t *testing.T) string {
	t.Helper()
	requestID := f.startFlow(t, validAuthorizeParams())
	f.idp.EXPECT().
		Exchange(gomock.Any(), "google-code").
		Return(googleIdentity("g-1", "a@x.com"), nil)

	location, err := f.authz.Callback(context.Background(), CallbackParams{State: requestID, Code: "google-code"})
	require.NoError(t, err)

	u, err := url.Parse(location)
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:8765/callback", u.Scheme+"://"+u.Host+u.Path)
	assert.Equal(t, "client-state-xyz", u.Query().Get("state"))
	code := u.Query().Get("code")
	require.NotEmpty(t, code)
	return code
}

func codeRequest(code string) TokenRequest {
	return TokenRequest{
		GrantType:    GrantTypeAuthorizationCode,
		Code:         code,
		CodeVerifier: testVerifier,
		RedirectURI:  testRedirectURI,
		ClientID:     testClientID,
	}
}

func TestAuthorize_RejectsUnregisteredClientBeforeIdentityStep(t *testing.T) {
	f := newFixture(t)
	// No AuthCodeURL expectation: the mock fails the test if the flow reaches Google.

	p := validAuthorizeParams()
	p.RedirectURI = "https://evil.example.com/cb"
	_, err := f.authz.Authorize(context.Background(), p)
	assert.ErrorIs(t, err, ErrInvalidRedirectURI)

	p = validAuthorizeParams()
	p.ClientID = "unknown"
	_, err = f.authz.Authorize(context.Background(), p)
	assert.ErrorIs(t, err, ErrInvalidClient)

	// Prefix matches are not matches.
	p = validAuthorizeParams()
	p.RedirectURI = testRedirectURI + "/extra"
	_, err = f.authz.Authorize(context.Background(), p)
	assert.ErrorIs(t, err, ErrInvalidRedirectURI)
}

func TestAuthorize_InvalidParamsRedirectToClient(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*AuthorizeParams)
	}{
		{"plain method", func(p *AuthorizeParams) { p.CodeChallengeMethod = "plain" }},
		{"missing method", func(p *AuthorizeParams) { p.CodeChallengeMethod = "" }},
		{"short challenge", func(p *AuthorizeParams) { p.CodeChallenge = "abc" }},
		{"token response type", func(p *AuthorizeParams) { p.ResponseType = "token" }},
		{"huge state", func(p *AuthorizeParams) { p.State = strings.Repeat("s", 1025) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			p := validAuthorizeParams()
			tt.mutate(&p)

			_, err := f.authz.Authorize(context.Background(), p)
			var redirect *RedirectError
			require.ErrorAs(t, err, &redirect)
			assert.Equal(t, OAuthErrInvalidRequest, redirect.Code)

			location, err := redirect.Location()
			require.NoError(t, err)
			assert.True(t, strings.HasPrefix(location, testRedirectURI+"?"))
			assert.Contains(t, location, "error=invalid_request")
		})
	}
}

func TestAuthorize_PersistsRequest(t *testing.T) {
	f := newFixture(t)
	requestID := f.startFlow(t, validAuthorizeParams())

	req, err := f.store.GetAuthorizationRequest(context.Background(), requestID)
	require.NoError(t, err)
	assert.Equal(t, testClientID, req.ClientID)
	assert.Equal(t, testChallenge, req.CodeChallenge)
	assert.Equal(t, "S256", req.CodeChallengeMethod)
	assert.Equal(t, "client-state-xyz", req.State)
	assert.False(t, req.IsConsumed())
	assert.WithinDuration(t, f.now.Add(10*time.Minute), req.ExpiresAt, time.Second)
}

func TestCallback_FullFlowAndReplay(t *testing.T) {
	f := newFixture(t)
	code := f.issueCode(t)

	grant, err := f.authz.Token(context.Background(), codeRequest(code))
	require.NoError(t, err)
	require.NotNil(t, grant.Refresh)

	claims, err := f.tokens.Verify(grant.Access.TokenString)
	require.NoError(t, err)
	user, err := f.store.GetUserBySubjectID(context.Background(), "g-1")
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
	assert.False(t, claims.IsAdmin)

	_, err = f.authz.Token(context.Background(), codeRequest(code))
	assert.ErrorIs(t, err, ErrCodeNotUsable)
	oauthCode, status := OAuthErrorCode(err)
	assert.Equal(t, OAuthErrInvalidGrant, oauthCode)
	assert.Equal(t, 400, status)
}

func TestCallback_RequestIsSingleUse(t *testing.T) {
	f := newFixture(t)
	requestID := f.startFlow(t, validAuthorizeParams())
	f.idp.EXPECT().
		Exchange(gomock.Any(), gomock.Any()).
		Return(googleIdentity("g-1", "a@x.com"), nil).
		Times(1)

	_, err := f.authz.Callback(context.Background(), CallbackParams{State: requestID, Code: "google-code"})
	require.NoError(t, err)

	_, err = f.authz.Callback(context.Background(), CallbackParams{State: requestID, Code: "google-code"})
	assert.ErrorIs(t, err, ErrRequestNotUsable)
}

func TestCallback_UnknownAndExpiredRequests(t *testing.T) {
	f := newFixture(t)

	_, err := f.authz.Callback(context.Background(), CallbackParams{State: "nope", Code: "c"})
	assert.ErrorIs(t, err, ErrRequestNotUsable)

	_, err = f.authz.Callback(context.Background(), CallbackParams{Code: "c"})
	assert.ErrorIs(t, err, ErrRequestNotUsable)

	requestID := f.startFlow(t, validAuthorizeParams())
	f.advance(11 * time.Minute)
	_, err = f.authz.Callback(context.Background(), CallbackParams{State: requestID, Code: "c"})
	assert.ErrorIs(t, err, ErrRequestNotUsable)
}

func TestCallback_ProviderDenied(t *testing.T) {
	f := newFixture(t)
	requestID := f.startFlow(t, validAuthorizeParams())

	_, err := f.authz.Callback(context.Background(), CallbackParams{State: requestID, Error: "access_denied"})
	var redirect *RedirectError
	require.ErrorAs(t, err, &redirect)
	assert.Equal(t, OAuthErrAccessDenied, redirect.Code)
	assert.Equal(t, "client-state-xyz", redirect.State)

	req, err := f.store.GetAuthorizationRequest(context.Background(), requestID)
	require.NoError(t, err)
	assert.True(t, req.IsConsumed())
}

func TestCallback_IdentityFailures(t *testing.T) {
	t.Run("rejected identity redirects with access_denied", func(t *testing.T) {
		f := newFixture(t)
		requestID := f.startFlow(t, validAuthorizeParams())
		f.idp.EXPECT().Exchange(gomock.Any(), gomock.Any()).Return(nil, identity.ErrExchangeFailed)

		_, err := f.authz.Callback(context.Background(), CallbackParams{State: requestID, Code: "bad"})
		var redirect *RedirectError
		require.ErrorAs(t, err, &redirect)
		assert.Equal(t, OAuthErrAccessDenied, redirect.Code)
	})

	t.Run("unreachable provider is temporary", func(t *testing.T) {
		f := newFixture(t)
		requestID := f.startFlow(t, validAuthorizeParams())
		f.idp.EXPECT().Exchange(gomock.Any(), gomock.Any()).Return(nil, identity.ErrProviderUnreachable)

		_, err := f.authz.Callback(context.Background(), CallbackParams{State: requestID, Code: "c"})
		assert.ErrorIs(t, err, ErrIdentityUnavailable)

		req, err := f.store.GetAuthorizationRequest(context.Background(), requestID)
		require.NoError(t, err)
		assert.False(t, req.IsConsumed())
	})
}

func TestToken_WrongVerifierDoesNotBurnCode(t *testing.T) {
	f := newFixture(t)
	code := f.issueCode(t)

	bad := codeRequest(code)
	bad.CodeVerifier = strings.Repeat("x", 43)
	_, err := f.authz.Token(context.Background(), bad)
	assert.ErrorIs(t, err, ErrInvalidGrant)

	_, err = f.authz.Token(context.Background(), codeRequest(code))
	assert.NoError(t, err)
}

func TestToken_Validation(t *testing.T) {
	f := newFixture(t)
	code := f.issueCode(t)

	tests := []struct {
		name    string
		mutate  func(*TokenRequest)
		wantErr error
	}{
		{"missing code", func(r *TokenRequest) { r.Code = "" }, ErrInvalidRequest},
		{"missing verifier", func(r *TokenRequest) { r.CodeVerifier = "" }, ErrInvalidRequest},
		{"missing redirect", func(r *TokenRequest) { r.RedirectURI = "" }, ErrInvalidRequest},
		{"short verifier", func(r *TokenRequest) { r.CodeVerifier = "short" }, ErrInvalidRequest},
		{"unknown client", func(r *TokenRequest) { r.ClientID = "someone" }, ErrInvalidClient},
		{"unknown code", func(r *TokenRequest) { r.Code = "not-a-code" }, ErrInvalidGrant},
		{"other redirect", func(r *TokenRequest) { r.RedirectURI = "http://127.0.0.1:9999/cb" }, ErrInvalidGrant},
		{"bad grant type", func(r *TokenRequest) { r.GrantType = "password" }, ErrUnsupportedGrantType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := codeRequest(code)
			tt.mutate(&r)
			_, err := f.authz.Token(context.Background(), r)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	// None of the failures above consumed the code.
	r := codeRequest(code)
	r.GrantType = ""
	_, err := f.authz.Token(context.Background(), r)
	assert.NoError(t, err)
}

func TestToken_ExpiredCode(t *testing.T) {
	f := newFixture(t)
	code := f.issueCode(t)

	f.advance(5 * time.Minute)
	_, err := f.authz.Token(context.Background(), codeRequest(code))
	assert.ErrorIs(t, err, ErrCodeNotUsable)
}

func TestToken_ConcurrentRedemptionSingleWinner(t *testing.T) {
	f := newFixture(t)
	code := f.issueCode(t)

	const attempts = 12
	var (
		wg        sync.WaitGroup
		successes atomic.Int32
		replays   atomic.Int32
	)
	start := make(chan struct{})
	for range attempts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := f.authz.Token(context.Background(), codeRequest(code))
			switch {
			case err == nil:
				successes.Add(1)
			case errors.Is(err, ErrCodeNotUsable):
				replays.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), successes.Load())
	assert.Equal(t, int32(attempts-1), replays.Load())
}

func TestToken_RefreshGrant(t *testing.T) {
	f := newFixture(t)
	code := f.issueCode(t)

	grant, err := f.authz.Token(context.Background(), codeRequest(code))
	require.NoError(t, err)

	// Elevation is visible at the next refresh.
	user, err := f.store.GetUserBySubjectID(context.Background(), "g-1")
	require.NoError(t, err)
	root := f.createUser(t, "g-root", "root@x.com")
	_, err = f.users.SetAdmin(context.Background(), identityOf(root), user.ID, true)
	require.NoError(t, err)

	refreshed, err := f.authz.Token(context.Background(), TokenRequest{
		GrantType:    GrantTypeRefreshToken,
		RefreshToken: grant.Refresh.TokenString,
	})
	require.NoError(t, err)
	claims, err := f.tokens.Verify(refreshed.Access.TokenString)
	require.NoError(t, err)
	assert.True(t, claims.IsAdmin)

	_, err = f.authz.Token(context.Background(), TokenRequest{
		GrantType:    GrantTypeRefreshToken,
		RefreshToken: grant.Access.TokenString,
	})
	assert.ErrorIs(t, err, ErrInvalidGrant, "access tokens are not refresh tokens")

	_, err = f.authz.Token(context.Background(), TokenRequest{GrantType: GrantTypeRefreshToken})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestToken_RefreshAfterDemotionByAnotherProcess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	code := f.issueCode(t)

	alice, err := f.store.GetUserBySubjectID(ctx, "g-1")
	require.NoError(t, err)
	f.makeAdmin(t, alice)
	root := f.createUser(t, "g-root", "root@x.com")

	grant, err := f.authz.Token(ctx, codeRequest(code))
	require.NoError(t, err)
	claims, err := f.tokens.Verify(grant.Access.TokenString)
	require.NoError(t, err)
	require.True(t, claims.IsAdmin)

	// Warm this process's cache, then demote from a second process that
	// shares the store but has its own cache.
	cached, err := f.users.GetUser(ctx, alice.ID)
	require.NoError(t, err)
	require.True(t, cached.IsAdmin)

	other := NewUserService(f.store, f.cfg, cache.NewMemoryCache[models.User](),
		zap.NewNop(), metrics.NewNoopMetrics())
	_, err = other.SetAdmin(ctx, identityOf(root), alice.ID, false)
	require.NoError(t, err)

	refreshed, err := f.authz.Token(ctx, TokenRequest{
		GrantType:    GrantTypeRefreshToken,
		RefreshToken: grant.Refresh.TokenString,
	})
	require.NoError(t, err)
	claims, err = f.tokens.Verify(refreshed.Access.TokenString)
	require.NoError(t, err)
	assert.False(t, claims.IsAdmin, "minted tokens read is_admin from the store")
}

func TestToken_RefreshDisabled(t *testing.T) {
	f := newFixture(t, func(c *config.Config) { c.EnableRefreshTokens = false })
	code := f.issueCode(t)

	grant, err := f.authz.Token(context.Background(), codeRequest(code))
	require.NoError(t, err)
	assert.Nil(t, grant.Refresh)

	_, err = f.authz.Token(context.Background(), TokenRequest{
		GrantType:    GrantTypeRefreshToken,
		RefreshToken: "anything",
	})
	assert.ErrorIs(t, err, ErrUnsupportedGrantType)
}

func TestCleanupExpired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.issueCode(t)
	pending := f.startFlow(t, validAuthorizeParams())

	require.NoError(t, f.authz.CleanupExpired(ctx))
	_, err := f.store.GetAuthorizationRequest(ctx, pending)
	require.NoError(t, err, "unexpired requests survive")

	f.advance(time.Hour)
	require.NoError(t, f.authz.CleanupExpired(ctx))
	_, err = f.store.GetAuthorizationRequest(ctx, pending)
	assert.ErrorIs(t, err, store.ErrRecordNotFound)
}
