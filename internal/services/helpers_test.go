package services

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/expense-tracker/authgate/internal/cache"
	"github.com/expense-tracker/authgate/internal/config"
	"github.com/expense-tracker/authgate/internal/core"
	"github.com/expense-tracker/authgate/internal/metrics"
	"github.com/expense-tracker/authgate/internal/mocks"
	"github.com/expense-tracker/authgate/internal/models"
	"github.com/expense-tracker/authgate/internal/store"
	"github.com/expense-tracker/authgate/internal/token"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"
)

const (
	testClientID    = "expense-agent"
	testRedirectURI = "http://127.0.0.1:8765/callback"
	// RFC 7636 Appendix B
	testVerifier  = "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	testChallenge = "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM"
)

func setupTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New(context.Background(), config.DatabaseDriverSQLite,
		filepath.Join(t.TempDir(), "services.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s
}

func testConfig() *config.Config {
	return &config.Config{
		BaseURL:                "http://localhost:8080",
		JWTSecret:              "services-test-secret-0123456789abcdef",
		JWTIssuer:              "http://localhost:8080",
		JWTExpiration:          168 * time.Hour,
		RefreshTokenExpiration: 720 * time.Hour,
		EnableRefreshTokens:    true,
		OAuthClients:           map[string][]string{testClientID: {testRedirectURI}},
		AuthRequestExpiration:  10 * time.Minute,
		AuthCodeExpiration:     5 * time.Minute,
		AdminEmails:            []string{"root@x.com"},
		RequireAdmin:           true,
		UserCacheTTL:           5 * time.Minute,
	}
}

// fixture wires the services against a real SQLite store and a mocked
// identity provider. Advance moves the authorization clock.
type fixture struct {
	cfg    *config.Config
	store  *store.Store
	idp    *mocks.MockIdentityProvider
	tokens *token.LocalTokenProvider
	users  *UserService
	auth   *AuthService
	authz  *AuthorizationService
	now    time.Time
}

func newFixture(t *testing.T, mutate ...func(*config.Config)) *fixture {
	t.Helper()
	cfg := testConfig()
	for _, m := range mutate {
		m(cfg)
	}

	f := &fixture{
		cfg:   cfg,
		store: setupTestStore(t),
		idp:   mocks.NewMockIdentityProvider(gomock.NewController(t)),
		now:   time.Now(),
	}
	logger := zap.NewNop()
	recorder := metrics.NewNoopMetrics()

	f.tokens = token.NewLocalTokenProvider(cfg, logger, recorder)
	f.users = NewUserService(f.store, cfg, cache.NewMemoryCache[models.User](), logger, recorder)
	f.auth = NewAuthService(f.idp, f.users, f.tokens, logger, recorder)
	f.authz = NewAuthorizationService(f.store, cfg, f.idp, f.users, f.tokens, logger, recorder,
		WithClock(func() time.Time { return f.now }))
	return f
}

func (f *fixture) advance(d time.Duration) {
	f.now = f.now.Add(d)
}

func googleIdentity(subject, email string) *core.ExternalIdentity {
	return &core.ExternalIdentity{
		SubjectID:     subject,
		Email:         email,
		EmailVerified: true,
		Name:          "User " + subject,
		PictureURL:    "https://lh3.googleusercontent.com/" + subject,
	}
}

func (f *fixture) createUser(t *testing.T, subject, email string) *models.User {
	t.Helper()
	u, err := f.users.UpsertFromIdentity(context.Background(), googleIdentity(subject, email))
	require.NoError(t, err)
	return u
}

func (f *fixture) makeAdmin(t *testing.T, u *models.User) *models.User {
	t.Helper()
	updated, err := f.store.SetUserAdmin(context.Background(), u.ID, true, false)
	require.NoError(t, err)
	return updated
}

func identityOf(u *models.User) *models.Identity {
	return &models.Identity{UserID: u.ID, Email: u.Email, IsAdmin: u.IsAdmin}
}
