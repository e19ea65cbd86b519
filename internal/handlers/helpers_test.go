package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/expense-tracker/authgate/internal/cache"
	"github.com/expense-tracker/authgate/internal/config"
	"github.com/expense-tracker/authgate/internal/core"
	"github.com/expense-tracker/authgate/internal/metrics"
	"github.com/expense-tracker/authgate/internal/middleware"
	"github.com/expense-tracker/authgate/internal/mocks"
	"github.com/expense-tracker/authgate/internal/models"
	"github.com/expense-tracker/authgate/internal/services"
	"github.com/expense-tracker/authgate/internal/store"
	"github.com/expense-tracker/authgate/internal/token"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"
)

const (
	testClientID    = "expense-agent"
	testRedirectURI = "http://127.0.0.1:8765/callback"
	testVerifier    = "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	testChallenge   = "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM"
)

func testConfig() *config.Config {
	return &config.Config{
		BaseURL:                "http://localhost:8080",
		JWTSecret:              "handlers-test-secret-0123456789abcdef",
		JWTIssuer:              "http://localhost:8080",
		JWTExpiration:          168 * time.Hour,
		RefreshTokenExpiration: 720 * time.Hour,
		EnableRefreshTokens:    true,
		OAuthClients:           map[string][]string{testClientID: {testRedirectURI}},
		AuthRequestExpiration:  10 * time.Minute,
		AuthCodeExpiration:     5 * time.Minute,
		AdminEmails:            []string{"root@x.com"},
		RequireAdmin:           true,
		UserCacheTTL:           time.Minute,
	}
}

// testServer mounts the gateway routes over a SQLite store and a mocked
// Google provider.
type testServer struct {
	cfg    *config.Config
	store  *store.Store
	idp    *mocks.MockIdentityProvider
	tokens *token.LocalTokenProvider
	users  *services.UserService
	router *gin.Engine
}

func newTestServer(t *testing.T, mutate ...func(*config.Config)) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := testConfig()
	for _, m := range mutate {
		m(cfg)
	}

	s, err := store.New(context.Background(), config.DatabaseDriverSQLite,
		filepath.Join(t.TempDir(), "handlers.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close(context.Background()) })

	logger := zap.NewNop()
	recorder := metrics.NewNoopMetrics()
	idp := mocks.NewMockIdentityProvider(gomock.NewController(t))
	tokens := token.NewLocalTokenProvider(cfg, logger, recorder)
	users := services.NewUserService(s, cfg, cache.NewMemoryCache[models.User](), logger, recorder)
	auth := services.NewAuthService(idp, users, tokens, logger, recorder)
	authz := services.NewAuthorizationService(s, cfg, idp, users, tokens, logger, recorder)

	authHandler := NewAuthHandler(auth, users, logger)
	oauthHandler := NewOAuthHandler(authz, cfg, logger)
	adminHandler := NewAdminHandler(users, logger)
	healthHandler := NewHealthHandler(map[string]HealthChecker{"database": s})

	r := gin.New()
	requireBearer := middleware.RequireBearer(tokens, ResourceMetadataURL(cfg), logger)

	r.GET("/health", healthHandler.Health)
	r.GET(PathAuthorizationServerConfig, oauthHandler.AuthorizationServerMetadata)
	r.GET(PathProtectedResourceConfig, oauthHandler.ProtectedResourceMetadata)
	r.POST("/api/auth/login", authHandler.Login)
	r.POST("/api/auth/google", authHandler.GoogleLogin)
	r.GET("/api/auth/me", requireBearer, authHandler.Me)
	r.GET(PathAuthorize, oauthHandler.Authorize)
	r.GET(PathCallback, oauthHandler.Callback)
	r.POST(PathToken, oauthHandler.Token)
	admin := r.Group("/api/admin", requireBearer, middleware.RequireAdmin())
	admin.GET("/users", adminHandler.ListUsers)
	admin.POST("/users/:id/elevate", adminHandler.Elevate)

	return &testServer{cfg: cfg, store: s, idp: idp, tokens: tokens, users: users, router: r}
}

func (ts *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func (ts *testServer) get(target, bearer string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	return ts.do(req)
}

func (ts *testServer) postJSON(target, bearer string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(http.MethodPost, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	return ts.do(req)
}

func (ts *testServer) postForm(target string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return ts.do(req)
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

// signIn creates (or refreshes) the user and returns a session token for it.
func (ts *testServer) signIn(t *testing.T, subject, email string) (*models.User, string) {
	t.Helper()
	u, err := ts.users.UpsertFromIdentity(context.Background(), googleIdentity(subject, email))
	require.NoError(t, err)
	res, err := ts.tokens.Issue(core.TokenSubject{UserID: u.ID, Email: u.Email, IsAdmin: u.IsAdmin})
	require.NoError(t, err)
	return u, res.TokenString
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return body
}
