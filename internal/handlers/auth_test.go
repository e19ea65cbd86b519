package handlers

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/expense-tracker/authgate/internal/identity"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestLogin_NewUserIsNotAdmin(t *testing.T) {
	ts := newTestServer(t)
	ts.idp.EXPECT().Verify(gomock.Any(), "google-id-token").
		Return(googleIdentity("g-alice", "alice@x.com"), nil)

	w := ts.postJSON("/api/auth/login", "", map[string]string{"identity_assertion": "google-id-token"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	body := decode(t, w)
	assert.Equal(t, "bearer", body["token_type"])
	assert.InDelta(t, 7*24*3600, body["expires_in"], 0)
	user := body["user"].(map[string]any)
	assert.Equal(t, "alice@x.com", user["email"])
	assert.Equal(t, false, user["is_admin"])

	claims, err := ts.tokens.Verify(body["access_token"].(string))
	require.NoError(t, err)
	assert.Equal(t, user["id"], claims.UserID)
	assert.False(t, claims.IsAdmin)
}

func TestLogin_GoogleAlias(t *testing.T) {
	ts := newTestServer(t)
	ts.idp.EXPECT().Verify(gomock.Any(), "google-id-token").
		Return(googleIdentity("g-alice", "alice@x.com"), nil)

	w := ts.postJSON("/api/auth/google", "", map[string]string{"token": "google-id-token"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "access_token")
}

func TestLogin_Failures(t *testing.T) {
	tests := []struct {
		name      string
		verifyErr error
		wantCode  int
		wantError string
	}{
		{"bad signature", identity.ErrInvalidSignature, http.StatusUnauthorized, "sign_in_failed"},
		{"expired", identity.ErrExpired, http.StatusUnauthorized, "sign_in_failed"},
		{"wrong audience", identity.ErrAudienceMismatch, http.StatusUnauthorized, "sign_in_failed"},
		{
			"google unreachable",
			fmt.Errorf("%w: jwks fetch", identity.ErrProviderUnreachable),
			http.StatusServiceUnavailable,
			"sign_in_unavailable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t)
			ts.idp.EXPECT().Verify(gomock.Any(), gomock.Any()).Return(nil, tt.verifyErr)

			w := ts.postJSON("/api/auth/login", "", map[string]string{"identity_assertion": "x.y.z"})
			assert.Equal(t, tt.wantCode, w.Code)
			body := decode(t, w)
			assert.Equal(t, tt.wantError, body["error"])
			assert.NotEmpty(t, body["message"])
			assert.NotContains(t, w.Body.String(), "audience")
		})
	}
}

func TestLogin_MissingAssertion(t *testing.T) {
	ts := newTestServer(t)

	w := ts.postJSON("/api/auth/login", "", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_request", decode(t, w)["error"])
}

func TestMe(t *testing.T) {
	ts := newTestServer(t)
	u, tok := ts.signIn(t, "g-alice", "alice@x.com")

	w := ts.get("/api/auth/me", tok)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, u.ID, body["id"])
	assert.Equal(t, "alice@x.com", body["email"])
	assert.Equal(t, false, body["is_admin"])
}

func TestMe_Unauthenticated(t *testing.T) {
	ts := newTestServer(t)

	w := ts.get("/api/auth/me", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Header().Get("WWW-Authenticate"), "resource_metadata=")

	w = ts.get("/api/auth/me", "not-a-token")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Header().Get("WWW-Authenticate"), `error="invalid_token"`)
}
