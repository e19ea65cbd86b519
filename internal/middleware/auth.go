package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/expense-tracker/authgate/internal/core"
	"github.com/expense-tracker/authgate/internal/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	// ContextKeyIdentity holds the *models.Identity of the authenticated caller.
	ContextKeyIdentity = "identity"

	bearerRealm = "expense-tracker"
)

// TokenVerifier is the part of the session token provider the gate needs.
type TokenVerifier interface {
	Verify(tokenString string) (*core.TokenClaims, error)
}

// RequireBearer admits requests carrying a valid session token and attaches
// the resolved identity to both the gin context and the request context.
// Rejections are 401 with a WWW-Authenticate challenge naming the protected
// resource metadata, so agent clients can discover where to sign in.
func RequireBearer(verifier TokenVerifier, resourceMetadataURL string, logger *zap.Logger) gin.HandlerFunc {
	challenge := fmt.Sprintf(`Bearer realm=%q`, bearerRealm)
	if resourceMetadataURL != "" {
		challenge += fmt.Sprintf(`, resource_metadata=%q`, resourceMetadataURL)
	}
	invalid := fmt.Sprintf(`Bearer realm=%q, error="invalid_token"`, bearerRealm)
	if resourceMetadataURL != "" {
		invalid += fmt.Sprintf(`, resource_metadata=%q`, resourceMetadataURL)
	}

	return func(c *gin.Context) {
		raw, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			c.Header("WWW-Authenticate", challenge)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":             "unauthorized",
				"error_description": "Bearer token required",
			})
			return
		}

		claims, err := verifier.Verify(raw)
		if err != nil {
			logger.Debug("bearer token rejected",
				zap.String("path", c.FullPath()), zap.Error(err))
			c.Header("WWW-Authenticate", invalid)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":             "invalid_token",
				"error_description": "The access token is invalid or expired",
			})
			return
		}

		id := &models.Identity{
			UserID:  claims.UserID,
			Email:   claims.Email,
			IsAdmin: claims.IsAdmin,
		}
		c.Set(ContextKeyIdentity, id)
		c.Request = c.Request.WithContext(models.SetIdentityContext(c.Request.Context(), id))
		c.Next()
	}
}

// RequireAdmin must run after RequireBearer. It rejects callers whose
// credential does not carry the admin flag.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := IdentityFrom(c)
		if id == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":             "unauthorized",
				"error_description": "Bearer token required",
			})
			return
		}
		if !id.IsAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":             "forbidden",
				"error_description": "Admin privileges required",
			})
			return
		}
		c.Next()
	}
}

// IdentityFrom returns the identity set by RequireBearer, or nil.
func IdentityFrom(c *gin.Context) *models.Identity {
	v, ok := c.Get(ContextKeyIdentity)
	if !ok {
		return nil
	}
	id, _ := v.(*models.Identity)
	return id
}

// bearerToken extracts the credential from an Authorization header. The
// scheme is matched case-insensitively (RFC 7235 §2.1).
func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
