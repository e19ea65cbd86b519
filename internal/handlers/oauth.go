package handlers

import (
	"errors"
	"net/http"

	"github.com/expense-tracker/authgate/internal/config"
	"github.com/expense-tracker/authgate/internal/services"
	"github.com/expense-tracker/authgate/internal/token"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Paths advertised in the discovery documents.
const (
	PathAuthorize                 = "/oauth/authorize"
	PathCallback                  = "/oauth/callback"
	PathToken                     = "/oauth/token"
	PathUserInfo                  = "/api/auth/me"
	PathAuthorizationServerConfig = "/.well-known/oauth-authorization-server"
	PathProtectedResourceConfig   = "/.well-known/oauth-protected-resource"
)

// OAuthHandler serves the authorization code + PKCE flow for agent clients.
type OAuthHandler struct {
	authorizationService *services.AuthorizationService
	config               *config.Config
	logger               *zap.Logger
}

func NewOAuthHandler(
	as *services.AuthorizationService,
	cfg *config.Config,
	logger *zap.Logger,
) *OAuthHandler {
	return &OAuthHandler{authorizationService: as, config: cfg, logger: logger}
}

// authorizationServerMetadata is the RFC 8414 discovery document.
type authorizationServerMetadata struct {
	Issuer                            string   `json:"issuer"`
	AuthorizationEndpoint             string   `json:"authorization_endpoint"`
	TokenEndpoint                     string   `json:"token_endpoint"`
	UserinfoEndpoint                  string   `json:"userinfo_endpoint"`
	ResponseTypesSupported            []string `json:"response_types_supported"`
	GrantTypesSupported               []string `json:"grant_types_supported"`
	CodeChallengeMethodsSupported     []string `json:"code_challenge_methods_supported"`
	TokenEndpointAuthMethodsSupported []string `json:"token_endpoint_auth_methods_supported"`
}

// protectedResourceMetadata is the RFC 9728 document agents are pointed at
// from the WWW-Authenticate challenge.
type protectedResourceMetadata struct {
	Resource               string   `json:"resource"`
	AuthorizationServers   []string `json:"authorization_servers"`
	BearerMethodsSupported []string `json:"bearer_methods_supported"`
	ResourceName           string   `json:"resource_name"`
}

// AuthorizationServerMetadata godoc
//
//	@Summary	OAuth 2.0 Authorization Server Metadata
//	@Tags		OAuth
//	@Produce	json
//	@Success	200	{object}	authorizationServerMetadata
//	@Router		/.well-known/oauth-authorization-server [get]
func (h *OAuthHandler) AuthorizationServerMetadata(c *gin.Context) {
	base := h.config.BaseURL
	grants := []string{services.GrantTypeAuthorizationCode}
	if h.config.EnableRefreshTokens {
		grants = append(grants, services.GrantTypeRefreshToken)
	}

	c.JSON(http.StatusOK, authorizationServerMetadata{
		Issuer:                            base,
		AuthorizationEndpoint:             base + PathAuthorize,
		TokenEndpoint:                     base + PathToken,
		UserinfoEndpoint:                  base + PathUserInfo,
		ResponseTypesSupported:            []string{"code"},
		GrantTypesSupported:               grants,
		CodeChallengeMethodsSupported:     []string{"S256"},
		TokenEndpointAuthMethodsSupported: []string{"none"},
	})
}

// ProtectedResourceMetadata godoc
//
//	@Summary	OAuth 2.0 Protected Resource Metadata
//	@Tags		OAuth
//	@Produce	json
//	@Success	200	{object}	protectedResourceMetadata
//	@Router		/.well-known/oauth-protected-resource [get]
func (h *OAuthHandler) ProtectedResourceMetadata(c *gin.Context) {
	c.JSON(http.StatusOK, protectedResourceMetadata{
		Resource:               h.config.BaseURL,
		AuthorizationServers:   []string{h.config.BaseURL},
		BearerMethodsSupported: []string{"header"},
		ResourceName:           "Expense Tracker",
	})
}

// ResourceMetadataURL is the absolute URL of the protected resource document.
func ResourceMetadataURL(cfg *config.Config) string {
	return cfg.BaseURL + PathProtectedResourceConfig
}

// Authorize godoc
//
//	@Summary		Start the authorization code flow
//	@Description	Validates the client and PKCE parameters, then redirects to Google sign-in.
//	@Tags			OAuth
//	@Param			client_id				query	string	true	"Registered client id"
//	@Param			redirect_uri			query	string	true	"Registered redirect URI"
//	@Param			code_challenge			query	string	true	"base64url(SHA-256(code_verifier))"
//	@Param			code_challenge_method	query	string	true	"Must be S256"
//	@Param			state					query	string	false	"Opaque client state"
//	@Param			response_type			query	string	false	"code"
//	@Success		302
//	@Failure		400	{object}	object{error=string,error_description=string}	"Unregistered client or redirect URI"
//	@Router			/oauth/authorize [get]
func (h *OAuthHandler) Authorize(c *gin.Context) {
	location, err := h.authorizationService.Authorize(c.Request.Context(), services.AuthorizeParams{
		ClientID:            c.Query("client_id"),
		RedirectURI:         c.Query("redirect_uri"),
		ResponseType:        c.Query("response_type"),
		CodeChallenge:       c.Query("code_challenge"),
		CodeChallengeMethod: c.Query("code_challenge_method"),
		State:               c.Query("state"),
	})
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidClient):
			oauthError(c, http.StatusBadRequest, services.OAuthErrInvalidClient, "Unknown client_id")
		case errors.Is(err, services.ErrInvalidRedirectURI):
			oauthError(c, http.StatusBadRequest, services.OAuthErrInvalidRequest,
				"redirect_uri is not registered for this client")
		default:
			h.redirectOrFail(c, err)
		}
		return
	}

	c.Redirect(http.StatusFound, location)
}

// Callback godoc
//
//	@Summary		Google sign-in callback
//	@Description	Resolves the user, issues a single-use code and redirects to the client.
//	@Tags			OAuth
//	@Param			state	query	string	true	"Authorization request id"
//	@Param			code	query	string	false	"Google authorization code"
//	@Param			error	query	string	false	"Google error"
//	@Success		302
//	@Failure		400	{object}	object{error=string,error_description=string}	"Unknown, used or expired request"
//	@Failure		503	{object}	object{error=string,error_description=string}	"Google unreachable"
//	@Router			/oauth/callback [get]
func (h *OAuthHandler) Callback(c *gin.Context) {
	location, err := h.authorizationService.Callback(c.Request.Context(), services.CallbackParams{
		State: c.Query("state"),
		Code:  c.Query("code"),
		Error: c.Query("error"),
	})
	if err != nil {
		switch {
		case errors.Is(err, services.ErrRequestNotUsable):
			oauthError(c, http.StatusBadRequest, services.OAuthErrInvalidRequest,
				"Authorization request is unknown, already used or expired")
		case errors.Is(err, services.ErrInvalidRequest):
			oauthError(c, http.StatusBadRequest, services.OAuthErrInvalidRequest, err.Error())
		case errors.Is(err, services.ErrIdentityUnavailable):
			oauthError(c, http.StatusServiceUnavailable, services.OAuthErrTemporarilyUnavailable,
				signInUnavailableMessage)
		default:
			h.redirectOrFail(c, err)
		}
		return
	}

	c.Redirect(http.StatusFound, location)
}

// redirectOrFail sends a *services.RedirectError back to the client and
// answers anything else with server_error.
func (h *OAuthHandler) redirectOrFail(c *gin.Context, err error) {
	var redirect *services.RedirectError
	if errors.As(err, &redirect) {
		location, lerr := redirect.Location()
		if lerr == nil {
			c.Redirect(http.StatusFound, location)
			return
		}
		err = lerr
	}
	h.logger.Error("authorization flow failed", zap.String("path", c.FullPath()), zap.Error(err))
	oauthError(c, http.StatusInternalServerError, services.OAuthErrServerError, "")
}

type tokenRequest struct {
	GrantType    string `form:"grant_type" json:"grant_type"`
	Code         string `form:"code" json:"code"`
	CodeVerifier string `form:"code_verifier" json:"code_verifier"`
	RedirectURI  string `form:"redirect_uri" json:"redirect_uri"`
	ClientID     string `form:"client_id" json:"client_id"`
	RefreshToken string `form:"refresh_token" json:"refresh_token"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

// Token godoc
//
//	@Summary		Exchange an authorization code or refresh token
//	@Tags			OAuth
//	@Accept			x-www-form-urlencoded
//	@Accept			json
//	@Produce		json
//	@Param			grant_type		formData	string	false	"authorization_code (default) or refresh_token"
//	@Param			code			formData	string	false	"Authorization code"
//	@Param			code_verifier	formData	string	false	"PKCE verifier"
//	@Param			redirect_uri	formData	string	false	"Redirect URI used at /oauth/authorize"
//	@Param			client_id		formData	string	false	"Client id"
//	@Param			refresh_token	formData	string	false	"Refresh token"
//	@Success		200				{object}	tokenResponse
//	@Failure		400				{object}	object{error=string,error_description=string}
//	@Failure		401				{object}	object{error=string,error_description=string}
//	@Failure		503				{object}	object{error=string,error_description=string}
//	@Router			/oauth/token [post]
func (h *OAuthHandler) Token(c *gin.Context) {
	c.Header("Cache-Control", "no-store")
	c.Header("Pragma", "no-cache")

	var req tokenRequest
	if err := c.ShouldBind(&req); err != nil {
		oauthError(c, http.StatusBadRequest, services.OAuthErrInvalidRequest, "Malformed token request")
		return
	}

	grant, err := h.authorizationService.Token(c.Request.Context(), services.TokenRequest{
		GrantType:    req.GrantType,
		Code:         req.Code,
		CodeVerifier: req.CodeVerifier,
		RedirectURI:  req.RedirectURI,
		ClientID:     req.ClientID,
		RefreshToken: req.RefreshToken,
	})
	if err != nil {
		code, status := services.OAuthErrorCode(err)
		description := ""
		switch code {
		case services.OAuthErrInvalidRequest:
			description = err.Error()
		case services.OAuthErrInvalidGrant:
			description = "Authorization grant is invalid, expired or already used"
		case services.OAuthErrServerError:
			h.logger.Error("token endpoint failed", zap.Error(err))
		}
		oauthError(c, status, code, description)
		return
	}

	resp := tokenResponse{
		AccessToken: grant.Access.TokenString,
		TokenType:   token.TokenTypeBearer,
		ExpiresIn:   grant.Access.ExpiresIn,
	}
	if grant.Refresh != nil {
		resp.RefreshToken = grant.Refresh.TokenString
	}
	c.JSON(http.StatusOK, resp)
}
