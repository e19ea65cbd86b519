package handlers

import (
	"errors"
	"net/http"

	"github.com/expense-tracker/authgate/internal/middleware"
	"github.com/expense-tracker/authgate/internal/services"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	signInFailedMessage      = "Sign-in failed, try again"
	signInUnavailableMessage = "Sign-in is temporarily unavailable, try again shortly"
)

// AuthHandler serves browser sign-in and the current-user endpoint.
type AuthHandler struct {
	authService *services.AuthService
	userService *services.UserService
	logger      *zap.Logger
}

func NewAuthHandler(
	as *services.AuthService,
	us *services.UserService,
	logger *zap.Logger,
) *AuthHandler {
	return &AuthHandler{authService: as, userService: us, logger: logger}
}

type loginRequest struct {
	IdentityAssertion string `json:"identity_assertion" binding:"required"`
}

// googleLoginRequest is the body of the older /api/auth/google endpoint.
type googleLoginRequest struct {
	Token string `json:"token" binding:"required"`
}

type loginResponse struct {
	AccessToken string       `json:"access_token"`
	TokenType   string       `json:"token_type"`
	ExpiresIn   int64        `json:"expires_in"`
	User        userResponse `json:"user"`
}

// Login godoc
//
//	@Summary		Sign in with a Google ID token
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			body	body		loginRequest	true	"Google ID token"
//	@Success		200		{object}	loginResponse
//	@Failure		401		{object}	object{error=string,message=string}	"Sign-in failed"
//	@Failure		503		{object}	object{error=string,message=string}	"Google unreachable"
//	@Router			/api/auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "identity_assertion is required",
		})
		return
	}
	h.login(c, req.IdentityAssertion)
}

// GoogleLogin accepts {token} for clients of the original browser API.
func (h *AuthHandler) GoogleLogin(c *gin.Context) {
	var req googleLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "token is required",
		})
		return
	}
	h.login(c, req.Token)
}

func (h *AuthHandler) login(c *gin.Context, assertion string) {
	res, err := h.authService.LoginWithAssertion(c.Request.Context(), assertion)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrIdentityUnavailable):
			h.logger.Warn("sign-in unavailable", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"error":   "sign_in_unavailable",
				"message": signInUnavailableMessage,
			})
		case errors.Is(err, services.ErrSignInFailed):
			h.logger.Info("sign-in failed", zap.Error(err))
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "sign_in_failed",
				"message": signInFailedMessage,
			})
		default:
			h.logger.Error("sign-in error", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   "server_error",
				"message": signInFailedMessage,
			})
		}
		return
	}

	c.JSON(http.StatusOK, loginResponse{
		AccessToken: res.Token.TokenString,
		TokenType:   res.Token.TokenType,
		ExpiresIn:   res.Token.ExpiresIn,
		User:        toUserResponse(res.User),
	})
}

// Me godoc
//
//	@Summary		Current user
//	@Tags			Auth
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200	{object}	userResponse
//	@Failure		401	{object}	object{error=string,error_description=string}
//	@Router			/api/auth/me [get]
func (h *AuthHandler) Me(c *gin.Context) {
	id := middleware.IdentityFrom(c)
	if id == nil {
		oauthError(c, http.StatusUnauthorized, "invalid_token", "")
		return
	}

	user, err := h.userService.GetUser(c.Request.Context(), id.UserID)
	if err != nil {
		if errors.Is(err, services.ErrUserNotFound) {
			oauthError(c, http.StatusUnauthorized, "invalid_token", "User no longer exists")
			return
		}
		h.logger.Error("load current user", zap.String("user_id", id.UserID), zap.Error(err))
		oauthError(c, http.StatusInternalServerError, services.OAuthErrServerError, "")
		return
	}

	c.JSON(http.StatusOK, toUserResponse(user))
}
