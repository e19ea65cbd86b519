package services

import (
	"errors"
	"net/http"
)

// OAuth 2.0 error codes returned to agent clients (RFC 6749 §4.1.2.1, §5.2).
const (
	OAuthErrInvalidRequest         = "invalid_request"
	OAuthErrInvalidClient          = "invalid_client"
	OAuthErrInvalidGrant           = "invalid_grant"
	OAuthErrUnsupportedGrantType   = "unsupported_grant_type"
	OAuthErrAccessDenied           = "access_denied"
	OAuthErrServerError            = "server_error"
	OAuthErrTemporarilyUnavailable = "temporarily_unavailable"
)

var (
	// Sign-in
	ErrSignInFailed        = errors.New("sign-in failed")
	ErrIdentityUnavailable = errors.New("identity provider unavailable")

	// User directory
	ErrUserNotFound = errors.New("user not found")
	ErrEmailTaken   = errors.New("email already belongs to another account")
	ErrForbidden    = errors.New("admin privileges required")
	ErrLastAdmin    = errors.New("cannot remove the last admin")

	// Authorization server
	ErrInvalidClient        = errors.New("unknown client_id")
	ErrInvalidRedirectURI   = errors.New("redirect_uri is not registered for this client")
	ErrInvalidRequest       = errors.New("invalid request")
	ErrRequestNotUsable     = errors.New("authorization request unknown, consumed or expired")
	ErrCodeNotUsable        = errors.New("authorization code already redeemed or expired")
	ErrInvalidGrant         = errors.New("invalid grant")
	ErrUnsupportedGrantType = errors.New("unsupported grant_type")
)

// OAuthErrorCode maps a service error to its RFC 6749 error code and the HTTP
// status of the token endpoint response.
func OAuthErrorCode(err error) (code string, status int) {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return OAuthErrInvalidRequest, http.StatusBadRequest
	case errors.Is(err, ErrInvalidClient):
		return OAuthErrInvalidClient, http.StatusUnauthorized
	case errors.Is(err, ErrInvalidGrant),
		errors.Is(err, ErrCodeNotUsable),
		errors.Is(err, ErrRequestNotUsable):
		return OAuthErrInvalidGrant, http.StatusBadRequest
	case errors.Is(err, ErrUnsupportedGrantType):
		return OAuthErrUnsupportedGrantType, http.StatusBadRequest
	case errors.Is(err, ErrIdentityUnavailable):
		return OAuthErrTemporarilyUnavailable, http.StatusServiceUnavailable
	default:
		return OAuthErrServerError, http.StatusInternalServerError
	}
}
