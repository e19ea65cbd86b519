package identity

import "errors"

var (
	// ErrInvalidSignature covers malformed tokens and signatures that do not
	// verify against the provider's published keys.
	ErrInvalidSignature = errors.New("identity token signature invalid")

	// ErrExpired indicates the identity token is past its exp claim
	ErrExpired = errors.New("identity token expired")

	// ErrAudienceMismatch indicates the token was issued for another client
	ErrAudienceMismatch = errors.New("identity token audience mismatch")

	// ErrIssuerMismatch indicates the token was not issued by Google
	ErrIssuerMismatch = errors.New("identity token issuer mismatch")

	// ErrMissingEmail indicates the token carries no email claim
	ErrMissingEmail = errors.New("identity token has no email")

	// ErrExchangeFailed indicates the provider refused the authorization code
	ErrExchangeFailed = errors.New("identity provider rejected authorization code")

	// ErrProviderUnreachable indicates keys or tokens could not be fetched
	// even after retries
	ErrProviderUnreachable = errors.New("identity provider unreachable")
)

// IsProviderUnavailable reports whether err is a transient upstream failure
// (as opposed to a rejected assertion).
func IsProviderUnavailable(err error) bool {
	return errors.Is(err, ErrProviderUnreachable)
}
