package core

import "context"

// ExternalIdentity is a verified statement from the identity provider about who the user is.
type ExternalIdentity struct {
	SubjectID     string
	Email         string
	EmailVerified bool
	Name          string
	PictureURL    string
}

// IdentityProvider verifies provider-issued assertions and drives the
// provider's authorization-code sign-in.
type IdentityProvider interface {
	// Verify checks an ID token's signature, issuer, audience and expiry.
	Verify(ctx context.Context, rawIDToken string) (*ExternalIdentity, error)
	// AuthCodeURL is the provider consent page carrying state back to the callback.
	AuthCodeURL(state string) string
	// Exchange trades the provider's authorization code for a verified identity.
	Exchange(ctx context.Context, code string) (*ExternalIdentity, error)
}
