package token

import "errors"

var (
	// ErrTokenGeneration indicates token generation failed
	ErrTokenGeneration = errors.New("failed to generate token")

	// ErrInvalidCredential is the only verification failure callers see.
	// The concrete reason is logged and counted, never returned.
	ErrInvalidCredential = errors.New("invalid credential")
)

// Verification failure reasons, used as log fields and metric labels.
const (
	reasonValid        = "valid"
	reasonExpired      = "expired"
	reasonMalformed    = "malformed"
	reasonBadSignature = "bad_signature"
	reasonWrongType    = "wrong_type"
	reasonBadClaims    = "bad_claims"
)
