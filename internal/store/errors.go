package store

import "errors"

var (
	// ErrRecordNotFound wraps GORM's not found error for consistency
	ErrRecordNotFound = errors.New("record not found")

	// ErrEmailConflict is returned when an upsert would give a second subject an email already in use.
	ErrEmailConflict = errors.New("email already belongs to another account")

	// ErrLastAdmin is returned when a demotion would leave no admin behind.
	ErrLastAdmin = errors.New("cannot remove the last admin")

	// ErrAuthRequestNotUsable is returned by ConsumeAuthorizationRequest when the
	// request is unknown, already consumed or expired (0 rows updated).
	ErrAuthRequestNotUsable = errors.New("authorization request already consumed or expired")

	// ErrAuthCodeNotUsable is returned by RedeemAuthorizationCode when the code
	// was already redeemed by a concurrent request or has expired (0 rows updated).
	ErrAuthCodeNotUsable = errors.New("authorization code already redeemed or expired")
)
