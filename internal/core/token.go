package core

import (
	"time"
)

// Token categories carried in the typ claim.
const (
	TokenCategoryAccess  = "access"
	TokenCategoryRefresh = "refresh"
)

// TokenResult is a freshly signed credential.
type TokenResult struct {
	TokenString string
	TokenType   string
	ExpiresAt   time.Time
	ExpiresIn   int64 // seconds
}

// TokenClaims is what a verified credential asserts.
type TokenClaims struct {
	UserID    string
	Email     string
	IsAdmin   bool
	Category  string
	TokenID   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// TokenSubject is the minimal user view needed to mint a credential.
type TokenSubject struct {
	UserID  string
	Email   string
	IsAdmin bool
}

// TokenProvider mints and verifies session credentials.
type TokenProvider interface {
	Issue(subject TokenSubject) (*TokenResult, error)
	IssueRefresh(subject TokenSubject) (*TokenResult, error)
	Verify(tokenString string) (*TokenClaims, error)
	VerifyRefresh(tokenString string) (*TokenClaims, error)
}
