package token

import (
	"github.com/expense-tracker/authgate/internal/core"

	"github.com/golang-jwt/jwt/v5"
)

// TokenTypeBearer is the token_type reported to OAuth clients.
const TokenTypeBearer = "bearer"

// Result is an alias for core.TokenResult.
type Result = core.TokenResult

// Subject is an alias for core.TokenSubject.
type Subject = core.TokenSubject

// Claims is the signed payload of a session credential.
type Claims struct {
	Email   string `json:"email"`
	IsAdmin bool   `json:"is_admin"`
	Type    string `json:"typ"`
	jwt.RegisteredClaims
}
