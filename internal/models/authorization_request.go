package models

import "time"

// CodeChallengeMethodS256 is the only PKCE transformation accepted.
const CodeChallengeMethodS256 = "S256"

// AuthorizationRequest records a pending /oauth/authorize call while the user
// signs in with the identity provider. RequestID travels through the provider
// as the state parameter; it is consumed exactly once by the callback.
type AuthorizationRequest struct {
	RequestID           string `gorm:"primaryKey;size:64"`
	ClientID            string `gorm:"not null;index"`
	RedirectURI         string `gorm:"not null"`
	CodeChallenge       string `gorm:"not null"`
	CodeChallengeMethod string `gorm:"not null;default:'S256'"`
	State               string `gorm:"size:1024"` // client state, echoed back verbatim

	ConsumedAt *time.Time
	ExpiresAt  time.Time `gorm:"not null;index"`
	CreatedAt  time.Time
}

func (r *AuthorizationRequest) IsExpired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

func (r *AuthorizationRequest) IsConsumed() bool {
	return r.ConsumedAt != nil
}

func (AuthorizationRequest) TableName() string {
	return "authorization_requests"
}
