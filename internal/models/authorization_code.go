package models

import "time"

// AuthorizationCode is the single-use code handed to the client after the
// user signed in. Only the SHA-256 of the code is stored.
type AuthorizationCode struct {
	ID       uint   `gorm:"primaryKey;autoIncrement"`
	CodeHash string `gorm:"uniqueIndex;size:64;not null"`

	RequestID string `gorm:"not null;index;size:64"` // FK → AuthorizationRequest.RequestID
	UserID    string `gorm:"not null;index;size:36"` // FK → User.ID

	// Copied from the request so redemption does not depend on its row surviving cleanup.
	ClientID            string `gorm:"not null"`
	RedirectURI         string `gorm:"not null"`
	CodeChallenge       string `gorm:"not null"`
	CodeChallengeMethod string `gorm:"not null;default:'S256'"`

	RedeemedAt *time.Time
	ExpiresAt  time.Time `gorm:"not null;index"`
	CreatedAt  time.Time
}

func (a *AuthorizationCode) IsExpired(now time.Time) bool {
	return !now.Before(a.ExpiresAt)
}

func (a *AuthorizationCode) IsRedeemed() bool {
	return a.RedeemedAt != nil
}

func (AuthorizationCode) TableName() string {
	return "authorization_codes"
}
