package models

import (
	"time"
)

// User is a person known to the expense tracker. Rows are created on first
// sign-in and keyed by the identity provider's subject id.
type User struct {
	ID         string `gorm:"primaryKey;size:36"           json:"id"`
	SubjectID  string `gorm:"uniqueIndex;not null"         json:"subject_id"`
	Email      string `gorm:"uniqueIndex;not null"         json:"email"`
	Name       string `json:"name"`
	PictureURL string `json:"picture_url"`
	IsAdmin    bool   `gorm:"not null;default:false;index" json:"is_admin"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}
