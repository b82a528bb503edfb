package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User describes a registered account. Identity fields are immutable once
// created; accounts are never deleted.
type User struct {
	ID            string `gorm:"primaryKey;type:uuid" json:"id"`
	Username      string `gorm:"not null" json:"username"`
	UsernameLower string `gorm:"uniqueIndex;not null" json:"-"`
	Email         string `gorm:"uniqueIndex;not null" json:"email"`
	Password      string `gorm:"not null" json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeCreate ensures a UUID is present and the lookup column mirrors the
// username before persisting.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.UsernameLower == "" {
		u.UsernameLower = strings.ToLower(u.Username)
	}
	return nil
}

// PublicView is the subset of a user safe to expose to clients.
type PublicView struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// Public returns the client-facing view of the user.
func (u *User) Public() PublicView {
	return PublicView{ID: u.ID, Username: u.Username, Email: u.Email}
}
