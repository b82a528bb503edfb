package models

import "time"

// Session is a server-side session row keyed by an opaque rotating token.
// Rows are only created on successful login or registration, so every
// session carries a principal and should carry the fingerprint of the
// request that created it.
type Session struct {
	BaseModel

	Token  string `gorm:"uniqueIndex;not null" json:"-"`
	UserID string `gorm:"index;not null;type:uuid" json:"user_id"`
	User   *User  `gorm:"foreignKey:UserID" json:"-"`

	// Fingerprint stamped at issue time.
	IPAddress string `json:"ip_address"`
	UserAgent string `json:"user_agent"`

	Remember   bool      `gorm:"default:false" json:"remember"`
	ExpiresAt  time.Time `gorm:"index" json:"expires_at"`
	LastUsedAt time.Time `json:"last_used_at"`
}

// Fingerprinted reports whether the session had a fingerprint stamped.
func (s *Session) Fingerprinted() bool {
	return s.IPAddress != "" && s.UserAgent != ""
}
