package models

import "time"

// Membership is one row per (project, user) pair. The unique index is the
// race-free gate for concurrent joins; left/kicked rows are kept as history
// and are never reset to active.
type Membership struct {
	BaseModel

	ProjectID string   `gorm:"uniqueIndex:idx_membership_project_user;not null;type:uuid" json:"project_id"`
	Project   *Project `gorm:"foreignKey:ProjectID" json:"-"`
	UserID    string   `gorm:"uniqueIndex:idx_membership_project_user;not null;type:uuid" json:"user_id"`
	User      *User    `gorm:"foreignKey:UserID" json:"-"`

	Role   MemberRole       `gorm:"not null" json:"role"`
	Status MembershipStatus `gorm:"not null;default:active" json:"membership_status"`

	JoinedAt time.Time  `json:"joined_at"`
	LeftAt   *time.Time `json:"left_at"`
}
