package models

import "time"

// RejectionCooldown is how long a rejected join request blocks a new one
// from the same user, measured from the rejected request's CreatedAt.
const RejectionCooldown = 30 * 24 * time.Hour

// JoinRequest is one row per (project, user) pair. The unique index makes
// the insert itself the gate against duplicate pending requests; stale
// rejected rows are replaced in place when the cooldown has elapsed.
type JoinRequest struct {
	BaseModel

	ProjectID string   `gorm:"uniqueIndex:idx_request_project_user;not null;type:uuid" json:"project_id"`
	Project   *Project `gorm:"foreignKey:ProjectID" json:"-"`
	UserID    string   `gorm:"uniqueIndex:idx_request_project_user;not null;type:uuid" json:"user_id"`
	User      *User    `gorm:"foreignKey:UserID" json:"-"`

	Status  RequestStatus `gorm:"not null;default:pending" json:"status"`
	Message string        `json:"message"`
}
