package models

import "gorm.io/datatypes"

// Project is a collaborative project. Status only ever moves active→deleted
// (soft delete); the creator is fixed at creation.
type Project struct {
	BaseModel

	Name        string        `gorm:"not null" json:"name"`
	Description string        `gorm:"not null" json:"description"`
	Status      ProjectStatus `gorm:"not null;default:active" json:"status"`

	CreatorID string `gorm:"index;not null;type:uuid" json:"creator_id"`
	Creator   *User  `gorm:"foreignKey:CreatorID" json:"-"`

	Tags       datatypes.JSONSlice[string] `json:"tags"`
	LookingFor datatypes.JSONSlice[string] `json:"looking_for"`

	// No column default: gorm would skip a false value on insert and the
	// auto-open rule (recruitment opens only when roles are sought) would
	// silently flip it back to true.
	RecruitmentOpen bool `gorm:"not null" json:"recruitment_open"`
}
