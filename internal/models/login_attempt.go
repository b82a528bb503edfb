package models

import "time"

// LoginAttempt tracks failed logins per source address for the brute-force
// guard. One row per address; the row is deleted on successful login or
// once an expired lock is observed.
type LoginAttempt struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	IP          string     `gorm:"uniqueIndex;not null" json:"ip"`
	Attempts    int        `gorm:"not null;default:0" json:"attempts"`
	LastAttempt time.Time  `json:"last_attempt"`
	LockedUntil *time.Time `json:"locked_until"`
	CreatedAt   time.Time  `json:"created_at"`
}
