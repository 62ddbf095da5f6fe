package models

import "time"

// LinkState binds a user to one in-flight authorization attempt.
// Rows are consumed (deleted) exactly once by whichever process completes
// the exchange first; aged rows are garbage-collected.
type LinkState struct {
	Token     string `gorm:"primaryKey"` // UUID
	UserID    int64  `gorm:"not null;index"`
	Provider  string `gorm:"not null"`
	CreatedAt time.Time
}
