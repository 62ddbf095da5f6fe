package models

import "time"

// LinkedAccount stores one encrypted credential set for a
// (user, email, provider) triple.
type LinkedAccount struct {
	ID              string `gorm:"primaryKey"` // UUID
	UserID          int64  `gorm:"uniqueIndex:idx_user_email_provider;not null"`
	Email           string `gorm:"uniqueIndex:idx_user_email_provider;not null"`
	Provider        string `gorm:"uniqueIndex:idx_user_email_provider;not null"` // e.g. "google"
	EncAccessToken  string // sealed by vault.Vault
	EncRefreshToken string // sealed; empty when the provider never returned one
	AccessExpiry    time.Time
	IsActive        bool   `gorm:"default:true"`
	FetchMarker     string // incremental-fetch bookmark, opaque to this service
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
