package models

import "time"

// User is an end user identified by an opaque external numeric id.
// Subscription and quota fields gate background mailbox fetching.
type User struct {
	ID                 int64  `gorm:"primaryKey"` // external id, never auto-generated
	Username           string
	IsAdmin            bool       `gorm:"default:false"`
	SubscriptionExpiry *time.Time // nil means unlimited
	MaxAllowedAccounts int        `gorm:"default:1"`
	MonthlyQuota       int        `gorm:"default:10"` // 0 means unlimited
	ReceivedThisMonth  int        `gorm:"default:0"`
	LastResetPeriod    string     // UTC calendar month, "2006-01"
	CreatedAt          time.Time
	UpdatedAt          time.Time
}
