package accounts

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/pysugar/oauth-mail-sync/internal/db/models"
	"gorm.io/gorm"
)

// ErrUserNotFound means no such user row exists.
var ErrUserNotFound = errors.New("accounts: user not found")

// Defaults applied to users created on first interaction.
const (
	DefaultMaxAllowedAccounts = 1
	DefaultMonthlyQuota       = 10
)

// EnsureUser creates the user on first interaction and keeps the admin
// flag in sync afterwards.
func (r *Registry) EnsureUser(userID int64, username string, isAdmin bool) error {
	var user models.User
	err := r.db.Select("id", "is_admin").Where("id = ?", userID).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		user = models.User{
			ID:                 userID,
			Username:           username,
			IsAdmin:            isAdmin,
			MaxAllowedAccounts: DefaultMaxAllowedAccounts,
			MonthlyQuota:       DefaultMonthlyQuota,
			LastResetPeriod:    time.Now().UTC().Format("2006-01"),
		}
		if err := r.db.Create(&user).Error; err != nil {
			return fmt.Errorf("accounts: create user %d: %w", userID, err)
		}
		log.Printf("👤 New user %d created (admin: %v)", userID, isAdmin)
		return nil
	}
	if err != nil {
		return fmt.Errorf("accounts: load user %d: %w", userID, err)
	}
	if user.IsAdmin != isAdmin {
		if err := r.db.Model(&models.User{}).Where("id = ?", userID).Update("is_admin", isAdmin).Error; err != nil {
			return fmt.Errorf("accounts: update admin flag for %d: %w", userID, err)
		}
		log.Printf("👤 Admin status for user %d updated to %v", userID, isAdmin)
	}
	return nil
}

// GetUser loads one user.
func (r *Registry) GetUser(userID int64) (*models.User, error) {
	var user models.User
	err := r.db.Where("id = ?", userID).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("accounts: load user %d: %w", userID, err)
	}
	return &user, nil
}

// SetSubscription updates subscription expiry, account limit, and monthly
// quota for a user. expiry nil means unlimited.
func (r *Registry) SetSubscription(userID int64, expiry *time.Time, maxAccounts, monthlyQuota int) error {
	updates := map[string]interface{}{
		"subscription_expiry":  expiry,
		"max_allowed_accounts": maxAccounts,
		"monthly_quota":        monthlyQuota,
	}
	res := r.db.Model(&models.User{}).Where("id = ?", userID).Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("accounts: set subscription for %d: %w", userID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}
