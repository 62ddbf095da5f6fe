// Package quota tracks per-user monthly fetch allowances.
package quota

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/pysugar/oauth-mail-sync/internal/db/models"
	"gorm.io/gorm"
)

// ErrUserNotFound means no user row backs the quota check.
var ErrUserNotFound = errors.New("quota: user not found")

// Gate authorizes or denies fetch attempts against a user's monthly quota
// and subscription state.
type Gate struct {
	db *gorm.DB
}

// NewGate creates a Gate.
func NewGate(gdb *gorm.DB) *Gate {
	return &Gate{db: gdb}
}

// Period formats the UTC calendar month quota periods are keyed on.
func Period(now time.Time) string {
	return now.UTC().Format("2006-01")
}

// ResetIfNewPeriod zeroes the counter and stamps the current period when
// the stored period differs (or was never set). The WHERE clause makes it
// idempotent within a month and a single atomic statement across
// processes.
func (g *Gate) ResetIfNewPeriod(userID int64, now time.Time) error {
	period := Period(now)
	res := g.db.Model(&models.User{}).
		Where("id = ? AND (last_reset_period IS NULL OR last_reset_period = '' OR last_reset_period <> ?)", userID, period).
		Updates(map[string]interface{}{
			"received_this_month": 0,
			"last_reset_period":   period,
		})
	if res.Error != nil {
		return fmt.Errorf("quota: reset period for user %d: %w", userID, res.Error)
	}
	if res.RowsAffected > 0 {
		log.Printf("📅 Reset monthly quota for user %d (period %s)", userID, period)
	}
	return nil
}

// MayFetch reports whether the user is under quota. A quota of 0 means
// unlimited.
func (g *Gate) MayFetch(userID int64) (bool, error) {
	var user models.User
	err := g.db.Select("monthly_quota", "received_this_month").Where("id = ?", userID).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, ErrUserNotFound
	}
	if err != nil {
		return false, fmt.Errorf("quota: load user %d: %w", userID, err)
	}
	if user.MonthlyQuota == 0 {
		return true, nil
	}
	return user.ReceivedThisMonth < user.MonthlyQuota, nil
}

// RecordFetched adds n to the user's counter as a SQL increment so
// concurrent recorders never lose updates.
func (g *Gate) RecordFetched(userID int64, n int) error {
	if n <= 0 {
		return nil
	}
	res := g.db.Model(&models.User{}).
		Where("id = ?", userID).
		Update("received_this_month", gorm.Expr("received_this_month + ?", n))
	if res.Error != nil {
		return fmt.Errorf("quota: record %d fetched for user %d: %w", n, userID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}
