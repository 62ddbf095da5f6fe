// Package accounts is the durable store of users and their linked
// mailbox accounts.
package accounts

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pysugar/oauth-mail-sync/internal/db/models"
	"github.com/pysugar/oauth-mail-sync/internal/vault"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrNotFound means the account does not exist or belongs to another user.
var ErrNotFound = errors.New("accounts: account not found")

// Registry persists linked accounts with vault-sealed token material.
type Registry struct {
	db    *gorm.DB
	vault *vault.Vault
}

// NewRegistry creates a Registry.
func NewRegistry(gdb *gorm.DB, v *vault.Vault) *Registry {
	return &Registry{db: gdb, vault: v}
}

// UpsertLink records a completed link as a single conditional write.
// A re-link of the same (user, email, provider) merges into the existing
// row: access token and expiry always overwritten, refresh token only when
// the new exchange actually returned one (providers omit it on re-consent),
// active forced true. The retention rule lives in SQL so two racing
// completions converge regardless of arrival order.
func (r *Registry) UpsertLink(userID int64, provider, email, accessToken, refreshToken string, expiry time.Time) (string, error) {
	encAccess, err := r.vault.Seal(accessToken)
	if err != nil {
		return "", fmt.Errorf("accounts: seal access token: %w", err)
	}
	encRefresh, err := r.vault.Seal(refreshToken)
	if err != nil {
		return "", fmt.Errorf("accounts: seal refresh token: %w", err)
	}

	now := time.Now().UTC()
	acc := models.LinkedAccount{
		ID:              uuid.New().String(),
		UserID:          userID,
		Email:           email,
		Provider:        provider,
		EncAccessToken:  encAccess,
		EncRefreshToken: encRefresh,
		AccessExpiry:    expiry.UTC(),
		IsActive:        true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	err = r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "email"}, {Name: "provider"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"enc_access_token":  gorm.Expr("excluded.enc_access_token"),
			"access_expiry":     gorm.Expr("excluded.access_expiry"),
			"enc_refresh_token": gorm.Expr("CASE WHEN excluded.enc_refresh_token <> '' THEN excluded.enc_refresh_token ELSE linked_accounts.enc_refresh_token END"),
			"is_active":         true,
			"updated_at":        now,
		}),
	}).Create(&acc).Error
	if err != nil {
		return "", fmt.Errorf("accounts: upsert link: %w", err)
	}

	// The insert id is discarded when the conflict branch ran; read back
	// the surviving row's id.
	var row models.LinkedAccount
	if err := r.db.Select("id").
		Where("user_id = ? AND email = ? AND provider = ?", userID, email, provider).
		First(&row).Error; err != nil {
		return "", fmt.Errorf("accounts: load upserted link: %w", err)
	}
	return row.ID, nil
}

// List returns all linked accounts owned by the user.
func (r *Registry) List(userID int64) ([]models.LinkedAccount, error) {
	var rows []models.LinkedAccount
	if err := r.db.Where("user_id = ?", userID).Order("created_at").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("accounts: list for user %d: %w", userID, err)
	}
	return rows, nil
}

// Get loads one account with an ownership check.
func (r *Registry) Get(accountID string, userID int64) (*models.LinkedAccount, error) {
	var row models.LinkedAccount
	err := r.db.Where("id = ? AND user_id = ?", accountID, userID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("accounts: load account: %w", err)
	}
	return &row, nil
}

// SetActive toggles background fetching for an account the user owns.
func (r *Registry) SetActive(accountID string, userID int64, active bool) error {
	res := r.db.Model(&models.LinkedAccount{}).
		Where("id = ? AND user_id = ?", accountID, userID).
		Update("is_active", active)
	if res.Error != nil {
		return fmt.Errorf("accounts: set active: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete disconnects an account the user owns.
func (r *Registry) Delete(accountID string, userID int64) error {
	res := r.db.Where("id = ? AND user_id = ?", accountID, userID).Delete(&models.LinkedAccount{})
	if res.Error != nil {
		return fmt.Errorf("accounts: delete: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// CountForUser backs the max-allowed-accounts check at link initiation.
func (r *Registry) CountForUser(userID int64) (int64, error) {
	var count int64
	if err := r.db.Model(&models.LinkedAccount{}).Where("user_id = ?", userID).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("accounts: count for user %d: %w", userID, err)
	}
	return count, nil
}

// LatestForUser returns the most recently linked account for a provider.
// The link completion probe uses it once the state row is gone.
func (r *Registry) LatestForUser(userID int64, provider string) (*models.LinkedAccount, error) {
	var row models.LinkedAccount
	err := r.db.Where("user_id = ? AND provider = ?", userID, provider).
		Order("updated_at DESC").First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("accounts: latest for user %d: %w", userID, err)
	}
	return &row, nil
}

// ListEligibleForPolling returns active accounts whose owner's
// subscription is unlimited or unexpired at now.
func (r *Registry) ListEligibleForPolling(now time.Time) ([]models.LinkedAccount, error) {
	var rows []models.LinkedAccount
	err := r.db.
		Joins("JOIN users ON users.id = linked_accounts.user_id").
		Where("linked_accounts.is_active = ?", true).
		Where("users.subscription_expiry IS NULL OR users.subscription_expiry > ?", now.UTC()).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("accounts: list eligible: %w", err)
	}
	return rows, nil
}

// UpdateFetchMarker persists the incremental-fetch bookmark after a
// successful fetch.
func (r *Registry) UpdateFetchMarker(accountID, marker string) error {
	res := r.db.Model(&models.LinkedAccount{}).
		Where("id = ?", accountID).
		Update("fetch_marker", marker)
	if res.Error != nil {
		return fmt.Errorf("accounts: update fetch marker: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
