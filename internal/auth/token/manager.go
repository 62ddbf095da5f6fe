// Package token decides when an access token needs renewal and performs
// the refresh against the provider.
package token

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/pysugar/oauth-mail-sync/internal/auth/google"
	"github.com/pysugar/oauth-mail-sync/internal/db/models"
	"github.com/pysugar/oauth-mail-sync/internal/util"
	"github.com/pysugar/oauth-mail-sync/internal/vault"
	"gorm.io/gorm"
)

// DefaultSkew is the safety margin subtracted from a token's expiry so a
// token never expires mid-call.
const DefaultSkew = 2 * time.Minute

// ErrUnavailable means no usable access token could be produced for the
// account this cycle. The account may be revoked, mid-outage, or missing a
// refresh token; callers skip it and rely on the next cycle.
var ErrUnavailable = errors.New("token: no usable access token")

// Manager handles per-account token lifecycle including refresh.
type Manager struct {
	db     *gorm.DB
	vault  *vault.Vault
	google *google.Client
	skew   time.Duration

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewManager creates a Manager. skew <= 0 selects DefaultSkew.
func NewManager(gdb *gorm.DB, v *vault.Vault, g *google.Client, skew time.Duration) *Manager {
	if skew <= 0 {
		skew = DefaultSkew
	}
	return &Manager{
		db:     gdb,
		vault:  v,
		google: g,
		skew:   skew,
		locks:  make(map[string]*sync.Mutex),
	}
}

// accountLock serializes refreshes for one account: two concurrent
// refreshes must not race to overwrite token material inconsistently.
func (m *Manager) accountLock(accountID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	lock, ok := m.locks[accountID]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[accountID] = lock
	}
	return lock
}

// EnsureUsableToken returns a decrypted, immediately usable access token
// for the account, refreshing it first when it is inside the skew window.
// Every failure mode maps to ErrUnavailable; only provider-confirmed
// revocation (and credential corruption) deactivates the account.
func (m *Manager) EnsureUsableToken(ctx context.Context, accountID string) (string, error) {
	lock := m.accountLock(accountID)
	lock.Lock()
	defer lock.Unlock()

	var account models.LinkedAccount
	if err := m.db.Where("id = ?", accountID).First(&account).Error; err != nil {
		return "", fmt.Errorf("%w: load account %s: %v", ErrUnavailable, accountID, err)
	}
	if !account.IsActive {
		return "", fmt.Errorf("%w: account %s is deactivated", ErrUnavailable, account.Email)
	}

	accessToken, err := m.vault.Open(account.EncAccessToken)
	if err != nil {
		return "", m.quarantine(&account, "access token", err)
	}

	if accessToken != "" && time.Now().Add(m.skew).Before(account.AccessExpiry) {
		return accessToken, nil
	}

	return m.refresh(ctx, &account)
}

// refresh renews the access token using the stored refresh token. Caller
// holds the account lock.
func (m *Manager) refresh(ctx context.Context, account *models.LinkedAccount) (string, error) {
	refreshToken, err := m.vault.Open(account.EncRefreshToken)
	if err != nil {
		return "", m.quarantine(account, "refresh token", err)
	}
	if refreshToken == "" {
		log.Printf("⚠️ No refresh token stored for %s, cannot renew", account.Email)
		return "", fmt.Errorf("%w: account %s has no refresh token", ErrUnavailable, account.Email)
	}

	newToken, err := m.google.TokenSource(ctx, refreshToken).Token()
	if err != nil {
		if isPermanentRefreshError(err) {
			// Revocation is irreversible without a brand-new link.
			if dbErr := m.deactivate(account.ID); dbErr != nil {
				log.Printf("⚠️ Failed to deactivate revoked account %s: %v", account.Email, dbErr)
			}
			log.Printf("🔒 Refresh token for %s is revoked, account deactivated", account.Email)
			return "", fmt.Errorf("%w: refresh token revoked for %s", ErrUnavailable, account.Email)
		}
		log.Printf("⏳ Transient refresh failure for %s, will retry next cycle: %s",
			account.Email, util.TruncateLog(err.Error(), util.DefaultLogMaxLen))
		return "", fmt.Errorf("%w: transient refresh failure for %s", ErrUnavailable, account.Email)
	}

	encAccess, err := m.vault.Seal(newToken.AccessToken)
	if err != nil {
		return "", fmt.Errorf("%w: seal refreshed token: %v", ErrUnavailable, err)
	}
	updates := map[string]interface{}{
		"enc_access_token": encAccess,
		"access_expiry":    newToken.Expiry.UTC(),
		"is_active":        true,
	}
	// Persist a rotated refresh token when the provider actually returned
	// a new one; otherwise the stored token stays untouched.
	if newToken.RefreshToken != "" && newToken.RefreshToken != refreshToken {
		encRefresh, err := m.vault.Seal(newToken.RefreshToken)
		if err != nil {
			return "", fmt.Errorf("%w: seal rotated refresh token: %v", ErrUnavailable, err)
		}
		updates["enc_refresh_token"] = encRefresh
		log.Printf("🔄 Rotating refresh token for %s", account.Email)
	}
	if err := m.db.Model(&models.LinkedAccount{}).Where("id = ?", account.ID).Updates(updates).Error; err != nil {
		return "", fmt.Errorf("%w: persist refreshed token: %v", ErrUnavailable, err)
	}

	log.Printf("✅ Refreshed access token for %s (token %s, expires %s)",
		account.Email, util.MaskToken(newToken.AccessToken), newToken.Expiry.Format(time.RFC3339))
	return newToken.AccessToken, nil
}

// quarantine handles credential material that failed authentication on
// decrypt. A value that cannot be opened is indistinguishable from a
// tampered one, so the account is deactivated pending investigation
// rather than treated as "not configured".
func (m *Manager) quarantine(account *models.LinkedAccount, what string, cause error) error {
	log.Printf("🚨 Failed to decrypt %s for %s, deactivating account: %v", what, account.Email, cause)
	if dbErr := m.deactivate(account.ID); dbErr != nil {
		log.Printf("⚠️ Failed to deactivate account %s: %v", account.Email, dbErr)
	}
	return fmt.Errorf("%w: %s for %s failed decryption", ErrUnavailable, what, account.Email)
}

func (m *Manager) deactivate(accountID string) error {
	return m.db.Model(&models.LinkedAccount{}).
		Where("id = ?", accountID).
		Update("is_active", false).Error
}

func isPermanentRefreshError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	permanentMarkers := []string{
		"invalid_grant",
		"invalid_client",
		"unauthorized_client",
		"token has been expired or revoked",
		"revoked",
	}
	for _, marker := range permanentMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
