// Package state issues and consumes one-time link state tokens.
package state

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/pysugar/oauth-mail-sync/internal/db/models"
	"gorm.io/gorm"
)

// DefaultMaxAge bounds how long an unconsumed state stays redeemable.
const DefaultMaxAge = 15 * time.Minute

// ErrNotFound means the token is unknown, already consumed, or expired.
// During a normal link flow this is the expected signal that another
// process completed the exchange first.
var ErrNotFound = errors.New("state: link state not found")

// Store persists link states in the shared database so the callback
// process and the bot process observe the same set.
type Store struct {
	db     *gorm.DB
	maxAge time.Duration
}

// NewStore creates a Store. maxAge <= 0 selects DefaultMaxAge.
func NewStore(gdb *gorm.DB, maxAge time.Duration) *Store {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	return &Store{db: gdb, maxAge: maxAge}
}

// Issue records a fresh state token bound to the user and provider.
func (s *Store) Issue(userID int64, provider string) (string, error) {
	st := models.LinkState{
		Token:     uuid.New().String(),
		UserID:    userID,
		Provider:  provider,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.db.Create(&st).Error; err != nil {
		return "", fmt.Errorf("state: store link state: %w", err)
	}
	return st.Token, nil
}

// Consume atomically reads and deletes a state token. The DELETE's
// rows-affected count decides the winner when two processes race: exactly
// one caller gets the row, every other caller gets ErrNotFound.
func (s *Store) Consume(token string) (userID int64, provider string, err error) {
	var st models.LinkState
	if err := s.db.Where("token = ?", token).First(&st).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, "", ErrNotFound
		}
		return 0, "", fmt.Errorf("state: load link state: %w", err)
	}

	res := s.db.Where("token = ?", token).Delete(&models.LinkState{})
	if res.Error != nil {
		return 0, "", fmt.Errorf("state: delete link state: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		// A concurrent consumer won the delete.
		return 0, "", ErrNotFound
	}

	if time.Since(st.CreatedAt) > s.maxAge {
		log.Printf("🧹 Discarded expired link state for user %d (age > %s)", st.UserID, s.maxAge)
		return 0, "", ErrNotFound
	}
	return st.UserID, st.Provider, nil
}

// Pending reports whether an unconsumed state row still exists. The link
// completion probe uses this to distinguish "still waiting" from "done".
func (s *Store) Pending(token string) (bool, error) {
	var count int64
	if err := s.db.Model(&models.LinkState{}).Where("token = ?", token).Count(&count).Error; err != nil {
		return false, fmt.Errorf("state: count link state: %w", err)
	}
	return count > 0, nil
}

// PurgeExpired garbage-collects abandoned states older than maxAge.
func (s *Store) PurgeExpired(now time.Time) (int64, error) {
	cutoff := now.Add(-s.maxAge)
	res := s.db.Where("created_at < ?", cutoff).Delete(&models.LinkState{})
	if res.Error != nil {
		return 0, fmt.Errorf("state: purge expired states: %w", res.Error)
	}
	return res.RowsAffected, nil
}
