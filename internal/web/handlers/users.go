package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/pysugar/oauth-mail-sync/internal/accounts"
)

// GetUserHandler returns the user's account info: quota usage, linked
// account count, and subscription expiry.
func GetUserHandler(registry *accounts.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := userIDParam(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid user id")
			return
		}

		user, err := registry.GetUser(userID)
		if errors.Is(err, accounts.ErrUserNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, "storage error")
			return
		}

		linked, err := registry.CountForUser(userID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "storage error")
			return
		}

		resp := map[string]interface{}{
			"id":                   user.ID,
			"username":             user.Username,
			"is_admin":             user.IsAdmin,
			"linked_accounts":      linked,
			"max_allowed_accounts": user.MaxAllowedAccounts,
			"monthly_quota":        user.MonthlyQuota,
			"received_this_month":  user.ReceivedThisMonth,
			"subscription_expiry":  user.SubscriptionExpiry,
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// SetSubscriptionHandler grants or adjusts a user's subscription. Admin only.
// days > 0 sets the expiry that many days out; days <= 0 clears it.
func SetSubscriptionHandler(registry *accounts.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := userIDParam(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid user id")
			return
		}

		var body struct {
			Days         int    `json:"days"`
			MaxAccounts  int    `json:"max_accounts"`
			MonthlyQuota int    `json:"monthly_quota"`
			Username     string `json:"username"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if body.MaxAccounts < 0 || body.MonthlyQuota < 0 {
			writeError(w, http.StatusBadRequest, "limits must not be negative")
			return
		}
		if body.MaxAccounts == 0 {
			body.MaxAccounts = accounts.DefaultMaxAllowedAccounts
		}

		if _, err := registry.GetUser(userID); errors.Is(err, accounts.ErrUserNotFound) {
			if err := registry.EnsureUser(userID, body.Username, false); err != nil {
				writeError(w, http.StatusInternalServerError, "storage error")
				return
			}
		} else if err != nil {
			writeError(w, http.StatusInternalServerError, "storage error")
			return
		}

		var expiry *time.Time
		if body.Days > 0 {
			t := time.Now().UTC().AddDate(0, 0, body.Days)
			expiry = &t
		}
		if err := registry.SetSubscription(userID, expiry, body.MaxAccounts, body.MonthlyQuota); err != nil {
			writeError(w, http.StatusInternalServerError, "storage error")
			return
		}

		log.Printf("✅ Subscription updated for user %d (days: %d, accounts: %d, quota: %d)",
			userID, body.Days, body.MaxAccounts, body.MonthlyQuota)
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"id":                   userID,
			"subscription_expiry":  expiry,
			"max_allowed_accounts": body.MaxAccounts,
			"monthly_quota":        body.MonthlyQuota,
		})
	}
}
