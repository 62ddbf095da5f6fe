package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/pysugar/oauth-mail-sync/internal/accounts"
)

// AccountView is the serialized shape of a linked account. Token material
// is never exposed.
type AccountView struct {
	ID           string    `json:"id"`
	Provider     string    `json:"provider"`
	Email        string    `json:"email"`
	AccessExpiry time.Time `json:"access_expiry"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
}

// ListAccountsHandler returns the user's linked accounts as JSON.
func ListAccountsHandler(registry *accounts.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := userIDParam(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid user id")
			return
		}

		rows, err := registry.List(userID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "storage error")
			return
		}

		views := make([]AccountView, 0, len(rows))
		for _, row := range rows {
			views = append(views, AccountView{
				ID:           row.ID,
				Provider:     row.Provider,
				Email:        row.Email,
				AccessExpiry: row.AccessExpiry,
				IsActive:     row.IsActive,
				CreatedAt:    row.CreatedAt,
			})
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"accounts": views,
			"count":    len(views),
		})
	}
}

// SetAccountActiveHandler toggles background fetching for one account.
func SetAccountActiveHandler(registry *accounts.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := userIDParam(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid user id")
			return
		}
		accountID := chi.URLParam(r, "accountID")

		var body struct {
			Active bool `json:"active"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		err = registry.SetActive(accountID, userID, body.Active)
		if errors.Is(err, accounts.ErrNotFound) {
			writeError(w, http.StatusNotFound, "account not found")
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, "storage error")
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"id": accountID, "is_active": body.Active})
	}
}

// DeleteAccountHandler disconnects a linked account.
func DeleteAccountHandler(registry *accounts.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := userIDParam(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid user id")
			return
		}
		accountID := chi.URLParam(r, "accountID")

		err = registry.Delete(accountID, userID)
		if errors.Is(err, accounts.ErrNotFound) {
			writeError(w, http.StatusNotFound, "account not found")
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, "storage error")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
