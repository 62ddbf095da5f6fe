package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/pysugar/oauth-mail-sync/internal/accounts"
	"github.com/pysugar/oauth-mail-sync/internal/auth/google"
	"github.com/pysugar/oauth-mail-sync/internal/auth/state"
)

func userIDParam(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// StartLinkHandler issues a link state and returns the provider consent
// URL. Creates the user on first interaction.
func StartLinkHandler(states *state.Store, g *google.Client, registry *accounts.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := userIDParam(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid user id")
			return
		}

		var body struct {
			Username string `json:"username"`
			Provider string `json:"provider"`
		}
		if r.Body != nil {
			// Body is optional; ignore decode errors on empty requests.
			json.NewDecoder(r.Body).Decode(&body)
		}
		if body.Provider == "" {
			body.Provider = "google"
		}

		user, err := registry.GetUser(userID)
		if errors.Is(err, accounts.ErrUserNotFound) {
			if err := registry.EnsureUser(userID, body.Username, false); err != nil {
				log.Printf("⚠️ Failed to ensure user %d: %v", userID, err)
				writeError(w, http.StatusInternalServerError, "storage error")
				return
			}
			user, err = registry.GetUser(userID)
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, "storage error")
			return
		}
		count, err := registry.CountForUser(userID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "storage error")
			return
		}
		if count >= int64(user.MaxAllowedAccounts) {
			writeError(w, http.StatusForbidden, "linked account limit reached")
			return
		}

		token, err := states.Issue(userID, body.Provider)
		if err != nil {
			log.Printf("⚠️ Failed to issue link state for user %d: %v", userID, err)
			writeError(w, http.StatusInternalServerError, "storage error")
			return
		}

		writeJSON(w, http.StatusCreated, map[string]string{
			"state":    token,
			"auth_url": g.ConsentURL(token),
		})
	}
}

// LinkStatusHandler reports whether a link attempt completed. A missing
// state row together with a stored account means the callback process
// finished the exchange.
func LinkStatusHandler(states *state.Store, registry *accounts.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := userIDParam(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid user id")
			return
		}
		token := chi.URLParam(r, "state")

		pending, err := states.Pending(token)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "storage error")
			return
		}
		if pending {
			writeJSON(w, http.StatusOK, map[string]string{"status": "pending"})
			return
		}

		account, err := registry.LatestForUser(userID, "google")
		if errors.Is(err, accounts.ErrNotFound) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "failed"})
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, "storage error")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{
			"status": "completed",
			"email":  account.Email,
		})
	}
}
