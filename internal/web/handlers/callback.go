// Package handlers holds the HTTP surface: the OAuth callback and the
// account management API.
package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/pysugar/oauth-mail-sync/internal/accounts"
	"github.com/pysugar/oauth-mail-sync/internal/auth/google"
	"github.com/pysugar/oauth-mail-sync/internal/auth/state"
	"github.com/pysugar/oauth-mail-sync/internal/logging"
)

// CallbackHandler processes the provider redirect that completes a link.
// The state token is consumed before anything else: whichever process
// deletes the row wins the completion, so a replayed or duplicated
// callback observably fails instead of double-linking.
func CallbackHandler(states *state.Store, g *google.Client, registry *accounts.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reqID := logging.GetRequestID(r.Context())
		q := r.URL.Query()

		if provErr := q.Get("error"); provErr != "" {
			log.Printf("[%s] ❌ Provider returned OAuth error: %s", reqID, provErr)
			renderErrorPage(w, http.StatusBadRequest, "The provider reported an authorization error.")
			return
		}

		stateToken := q.Get("state")
		code := q.Get("code")
		if stateToken == "" || code == "" {
			log.Printf("[%s] ❌ Callback missing state or code", reqID)
			renderErrorPage(w, http.StatusBadRequest, "The authorization response was incomplete.")
			return
		}

		userID, provider, err := states.Consume(stateToken)
		if errors.Is(err, state.ErrNotFound) {
			log.Printf("[%s] ⚠️ Unknown or already-consumed link state", reqID)
			renderErrorPage(w, http.StatusBadRequest, "This link is invalid, expired, or already completed.")
			return
		}
		if err != nil {
			log.Printf("[%s] ⚠️ Failed to consume link state: %v", reqID, err)
			renderErrorPage(w, http.StatusInternalServerError, "A storage error occurred. Please try again.")
			return
		}

		token, err := g.Exchange(r.Context(), code)
		if err != nil {
			log.Printf("[%s] ❌ Token exchange failed for user %d: %v", reqID, userID, err)
			renderErrorPage(w, http.StatusBadGateway, "The code could not be exchanged with the provider.")
			return
		}

		email, err := g.FetchEmail(r.Context(), token)
		if err != nil {
			log.Printf("[%s] ❌ Identity fetch failed for user %d: %v", reqID, userID, err)
			renderErrorPage(w, http.StatusBadGateway, "The linked address could not be resolved.")
			return
		}

		accountID, err := registry.UpsertLink(userID, provider, email, token.AccessToken, token.RefreshToken, token.Expiry)
		if err != nil {
			log.Printf("[%s] ⚠️ Failed to store linked account for user %d: %v", reqID, userID, err)
			renderErrorPage(w, http.StatusInternalServerError, "The connection could not be saved. Please try again.")
			return
		}

		log.Printf("[%s] ✅ Linked %s for user %d (account %s)", reqID, email, userID, accountID)
		renderSuccessPage(w, email)
	}
}
