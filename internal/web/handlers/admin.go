package handlers

import (
	"net/http"

	"github.com/pysugar/oauth-mail-sync/internal/db"
	"gorm.io/gorm"
)

// RegenerateAPIKeyHandler rotates the admin API key. The old key stops
// working immediately; the new one is returned once in the response.
func RegenerateAPIKeyHandler(database *gorm.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		apiKey := db.RegenerateAPIKey(database)
		writeJSON(w, http.StatusOK, map[string]string{"api_key": apiKey})
	}
}
