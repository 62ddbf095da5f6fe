package middleware

import (
	"net/http"

	"github.com/pysugar/oauth-mail-sync/internal/logging"
)

// RequestID injects a short request ID into the request context so handlers
// can tag their log lines. An incoming X-Request-Id header is reused.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = logging.GenerateRequestID()
		}
		w.Header().Set("X-Request-Id", id)
		next.ServeHTTP(w, r.WithContext(logging.WithRequestID(r.Context(), id)))
	})
}
