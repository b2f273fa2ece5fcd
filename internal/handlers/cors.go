package handlers

import (
	"net/http"

	"github.com/rs/cors"
)

// CORS wraps next with cross-origin headers for the given origins. A "*" entry, or an empty list,
// allows any origin. Credentials are never allowed, so a wildcard can't leak cookies to other sites.
// Preflight requests are answered with 204 without reaching next.
func CORS(allowedOrigins []string, next http.Handler) http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: false,
	}).Handler(next)
}
