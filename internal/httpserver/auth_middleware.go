package httpserver

import (
	"log/slog"
	"net/http"

	"chatsync/internal/security"
)

// AuthMiddleware validates the Bearer token and requires it to be issued for
// the account this bridge serves.
func AuthMiddleware(tokens *security.TokenService, accountID string, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenStr, ok := security.BearerToken(r, false)
			if !ok {
				writeJSON(w, r, http.StatusUnauthorized, fail("missing or invalid Authorization header"))
				return
			}
			if err := tokens.Authorize(tokenStr, accountID); err != nil {
				log.Debug("rejected bridge token", "path", r.URL.Path, "error", err)
				writeJSON(w, r, http.StatusUnauthorized, fail("invalid token"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
