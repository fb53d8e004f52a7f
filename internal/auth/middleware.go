// middleware.go -- Bearer-token authentication middleware.
package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/gofrs/uuid/v5"

	"github.com/setlog/setlog/internal/token"
)

type contextKey string

const userIDKey contextKey = "user_id"

// RequireAuth validates the Authorization header and injects the
// authenticated user's ID into the request context. Requests without a
// valid bearer token get 401.
func RequireAuth(issuer *token.Issuer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			raw, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || raw == "" {
				logDebug(r, "missing bearer token")
				Unauthorized(w, r, "authentication required")
				return
			}

			userID, err := issuer.Parse(raw)
			if err != nil {
				logDebug(r, "invalid bearer token", "error", err)
				Unauthorized(w, r, "invalid or expired token")
				return
			}

			ctx := context.WithValue(r.Context(), userIDKey, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserIDFromContext returns the authenticated user's ID, or false if the
// request did not pass through RequireAuth.
func UserIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(userIDKey).(uuid.UUID)
	return id, ok
}
