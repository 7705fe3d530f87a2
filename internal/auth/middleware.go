package auth

import (
	"context"
	"net/http"
)

type contextKey string

const userIDKey contextKey = "user_id"

// LoadSession stores the user id of a valid session in the request context.
// Requests without a session pass through unchanged.
func LoadSession(sessions *SessionManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if userID, ok := sessions.Current(r); ok {
				r = r.WithContext(context.WithValue(r.Context(), userIDKey, userID))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// UserIDFromContext returns the session user id set by LoadSession.
func UserIDFromContext(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(userIDKey).(string)
	return userID, ok && userID != ""
}
