package handler

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/tdrizzle0202/hiddencash/common/utils"
)

type contextKey string

const userIDKey contextKey = "user_id"

// RequireUser extracts the authenticated user from the identity header
// the API gateway injects after JWT verification. Requests without one
// never reach a handler.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-User-ID")
		if _, err := uuid.Parse(id); err != nil {
			utils.WriteError(w, http.StatusUnauthorized, "Missing or invalid user identity")
			return
		}
		ctx := context.WithValue(r.Context(), userIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// UserID returns the authenticated user set by RequireUser.
func UserID(r *http.Request) string {
	id, _ := r.Context().Value(userIDKey).(string)
	return id
}
