package chi

import (
	"context"
	"net/http"
)

type userIDKey struct{}

// UserAuthMiddleware resolves the caller from the X-User-ID header set by the
// fronting gateway. Requests without it are rejected; blob downloads carry
// their own signature and are exempt.
func UserAuthMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := r.Header.Get("X-User-ID")
			if userID == "" {
				writeError(w, http.StatusUnauthorized, codeUnauthorized, "missing X-User-ID header")
				return
			}
			ctx := context.WithValue(r.Context(), userIDKey{}, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// userID returns the caller set by UserAuthMiddleware.
func userID(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey{}).(string)
	return id
}
