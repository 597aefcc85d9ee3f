package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/inboxorcist/inboxorcist/internal/authn"
)

// Context keys for the verified caller identity.
type contextKey string

const (
	ContextUserIDKey contextKey = "userID"
	ContextEmailKey  contextKey = "userEmail"
)

// AuthMiddleware verifies the bearer ID token on every request against
// audience (the app's OAuth client id) and attaches the caller's
// verified subject/email to the request context. There is no session
// store: every request carries its own token.
func AuthMiddleware(audience string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authz := r.Header.Get("Authorization")
			tokenString, ok := strings.CutPrefix(authz, "Bearer ")
			if !ok || tokenString == "" {
				http.Error(w, "not authenticated: missing bearer token", http.StatusUnauthorized)
				return
			}

			identity, err := authn.VerifyGoogleIDToken(r.Context(), audience, tokenString)
			if err != nil {
				http.Error(w, "not authenticated: "+err.Error(), http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), ContextUserIDKey, identity.Subject)
			ctx = context.WithValue(ctx, ContextEmailKey, identity.Email)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
