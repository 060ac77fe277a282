package deviceauth

import (
	"context"
	"net/http"
	"strings"
)

type claimsKey struct{}

// RequireDeviceToken rejects requests without a valid bearer token and puts
// the token's claims on the request context.
func RequireDeviceToken(tokens *TokenIssuer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
			if raw == "" {
				respond(w, http.StatusUnauthorized, errorBody("Missing token"))
				return
			}
			claims, err := tokens.Parse(raw)
			if err != nil {
				respond(w, http.StatusUnauthorized, errorBody("Invalid token"))
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey{}, claims)))
		})
	}
}

// ClaimsFrom returns the claims stored by RequireDeviceToken, or an empty
// Claims when there are none.
func ClaimsFrom(ctx context.Context) *Claims {
	if c, ok := ctx.Value(claimsKey{}).(*Claims); ok {
		return c
	}
	return &Claims{}
}
