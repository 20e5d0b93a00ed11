package identity

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/abgdnv/storefront/pkg/auth"
)

// XUserID carries the principal id when the caller was already authenticated upstream (api gateway).
const XUserID = "X-User-Id"

// Middleware resolves the principal of every request and stores it in the request context.
// A bearer token is verified when a verifier is configured; an invalid token is rejected with 401.
// Without a token the X-User-Id header is used, and without either the caller is the guest.
func Middleware(verifier auth.Verifier, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			who := Guest

			if authHeader := r.Header.Get("Authorization"); authHeader != "" && verifier != nil {
				tokenString := strings.TrimPrefix(authHeader, "Bearer ")
				if tokenString == authHeader {
					http.Error(w, "Bearer token is required", http.StatusUnauthorized)
					return
				}
				token, err := verifier.Verify(ctx, tokenString)
				if err != nil {
					logger.Warn("token verification failed", "error", err)
					http.Error(w, "Invalid token", http.StatusUnauthorized)
					return
				}
				subject, ok := token.Subject()
				if !ok || subject == "" {
					http.Error(w, "no claim `sub`", http.StatusUnauthorized)
					return
				}
				who = User(subject)
				ctx = WithToken(ctx, tokenString)
			} else if userID := strings.TrimSpace(r.Header.Get(XUserID)); userID != "" {
				who = User(userID)
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(ctx, who)))
		})
	}
}
