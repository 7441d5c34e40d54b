package middleware

import (
	"log/slog"
	"net/http"

	"github.com/Busskov/study-clock/internal/identity"
)

// NewAuthMiddleware refuses requests that carry no valid identity. The
// rejection happens before any websocket upgrade, so an unauthenticated
// handshake allocates no session and receives no frames.
func NewAuthMiddleware(logger *slog.Logger, provider identity.Provider) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqMeta, ok := ReqMetadataFrom(r.Context())
			if !ok {
				// Metadata middleware must run first.
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}

			user, ok := provider.Resolve(r)
			if !ok {
				logger.Warn("Rejecting unauthenticated request",
					slog.String("ip", reqMeta.IP),
					slog.String("uri", r.RequestURI),
				)
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			reqMeta.User = &user
			next.ServeHTTP(w, r)
		})
	}
}

// NewOptionalAuthMiddleware resolves an identity when one is present but
// lets anonymous requests through. Used by the support room.
func NewOptionalAuthMiddleware(provider identity.Provider) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if reqMeta, ok := ReqMetadataFrom(r.Context()); ok {
				if user, resolved := provider.Resolve(r); resolved {
					reqMeta.User = &user
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
