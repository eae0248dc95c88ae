package handlers

import (
	"net/http"

	"github.com/cvhub/apiserver/internal/services"
	"github.com/go-chi/chi/v5"
)

// RequireAuth verifies the bearer token against both its signature and
// the session store, then attaches the authenticated identity to the
// request context. Every protected route sits behind this middleware;
// it has no side effects beyond the context attachment.
func RequireAuth(auth *services.AuthService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := bearerToken(r)
			if err != nil {
				writeAuthError(w, err)
				return
			}

			identity, err := auth.Verify(r.Context(), token)
			if err != nil {
				writeAuthError(w, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), identity)))
		})
	}
}

// RequireAdmin passes only identities holding the admin role. It runs
// after RequireAuth and fails closed when no identity is present.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := identityFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		if !identity.IsAdmin() {
			writeError(w, http.StatusForbidden, "admin access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireOwnerOrAdmin passes when the identity owns the resource named
// by the given path parameter, or holds the admin role. It runs after
// RequireAuth and fails closed when no identity is present.
func RequireOwnerOrAdmin(userIDParam string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := identityFromContext(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			ownerID := chi.URLParam(r, userIDParam)
			if ownerID == "" {
				writeError(w, http.StatusBadRequest, "missing user id")
				return
			}
			if !identity.IsAdmin() && identity.ID != ownerID {
				writeError(w, http.StatusForbidden, "access denied")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
