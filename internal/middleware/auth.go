package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/tessera/api/internal/response"
	"github.com/tessera/api/internal/roles"
)

// contextKey is an unexported type for context keys in this package.
type contextKey string

// UserIDKey is the context key for the authenticated user's ID.
const UserIDKey contextKey = "userID"

// UserRoleKey is the context key for the authenticated user's role.
const UserRoleKey contextKey = "userRole"

const unauthenticated = "Please authenticate"

// AccessTokenParser validates an access token and returns the user ID it was issued to.
type AccessTokenParser interface {
	ParseAccess(raw string) (string, error)
}

// RoleResolver returns the current role of a user, failing when the user no longer exists.
type RoleResolver func(ctx context.Context, userID string) (string, error)

// RequireAuth returns middleware that validates a Bearer access token, confirms its user still
// exists, and injects the user ID and role into the request context.
func RequireAuth(parser AccessTokenParser, resolve RoleResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			scheme, raw, ok := strings.Cut(r.Header.Get("Authorization"), " ")
			if !ok || !strings.EqualFold(scheme, "Bearer") || raw == "" {
				response.Unauthorized(w, unauthenticated)
				return
			}

			userID, err := parser.ParseAccess(strings.TrimSpace(raw))
			if err != nil {
				response.Unauthorized(w, unauthenticated)
				return
			}

			role, err := resolve(r.Context(), userID)
			if err != nil {
				log.Ctx(r.Context()).Debug().Err(err).Str("user_id", userID).Msg("token subject rejected")
				response.Unauthorized(w, unauthenticated)
				return
			}

			ctx := context.WithValue(r.Context(), UserIDKey, userID)
			ctx = context.WithValue(ctx, UserRoleKey, role)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRights returns middleware that lets the request through when the user's role grants
// every right, or when the route's {userId} is the user's own ID. It must run after RequireAuth.
func RequireRights(rights ...roles.Right) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := UserID(r.Context())
			if userID == "" {
				response.Unauthorized(w, unauthenticated)
				return
			}
			if !roles.Has(Role(r.Context()), rights...) && chi.URLParam(r, "userId") != userID {
				response.Forbidden(w, "Forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// UserID returns the authenticated user's ID, or "" outside RequireAuth.
func UserID(ctx context.Context) string {
	id, _ := ctx.Value(UserIDKey).(string)
	return id
}

// Role returns the authenticated user's role, or "" outside RequireAuth.
func Role(ctx context.Context) string {
	role, _ := ctx.Value(UserRoleKey).(string)
	return role
}
