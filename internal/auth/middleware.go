package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/mtr-industry/mtr-backoffice/internal/platform/httpx"
	"github.com/mtr-industry/mtr-backoffice/internal/shared"
)

// roleSessionKey stores the role next to the session user id.
const roleSessionKey = "role"

type identityKey struct{}

// ContextWithIdentity stores id in ctx.
func ContextWithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFrom returns the identity set by RequireUser.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

// SignIn binds the session to the user.
func SignIn(sess *shared.Session, id Identity) {
	sess.SetUser(strconv.FormatInt(id.UserID, 10))
	sess.Set(roleSessionKey, string(id.Role))
}

// Middleware guards routes behind an authenticated identity.
type Middleware struct {
	Logger *slog.Logger
}

func (m Middleware) currentIdentity(r *http.Request) (Identity, bool) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		return Identity{}, false
	}
	raw := strings.TrimSpace(sess.User())
	if raw == "" {
		return Identity{}, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		if m.Logger != nil {
			m.Logger.Error("auth parse user id", slog.String("value", raw))
		}
		return Identity{}, false
	}
	role := Role(sess.Get(roleSessionKey))
	if !role.Valid() {
		return Identity{}, false
	}
	return Identity{UserID: id, Role: role}, true
}

// RequireUser rejects anonymous requests and exposes the identity to
// downstream handlers.
func (m Middleware) RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := m.currentIdentity(r)
		if !ok {
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "login required")
			return
		}
		next.ServeHTTP(w, r.WithContext(ContextWithIdentity(r.Context(), id)))
	})
}

// RequireRole admits only the given roles. It implies RequireUser.
func (m Middleware) RequireRole(roles ...Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return m.RequireUser(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, _ := IdentityFrom(r.Context())
			for _, role := range roles {
				if id.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			httpx.Problem(w, http.StatusForbidden, "Forbidden", "insufficient role")
		}))
	}
}
