// Package authtest signs requests in for handler tests.
package authtest

import (
	"net/http"
	"time"

	"github.com/mtr-industry/mtr-backoffice/internal/auth"
	"github.com/mtr-industry/mtr-backoffice/internal/shared"
)

var sessions = shared.NewSessionManager(nil, "mtr_test", time.Hour, false)

// As returns middleware attaching a session signed in as id. A zero id
// leaves the session anonymous.
func As(id auth.Identity) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, err := sessions.Load(r.Context(), r)
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			if id.UserID != 0 {
				auth.SignIn(sess, id)
			}
			next.ServeHTTP(w, r.WithContext(shared.ContextWithSession(r.Context(), sess)))
		})
	}
}

// Admin is a signed-in administrator.
var Admin = auth.Identity{UserID: 1, Role: auth.RoleAdmin}

// Client returns a signed-in client.
func Client(userID int64) auth.Identity {
	return auth.Identity{UserID: userID, Role: auth.RoleClient}
}
