package auth

import (
	"context"
	"net/http"

	"github.com/qualtrack/qualtrack/server/internal/store"
)

// SessionCookie is the cookie carrying the session id issued at login.
const SessionCookie = "session_id"

// SessionLookup resolves a session id to the logged-in user.
// *store.Store satisfies the interface.
type SessionLookup interface {
	LookupSession(ctx context.Context, sessionID string) (*store.Session, error)
}

type contextKey struct{}

var sessionKey contextKey

// APIKey returns middleware that enforces API key authentication on every
// request.
//
// Behaviour:
//   - If mode != "apikey" or key == "", all requests are allowed
//     (pass-through).
//   - Otherwise the middleware reads the value of header from the request
//     and compares it to key.
//   - A missing, empty, or incorrect key returns 401.
func APIKey(mode, header, key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Non-apikey modes or unconfigured key → allow everything.
			if mode != "apikey" || key == "" {
				next.ServeHTTP(w, r)
				return
			}

			if r.Header.Get(header) != key {
				http.Error(w, "invalid api key", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// Session returns middleware that resolves the session_id cookie through
// lookup and stores the resulting session on the request context. Requests
// without a valid session are rejected with 401.
func Session(lookup SessionLookup) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(SessionCookie)
			if err != nil || cookie.Value == "" {
				http.Error(w, "not authenticated", http.StatusUnauthorized)
				return
			}

			sess, err := lookup.LookupSession(r.Context(), cookie.Value)
			if err != nil {
				http.Error(w, "not authenticated", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), sessionKey, sess)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserFrom returns the session stored by the Session middleware, or false
// when the request was not authenticated.
func UserFrom(ctx context.Context) (*store.Session, bool) {
	sess, ok := ctx.Value(sessionKey).(*store.Session)
	return sess, ok
}
