// Package auth provides authentication middleware for qualtrack-server.
//
// APIKey(mode, header, key) returns HTTP middleware that validates the API
// key from the named request header. It guards the internal ingestion API
// that collectors post to.
//
// When mode != "apikey" or key == "", all requests pass through (useful for
// local development with auth disabled). When the key is incorrect or absent,
// the middleware returns 401 immediately.
//
// Session(lookup) returns HTTP middleware for the user-facing edit routes: it
// resolves the session_id cookie to a logged-in user and stores it on the
// request context, where UserFrom retrieves it.
package auth
