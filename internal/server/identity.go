// Package server resolves soft peer identities from upgrade requests. The
// uid cookie is a convenience for reconnecting clients, not a credential.
package server

import (
	"net/http"

	"github.com/google/uuid"
)

const identityCookieName = "uid"

// resolveIdentity returns the peer id for an upgrade request. A non-empty
// uid cookie is reused as-is so a client keeps its identity across
// reconnects. Otherwise a fresh UUID is generated and returned together
// with a Set-Cookie header for the 101 response, flagged so scripts cannot
// read it and so browsers send it cross-site over TLS only.
func resolveIdentity(r *http.Request) (string, http.Header) {
	if cookie, err := r.Cookie(identityCookieName); err == nil && cookie.Value != "" {
		return cookie.Value, nil
	}

	id := uuid.NewString()
	cookie := &http.Cookie{
		Name:     identityCookieName,
		Value:    id,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteNoneMode,
	}

	header := http.Header{}
	header.Add("Set-Cookie", cookie.String())
	return id, header
}
