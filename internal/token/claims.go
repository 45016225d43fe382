// Package token issues and validates the service's JWTs and manages the
// refresh token lifecycle against the session store.
package token

import (
	"strconv"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the typed claim set carried by access and ID tokens.
//
// SessionID links an access token to its refresh session for identity
// resolution. UserID is a direct claim kept for older clients; Subject is
// the ultimate fallback. Provider-specific extras go into Extra rather than
// ad hoc map lookups.
type Claims struct {
	SessionID string         `json:"sid,omitempty"`
	UserID    int64          `json:"user_id,omitempty"`
	Extra     map[string]any `json:"extra,omitempty"`

	jwt.RegisteredClaims
}

// Identity is the authenticated principal tokens are issued for.
type Identity struct {
	UserID  int64
	Subject string
}

// SubjectString returns the identity's stable subject, falling back to the
// stringified internal user id when no external subject is known.
func (i Identity) SubjectString() string {
	if i.Subject != "" {
		return i.Subject
	}
	return strconv.FormatInt(i.UserID, 10)
}
