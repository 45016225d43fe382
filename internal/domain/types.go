// Package domain defines the core types for the token authority.
package domain

import (
	"time"
)

// User represents an identity in the system. Users are created by the
// account linking flow when a third-party identity token is exchanged;
// Subject is the external provider subject the account is currently
// bound to.
type User struct {
	ID        int64     `json:"id"`
	Subject   string    `json:"subject"`
	Email     string    `json:"email,omitempty"`
	Name      string    `json:"name,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Session binds a refresh token to a user. Only the SHA-256 hex digest of
// the refresh token is persisted; the plaintext token never touches storage.
type Session struct {
	ID               string    `json:"id"`
	UserID           int64     `json:"user_id"`
	RefreshTokenHash string    `json:"refresh_token_hash"`
	CreatedAt        time.Time `json:"created_at"`
	ExpiresAt        time.Time `json:"expires_at"`
	IP               string    `json:"ip,omitempty"`
	UserAgent        string    `json:"user_agent,omitempty"`
}

// IsExpired reports whether the session is no longer valid. The boundary is
// exclusive: a session whose ExpiresAt equals "now" is already expired.
func (s *Session) IsExpired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}

// SharedConfigEntry is a generic key-value row in the shared config store.
// It doubles as the cross-service JWKS transport channel under the
// well-known keys oidc.jwks, oidc.issuer and oidc.audience.
type SharedConfigEntry struct {
	Key         string    `json:"key"`
	Value       string    `json:"value"`
	Description string    `json:"description,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Well-known shared config keys consumed by dependent services.
const (
	ConfigKeyJWKS     = "oidc.jwks"
	ConfigKeyIssuer   = "oidc.issuer"
	ConfigKeyAudience = "oidc.audience"
)
