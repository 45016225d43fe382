package keys

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
)

// JWKS represents a JSON Web Key Set.
type JWKS struct {
	Keys []JWK `json:"keys"`
}

// JWK represents a JSON Web Key (public key only).
type JWK struct {
	Kty string `json:"kty"` // Key type: "RSA"
	Use string `json:"use"` // Key use: "sig"
	Kid string `json:"kid"` // Key ID
	Alg string `json:"alg"` // Algorithm: "RS256"
	N   string `json:"n"`   // RSA modulus (base64url)
	E   string `json:"e"`   // RSA exponent (base64url)
}

// ToJWK converts the active key pair to its public JWK representation.
// big.Int.Bytes yields the minimal big-endian magnitude, which is the
// positive-integer encoding RFC 7518 requires (no leading sign byte).
func (m *Manager) ToJWK() JWK {
	pub := m.pair.PublicKey
	return JWK{
		Kty: KeyType,
		Use: KeyUse,
		Kid: m.pair.Kid,
		Alg: Algorithm,
		N:   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
		E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
	}
}

// ToJWKS wraps the active key in a single-key JWKS document.
func (m *Manager) ToJWKS() JWKS {
	return JWKS{Keys: []JWK{m.ToJWK()}}
}

// JWKSJSON renders the JWKS document as JSON for publication.
func (m *Manager) JWKSJSON() (string, error) {
	data, err := json.Marshal(m.ToJWKS())
	if err != nil {
		return "", fmt.Errorf("failed to marshal JWKS: %w", err)
	}
	return string(data), nil
}
