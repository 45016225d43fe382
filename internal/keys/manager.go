// Package keys owns the service's RSA signing key pair and its public JWK
// representation.
package keys

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	autherrors "github.com/clanhall/authcore/internal/errors"
)

const (
	// DefaultKeySize is the RSA key size in bits.
	DefaultKeySize = 2048
	// Algorithm is the JWT signing algorithm.
	Algorithm = "RS256"
	// KeyType is the JWK key type.
	KeyType = "RSA"
	// KeyUse is the JWK key use.
	KeyUse = "sig"
)

// KeyPair is the process-wide RSA signing key pair. Exactly one active pair
// exists per service instance; it is immutable after load. Rotation means
// restarting with new key material, not in-place mutation.
type KeyPair struct {
	Kid        string
	PrivateKey *rsa.PrivateKey
	PublicKey  *rsa.PublicKey
	LoadedAt   time.Time
}

// Manager wraps the active key pair with signing and JWK export.
type Manager struct {
	pair   KeyPair
	logger *slog.Logger
}

// Option configures the Manager.
type Option func(*Manager)

// WithLogger sets the logger for the manager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// LoadPEM builds a Manager from PEM-encoded RSA private key material.
// Malformed PEM is a fatal configuration error.
func LoadPEM(pemData []byte, opts ...Option) (*Manager, error) {
	block, _ := pem.Decode(pemData)
	if block == nil {
		return nil, autherrors.Configuration("signing key is not valid PEM", nil)
	}

	var privateKey *rsa.PrivateKey
	switch block.Type {
	case "RSA PRIVATE KEY":
		key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			return nil, autherrors.Configuration("failed to parse PKCS#1 signing key", err)
		}
		privateKey = key
	case "PRIVATE KEY":
		key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, autherrors.Configuration("failed to parse PKCS#8 signing key", err)
		}
		rsaKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, autherrors.Configuration("signing key is not an RSA key", nil)
		}
		privateKey = rsaKey
	default:
		return nil, autherrors.Configuration(fmt.Sprintf("unsupported PEM block type %q", block.Type), nil)
	}

	m := &Manager{
		pair: KeyPair{
			// A fingerprint kid keeps the key id stable across restarts with
			// the same material, so cached JWKS entries in dependent
			// services remain valid.
			Kid:        fingerprint(&privateKey.PublicKey),
			PrivateKey: privateKey,
			PublicKey:  &privateKey.PublicKey,
			LoadedAt:   time.Now(),
		},
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(m)
	}

	return m, nil
}

// LoadFile builds a Manager from a PEM file on disk.
func LoadFile(path string, opts ...Option) (*Manager, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, autherrors.Configuration("failed to read signing key file", err)
	}
	return LoadPEM(data, opts...)
}

// Generate builds a Manager with a fresh ephemeral key pair. Every token
// signed with it becomes unverifiable after a restart, so this is a
// development fallback only and is logged loudly.
func Generate(opts ...Option) (*Manager, error) {
	privateKey, err := rsa.GenerateKey(rand.Reader, DefaultKeySize)
	if err != nil {
		return nil, autherrors.Configuration("failed to generate RSA key", err)
	}

	m := &Manager{
		pair: KeyPair{
			Kid:        uuid.New().String(),
			PrivateKey: privateKey,
			PublicKey:  &privateKey.PublicKey,
			LoadedAt:   time.Now(),
		},
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(m)
	}

	m.logger.Warn("no signing key configured, generated an ephemeral RSA key pair; all tokens become invalid on restart",
		"kid", m.pair.Kid,
	)

	return m, nil
}

// Kid returns the key id of the active pair.
func (m *Manager) Kid() string {
	return m.pair.Kid
}

// PublicKey returns the active public key.
func (m *Manager) PublicKey() *rsa.PublicKey {
	return m.pair.PublicKey
}

// PrivateKey returns the active private key.
func (m *Manager) PrivateKey() *rsa.PrivateKey {
	return m.pair.PrivateKey
}

// LoadedAt returns when the active pair was loaded.
func (m *Manager) LoadedAt() time.Time {
	return m.pair.LoadedAt
}

// Sign produces a compact RS256 JWT carrying the active kid in its header.
func (m *Manager) Sign(claims jwt.Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = m.pair.Kid

	signed, err := token.SignedString(m.pair.PrivateKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// fingerprint derives a stable kid from the public key material.
func fingerprint(pub *rsa.PublicKey) string {
	sum := sha256.Sum256(pub.N.Bytes())
	return base64.RawURLEncoding.EncodeToString(sum[:16])
}
