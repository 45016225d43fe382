package token

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	autherrors "github.com/clanhall/authcore/internal/errors"
	"github.com/clanhall/authcore/internal/metrics"
	"github.com/clanhall/authcore/internal/store"
)

// KeyResolver resolves a signing public key by kid. Satisfied by
// *jwks.Cache; the resolver owns staleness and on-miss refetch behavior.
type KeyResolver interface {
	Key(ctx context.Context, kid string) (*rsa.PublicKey, error)
}

// Validator validates inbound JWTs and resolves a concrete user identity.
type Validator struct {
	resolver KeyResolver
	issuer   string
	audience string
	sessions store.SessionRepository // optional; nil disables sid resolution
	logger   *slog.Logger
}

// ValidatorOption configures the Validator.
type ValidatorOption func(*Validator)

// WithSessionStore wires a session store for sid-based identity resolution.
func WithSessionStore(sessions store.SessionRepository) ValidatorOption {
	return func(v *Validator) { v.sessions = sessions }
}

// WithValidatorLogger sets the logger for the validator.
func WithValidatorLogger(logger *slog.Logger) ValidatorOption {
	return func(v *Validator) { v.logger = logger }
}

// NewValidator creates a Validator against the configured issuer and
// audience.
func NewValidator(resolver KeyResolver, issuer, audience string, opts ...ValidatorOption) *Validator {
	v := &Validator{
		resolver: resolver,
		issuer:   issuer,
		audience: audience,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate parses and verifies a compact JWT. Claim checks are explicit so
// each failure carries a human-readable reason; the reasons are for logs and
// debugging, not a security boundary.
func (v *Validator) Validate(ctx context.Context, tokenString string) (*Claims, error) {
	claims := &Claims{}

	// Claim validation is done by hand below; the parser only verifies the
	// signature against the resolved key.
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	_, err := parser.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, autherrors.Validation(fmt.Sprintf("unexpected signing method %v", t.Header["alg"]))
		}
		kid, ok := t.Header["kid"].(string)
		if !ok || kid == "" {
			// No fallback to a default key.
			return nil, autherrors.Validation("missing kid in token header")
		}
		return v.resolver.Key(ctx, kid)
	})
	if err != nil {
		metrics.RecordTokenValidation(false)
		return nil, asValidationError(err)
	}

	if claims.Issuer != v.issuer {
		metrics.RecordTokenValidation(false)
		return nil, autherrors.Validation("invalid issuer")
	}
	if !audienceMatches(claims.Audience, v.audience) {
		metrics.RecordTokenValidation(false)
		return nil, autherrors.Validation("invalid audience")
	}
	if claims.ExpiresAt == nil {
		metrics.RecordTokenValidation(false)
		return nil, autherrors.Validation("missing expiry")
	}
	if !claims.ExpiresAt.After(time.Now()) {
		metrics.RecordTokenValidation(false)
		return nil, autherrors.Validation("token expired")
	}

	metrics.RecordTokenValidation(true)
	return claims, nil
}

// ExtractUserID resolves the user id for validated claims, in strict
// priority order: session (sid), direct user_id claim, then numeric sub.
// A false result means the caller cannot resolve an identity; it is treated
// as unauthenticated, not as an error.
func (v *Validator) ExtractUserID(ctx context.Context, claims *Claims) (int64, bool) {
	if claims.SessionID != "" && v.sessions != nil {
		session, err := v.sessions.GetByID(ctx, claims.SessionID)
		if err != nil || session.IsExpired(time.Now()) {
			return 0, false
		}
		return session.UserID, true
	}

	if claims.UserID != 0 {
		return claims.UserID, true
	}

	if id, err := strconv.ParseInt(claims.Subject, 10, 64); err == nil {
		return id, true
	}

	// Provider-prefixed subjects without a session cannot be resolved.
	return 0, false
}

// audienceMatches requires the configured audience by exact string match.
func audienceMatches(aud jwt.ClaimStrings, expected string) bool {
	for _, a := range aud {
		if a == expected {
			return true
		}
	}
	return false
}

// asValidationError maps parse failures onto the validation taxonomy while
// letting structured errors (unknown kid, provider outage) pass through.
func asValidationError(err error) error {
	var structured *autherrors.Error
	if errors.As(err, &structured) {
		return structured
	}

	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return autherrors.Validation("malformed token")
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return autherrors.Validation("invalid signature")
	default:
		return autherrors.Wrap(err, autherrors.CodeValidation, "token verification failed")
	}
}
