package token

import (
	"context"
	"crypto/rsa"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/clanhall/authcore/internal/domain"
	autherrors "github.com/clanhall/authcore/internal/errors"
	"github.com/clanhall/authcore/internal/keys"
)

// mapResolver resolves keys from a fixed kid map, standing in for the JWKS
// cache.
type mapResolver struct {
	keys map[string]*rsa.PublicKey
}

func (r *mapResolver) Key(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	key, ok := r.keys[kid]
	if !ok {
		return nil, autherrors.Validation("unknown signing key id")
	}
	return key, nil
}

func newTestValidator(t *testing.T, opts ...ValidatorOption) (*Validator, *keys.Manager) {
	t.Helper()
	manager, err := keys.Generate()
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	resolver := &mapResolver{keys: map[string]*rsa.PublicKey{manager.Kid(): manager.PublicKey()}}
	return NewValidator(resolver, testIssuer, testAudience, opts...), manager
}

func signClaims(t *testing.T, manager *keys.Manager, claims *Claims) string {
	t.Helper()
	signed, err := manager.Sign(claims)
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}
	return signed
}

func baseClaims(mutate func(*Claims)) *Claims {
	now := time.Now()
	claims := &Claims{
		UserID: 42,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    testIssuer,
			Audience:  jwt.ClaimStrings{testAudience},
			Subject:   "42",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(15 * time.Minute)),
		},
	}
	if mutate != nil {
		mutate(claims)
	}
	return claims
}

func TestValidateAccepts(t *testing.T) {
	validator, manager := newTestValidator(t)

	signed := signClaims(t, manager, baseClaims(nil))

	claims, err := validator.Validate(context.Background(), signed)
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if claims.UserID != 42 {
		t.Errorf("Expected user_id 42, got %d", claims.UserID)
	}

	id, ok := validator.ExtractUserID(context.Background(), claims)
	if !ok || id != 42 {
		t.Errorf("ExtractUserID = (%d, %v), want (42, true)", id, ok)
	}
}

func TestValidateRejects(t *testing.T) {
	validator, manager := newTestValidator(t)

	tests := []struct {
		name   string
		token  func() string
		reason string
	}{
		{
			name:   "wrong audience",
			token:  func() string { return signClaims(t, manager, baseClaims(func(c *Claims) { c.Audience = jwt.ClaimStrings{"wrong-aud"} })) },
			reason: "invalid audience",
		},
		{
			name:   "wrong issuer",
			token:  func() string { return signClaims(t, manager, baseClaims(func(c *Claims) { c.Issuer = "https://evil.example.com" })) },
			reason: "invalid issuer",
		},
		{
			name: "expired",
			token: func() string {
				return signClaims(t, manager, baseClaims(func(c *Claims) { c.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute)) }))
			},
			reason: "token expired",
		},
		{
			name:   "missing expiry",
			token:  func() string { return signClaims(t, manager, baseClaims(func(c *Claims) { c.ExpiresAt = nil })) },
			reason: "missing expiry",
		},
		{
			name: "missing kid",
			token: func() string {
				tok := jwt.NewWithClaims(jwt.SigningMethodRS256, baseClaims(nil))
				signed, err := tok.SignedString(manager.PrivateKey())
				if err != nil {
					t.Fatalf("SignedString failed: %v", err)
				}
				return signed
			},
			reason: "missing kid in token header",
		},
		{
			name: "unknown kid",
			token: func() string {
				other, err := keys.Generate()
				if err != nil {
					t.Fatalf("Generate failed: %v", err)
				}
				return signClaims(t, other, baseClaims(nil))
			},
			reason: "unknown signing key id",
		},
		{
			name:   "malformed",
			token:  func() string { return "not.a.jwt" },
			reason: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := validator.Validate(context.Background(), tt.token())
			if err == nil {
				t.Fatal("Validate should fail")
			}
			if !autherrors.IsCode(err, autherrors.CodeValidation) {
				t.Fatalf("Expected validation error, got: %v", err)
			}
			if tt.reason != "" {
				var structured *autherrors.Error
				if !asStructured(err, &structured) || structured.Message != tt.reason {
					t.Errorf("Expected reason %q, got: %v", tt.reason, err)
				}
			}
		})
	}
}

func asStructured(err error, target **autherrors.Error) bool {
	e, ok := err.(*autherrors.Error)
	if !ok {
		return false
	}
	*target = e
	return true
}

func TestValidateRejectsTamperedSignature(t *testing.T) {
	validator, manager := newTestValidator(t)

	other, err := keys.Generate()
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	// The known kid, but signed with the wrong private key.
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, baseClaims(nil))
	tok.Header["kid"] = manager.Kid()
	signed, err := tok.SignedString(other.PrivateKey())
	if err != nil {
		t.Fatalf("SignedString failed: %v", err)
	}

	if _, err := validator.Validate(context.Background(), signed); err == nil {
		t.Fatal("Validate should reject a signature from the wrong key")
	}
}

func TestExtractUserIDSessionPath(t *testing.T) {
	sessions := newMemSessions()
	validator, _ := newTestValidator(t, WithSessionStore(sessions))
	ctx := context.Background()

	if err := sessions.Save(ctx, &domain.Session{
		ID:        "sess-live",
		UserID:    7,
		ExpiresAt: time.Now().Add(time.Hour),
	}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := sessions.Save(ctx, &domain.Session{
		ID:        "sess-dead",
		UserID:    7,
		ExpiresAt: time.Now().Add(-time.Hour),
	}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	tests := []struct {
		name   string
		claims *Claims
		wantID int64
		wantOK bool
	}{
		{"live session", &Claims{SessionID: "sess-live"}, 7, true},
		{"expired session", &Claims{SessionID: "sess-dead", UserID: 7}, 0, false},
		{"unknown session", &Claims{SessionID: "sess-missing", UserID: 7}, 0, false},
		{"user_id claim", &Claims{UserID: 9}, 9, true},
		{"numeric subject", &Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "11"}}, 11, true},
		{"provider subject", &Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "google:abc"}}, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, ok := validator.ExtractUserID(ctx, tt.claims)
			if id != tt.wantID || ok != tt.wantOK {
				t.Errorf("ExtractUserID = (%d, %v), want (%d, %v)", id, ok, tt.wantID, tt.wantOK)
			}
		})
	}
}
