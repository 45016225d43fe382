package identity

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"
	"time"

	"github.com/clanhall/authcore/internal/metrics"
)

// ProviderApple is the registry name of the Apple verifier.
const ProviderApple = "apple"

// AppleVerifier extracts identity claims from Apple-issued ID tokens.
//
// TODO: verify the token signature against https://appleid.apple.com/auth/keys
// the same way GoogleVerifier does. The current behavior decodes the payload
// segment without cryptographic verification, which trusts the transport
// channel alone. Kept as-is for compatibility with existing clients until
// the rollout plan for strict verification is agreed.
type AppleVerifier struct {
	issuer   string
	clientID string
}

// NewAppleVerifier creates an AppleVerifier.
func NewAppleVerifier(issuer, clientID string) *AppleVerifier {
	return &AppleVerifier{
		issuer:   issuer,
		clientID: clientID,
	}
}

// Name implements Verifier.
func (a *AppleVerifier) Name() string {
	return ProviderApple
}

type applePayload struct {
	Iss           string `json:"iss"`
	Sub           string `json:"sub"`
	Aud           string `json:"aud"`
	Exp           int64  `json:"exp"`
	Email         string `json:"email"`
	EmailVerified any    `json:"email_verified"`
	Name          string `json:"name"`
}

// Verify implements Verifier. It decodes the JWT payload segment directly;
// see the type comment for the verification gap.
func (a *AppleVerifier) Verify(ctx context.Context, idToken string) (*NormalizedIdentity, error) {
	parts := strings.Split(idToken, ".")
	if len(parts) != 3 {
		metrics.RecordProviderVerification(ProviderApple, false)
		return nil, verificationError(ProviderApple, "not a compact JWT")
	}

	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		metrics.RecordProviderVerification(ProviderApple, false)
		return nil, verificationError(ProviderApple, "undecodable payload segment")
	}

	var claims applePayload
	if err := json.Unmarshal(payload, &claims); err != nil {
		metrics.RecordProviderVerification(ProviderApple, false)
		return nil, verificationError(ProviderApple, "malformed payload JSON")
	}

	if a.issuer != "" && claims.Iss != a.issuer {
		metrics.RecordProviderVerification(ProviderApple, false)
		return nil, verificationError(ProviderApple, "invalid issuer")
	}
	if a.clientID != "" && claims.Aud != a.clientID {
		metrics.RecordProviderVerification(ProviderApple, false)
		return nil, verificationError(ProviderApple, "invalid audience")
	}
	if claims.Exp != 0 && !time.Unix(claims.Exp, 0).After(time.Now()) {
		metrics.RecordProviderVerification(ProviderApple, false)
		return nil, verificationError(ProviderApple, "token expired")
	}
	if claims.Sub == "" {
		metrics.RecordProviderVerification(ProviderApple, false)
		return nil, verificationError(ProviderApple, "missing subject")
	}

	metrics.RecordProviderVerification(ProviderApple, true)
	return &NormalizedIdentity{
		Subject:       claims.Sub,
		Email:         claims.Email,
		EmailVerified: asBool(claims.EmailVerified),
		Name:          claims.Name,
	}, nil
}
