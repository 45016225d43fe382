package identity

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/clanhall/authcore/internal/jwks"
	"github.com/clanhall/authcore/internal/metrics"
)

// ProviderGoogle is the registry name of the Google verifier.
const ProviderGoogle = "google"

// GoogleVerifier verifies Google-issued ID tokens against Google's published
// JWKS. Only RSA-family signatures are accepted.
type GoogleVerifier struct {
	cache    *jwks.Cache
	issuer   string
	clientID string
}

// NewGoogleVerifier creates a GoogleVerifier. jwksURL is Google's published
// key endpoint; clientID is the audience our apps are registered under.
func NewGoogleVerifier(jwksURL, issuer, clientID string, fetchTimeout, cacheTTL time.Duration) *GoogleVerifier {
	source := jwks.NewHTTPSource(jwksURL, fetchTimeout)
	return &GoogleVerifier{
		cache:    jwks.NewCache(source, cacheTTL),
		issuer:   issuer,
		clientID: clientID,
	}
}

// Name implements Verifier.
func (g *GoogleVerifier) Name() string {
	return ProviderGoogle
}

// Verify implements Verifier.
func (g *GoogleVerifier) Verify(ctx context.Context, idToken string) (*NormalizedIdentity, error) {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())

	_, err := parser.ParseWithClaims(idToken, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, verificationError(ProviderGoogle, "non-RSA signing method")
		}
		kid, _ := t.Header["kid"].(string)
		return g.cache.Key(ctx, kid)
	})
	if err != nil {
		metrics.RecordProviderVerification(ProviderGoogle, false)
		return nil, verificationError(ProviderGoogle, err.Error())
	}

	if asString(claims["iss"]) != g.issuer {
		metrics.RecordProviderVerification(ProviderGoogle, false)
		return nil, verificationError(ProviderGoogle, "invalid issuer")
	}

	aud, err := claims.GetAudience()
	if err != nil || !containsAudience(aud, g.clientID) {
		metrics.RecordProviderVerification(ProviderGoogle, false)
		return nil, verificationError(ProviderGoogle, "invalid audience")
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil || !exp.After(time.Now()) {
		metrics.RecordProviderVerification(ProviderGoogle, false)
		return nil, verificationError(ProviderGoogle, "token expired")
	}

	sub := asString(claims["sub"])
	if sub == "" {
		metrics.RecordProviderVerification(ProviderGoogle, false)
		return nil, verificationError(ProviderGoogle, "missing subject")
	}

	metrics.RecordProviderVerification(ProviderGoogle, true)
	return &NormalizedIdentity{
		Subject:       sub,
		Email:         asString(claims["email"]),
		EmailVerified: asBool(claims["email_verified"]),
		Name:          asString(claims["name"]),
	}, nil
}

func containsAudience(aud jwt.ClaimStrings, expected string) bool {
	for _, a := range aud {
		if a == expected {
			return true
		}
	}
	return false
}
