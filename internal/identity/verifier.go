// Package identity verifies third-party identity tokens and links the
// resulting identities to local user accounts.
package identity

import (
	"context"
	"fmt"

	autherrors "github.com/clanhall/authcore/internal/errors"
)

// NormalizedIdentity is the provider-independent result of verifying a
// third-party identity token. It is transient: it only drives the account
// linking decision.
type NormalizedIdentity struct {
	Subject       string
	Email         string
	EmailVerified bool
	Name          string
}

// Verifier verifies a third-party identity token and normalizes it.
type Verifier interface {
	// Name is the provider identifier used in exchange URLs.
	Name() string
	// Verify checks the token and extracts the normalized identity.
	Verify(ctx context.Context, idToken string) (*NormalizedIdentity, error)
}

// Registry holds the configured providers keyed by name.
type Registry struct {
	verifiers map[string]Verifier
}

// NewRegistry creates a Registry from the given verifiers.
func NewRegistry(verifiers ...Verifier) *Registry {
	r := &Registry{verifiers: make(map[string]Verifier, len(verifiers))}
	for _, v := range verifiers {
		r.verifiers[v.Name()] = v
	}
	return r
}

// Get returns the verifier for the given provider name.
func (r *Registry) Get(name string) (Verifier, error) {
	v, ok := r.verifiers[name]
	if !ok {
		return nil, autherrors.NotFound("identity provider", name)
	}
	return v, nil
}

// Names returns the registered provider names.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.verifiers))
	for name := range r.verifiers {
		names = append(names, name)
	}
	return names
}

// asBool accepts the boolean or string-"true" encodings providers use for
// email_verified.
func asBool(v any) bool {
	switch val := v.(type) {
	case bool:
		return val
	case string:
		return val == "true"
	default:
		return false
	}
}

// asString returns the string value of a claim, or empty.
func asString(v any) string {
	s, _ := v.(string)
	return s
}

// verificationError wraps a provider rejection reason.
func verificationError(provider, reason string) error {
	return autherrors.Validation(fmt.Sprintf("%s token rejected: %s", provider, reason))
}
