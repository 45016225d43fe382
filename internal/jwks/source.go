// Package jwks distributes the service's JSON Web Key Set across services.
//
// The issuing service publishes its JWKS into the shared config store;
// dependent services load it from there (or over HTTP as a fallback) into a
// process-local key cache, so token validation never requires a synchronous
// call to the issuer.
package jwks

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	autherrors "github.com/clanhall/authcore/internal/errors"
	"github.com/clanhall/authcore/internal/store"
)

// Source loads raw JWKS JSON from somewhere. Implementations are selected at
// construction time; the cache does not care where the document comes from.
type Source interface {
	// Load returns the JWKS document as JSON.
	Load(ctx context.Context) (string, error)
	// LastUpdated returns when the document was last written, or the zero
	// time when the source cannot tell.
	LastUpdated(ctx context.Context) (time.Time, error)
}

// ConfigSource reads JWKS JSON from the shared config store. This is the
// preferred source for dependent services: it avoids a live call to the
// issuer entirely.
type ConfigSource struct {
	repo store.SharedConfigRepository
	key  string
}

// NewConfigSource creates a Source reading the given shared config key.
func NewConfigSource(repo store.SharedConfigRepository, key string) *ConfigSource {
	return &ConfigSource{
		repo: repo,
		key:  key,
	}
}

// Load implements Source.
func (s *ConfigSource) Load(ctx context.Context) (string, error) {
	entry, err := s.repo.Get(ctx, s.key)
	if err != nil {
		return "", autherrors.Provider(fmt.Sprintf("failed to read shared config key %q", s.key), err)
	}
	return entry.Value, nil
}

// LastUpdated implements Source.
func (s *ConfigSource) LastUpdated(ctx context.Context) (time.Time, error) {
	entry, err := s.repo.Get(ctx, s.key)
	if err != nil {
		return time.Time{}, autherrors.Provider(fmt.Sprintf("failed to read shared config key %q", s.key), err)
	}
	return entry.UpdatedAt, nil
}

// HTTPSource fetches JWKS JSON from an HTTP endpoint with a bounded timeout.
// Used as a fallback when a service has no access to the shared config
// store, and for third-party providers that only publish over HTTP.
type HTTPSource struct {
	url    string
	client *http.Client
}

// HTTPOption configures the HTTPSource.
type HTTPOption func(*HTTPSource)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(s *HTTPSource) { s.client = c }
}

// NewHTTPSource creates a Source fetching from the given URL.
func NewHTTPSource(url string, timeout time.Duration, opts ...HTTPOption) *HTTPSource {
	s := &HTTPSource{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load implements Source.
func (s *HTTPSource) Load(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return "", autherrors.Provider("failed to create JWKS request", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", autherrors.Provider("JWKS fetch failed", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", autherrors.Provider(fmt.Sprintf("JWKS endpoint returned status %d", resp.StatusCode), nil)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", autherrors.Provider("failed to read JWKS response", err)
	}
	return string(body), nil
}

// LastUpdated implements Source. HTTP endpoints carry no reliable update
// timestamp, so the zero time is returned.
func (s *HTTPSource) LastUpdated(ctx context.Context) (time.Time, error) {
	return time.Time{}, nil
}
