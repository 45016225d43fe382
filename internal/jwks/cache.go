package jwks

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	autherrors "github.com/clanhall/authcore/internal/errors"
	"github.com/clanhall/authcore/internal/metrics"
)

// ErrUnknownKey is returned when a requested kid is absent from the key set
// even after a forced refetch.
var ErrUnknownKey = autherrors.Validation("unknown signing key id")

// Cache is the process-local kid → public key map used by token validation.
//
// Refresh replaces the map wholesale (old kids are evicted, not merged), so
// concurrent readers never observe a partially-populated set. A validator
// hitting an unknown kid triggers at most one additional synchronous refetch
// per call; concurrent refetches are collapsed into a single source load.
type Cache struct {
	source Source
	ttl    time.Duration
	logger *slog.Logger

	mu        sync.RWMutex
	keys      map[string]*rsa.PublicKey
	lastFetch time.Time

	sf singleflight.Group
}

// CacheOption configures the Cache.
type CacheOption func(*Cache)

// WithCacheLogger sets the logger for the cache.
func WithCacheLogger(logger *slog.Logger) CacheOption {
	return func(c *Cache) { c.logger = logger }
}

// NewCache creates a key cache over the given source. The cache starts empty
// and is populated on first use (or by an explicit Refresh at startup).
func NewCache(source Source, ttl time.Duration, opts ...CacheOption) *Cache {
	c := &Cache{
		source: source,
		ttl:    ttl,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Key resolves the public key for the given kid, refreshing the cache when
// the TTL has lapsed or the kid is unknown. A refresh failure keeps the
// previous cache serving as long as it has ever been populated.
func (c *Cache) Key(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	c.mu.RLock()
	key, found := c.keys[kid]
	populated := c.keys != nil
	stale := time.Since(c.lastFetch) > c.ttl
	c.mu.RUnlock()

	if found && !stale {
		return key, nil
	}

	// Either the TTL lapsed or the kid is unknown: exactly one synchronous
	// refetch, collapsed across concurrent callers.
	if err := c.Refresh(ctx); err != nil {
		if !populated {
			return nil, err
		}
		c.logger.Warn("JWKS refresh failed, serving previous key cache", "error", err)
		if found {
			return key, nil
		}
		return nil, ErrUnknownKey
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	if key, ok := c.keys[kid]; ok {
		return key, nil
	}
	return nil, ErrUnknownKey
}

// Refresh loads the JWKS document from the source and swaps the cache
// contents. Concurrent calls share a single load.
func (c *Cache) Refresh(ctx context.Context) error {
	_, err, _ := c.sf.Do("refresh", func() (any, error) {
		return nil, c.refresh(ctx)
	})
	return err
}

func (c *Cache) refresh(ctx context.Context) error {
	doc, err := c.source.Load(ctx)
	if err != nil {
		metrics.RecordJWKSRefresh("error")
		return err
	}

	keys, err := ParseJWKS(doc)
	if err != nil {
		metrics.RecordJWKSRefresh("error")
		return err
	}

	c.mu.Lock()
	c.keys = keys
	c.lastFetch = time.Now()
	c.mu.Unlock()

	metrics.RecordJWKSRefresh("ok")
	c.logger.Debug("JWKS cache refreshed", "keys", len(keys))
	return nil
}

// LastFetch returns when the cache was last successfully refreshed.
func (c *Cache) LastFetch() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastFetch
}

// Kids returns the key ids currently cached. Test and debugging helper.
func (c *Cache) Kids() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	kids := make([]string, 0, len(c.keys))
	for kid := range c.keys {
		kids = append(kids, kid)
	}
	return kids
}

// jwksDocument mirrors the published JWKS JSON.
type jwksDocument struct {
	Keys []jwkEntry `json:"keys"`
}

type jwkEntry struct {
	Kty string `json:"kty"`
	Use string `json:"use"`
	Kid string `json:"kid"`
	Alg string `json:"alg"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// ParseJWKS decodes a JWKS JSON document into a kid → RSA public key map.
// Non-RSA and malformed entries are skipped.
func ParseJWKS(doc string) (map[string]*rsa.PublicKey, error) {
	var parsed jwksDocument
	if err := json.Unmarshal([]byte(doc), &parsed); err != nil {
		return nil, autherrors.Provider("malformed JWKS document", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(parsed.Keys))
	for _, entry := range parsed.Keys {
		if entry.Kty != "RSA" || (entry.Use != "" && entry.Use != "sig") {
			continue
		}
		pub, err := entry.rsaPublicKey()
		if err != nil {
			continue
		}
		keys[entry.Kid] = pub
	}

	if len(keys) == 0 {
		return nil, autherrors.Provider("no usable RSA signing keys in JWKS document", nil)
	}
	return keys, nil
}

// rsaPublicKey decodes the base64url big-endian modulus and exponent.
func (e *jwkEntry) rsaPublicKey() (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(e.N)
	if err != nil {
		return nil, fmt.Errorf("decode modulus: %w", err)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(e.E)
	if err != nil {
		return nil, fmt.Errorf("decode exponent: %w", err)
	}
	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nBytes),
		E: int(new(big.Int).SetBytes(eBytes).Int64()),
	}, nil
}
