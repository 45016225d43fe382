package jwks

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	autherrors "github.com/clanhall/authcore/internal/errors"
	"github.com/clanhall/authcore/internal/keys"
)

// fakeSource serves canned JWKS documents and counts loads.
type fakeSource struct {
	doc   atomic.Value // string
	err   atomic.Value // error
	loads atomic.Int64
}

func newFakeSource(doc string) *fakeSource {
	s := &fakeSource{}
	s.doc.Store(doc)
	return s
}

func (s *fakeSource) Load(ctx context.Context) (string, error) {
	s.loads.Add(1)
	if err, ok := s.err.Load().(error); ok && err != nil {
		return "", err
	}
	return s.doc.Load().(string), nil
}

func (s *fakeSource) LastUpdated(ctx context.Context) (time.Time, error) {
	return time.Time{}, nil
}

func (s *fakeSource) setDoc(doc string) { s.doc.Store(doc) }
func (s *fakeSource) setErr(err error)  { s.err.Store(err) }

func jwksDocFor(t *testing.T, managers ...*keys.Manager) string {
	t.Helper()
	set := keys.JWKS{}
	for _, m := range managers {
		set.Keys = append(set.Keys, m.ToJWK())
	}
	doc, err := json.Marshal(set)
	if err != nil {
		t.Fatalf("encode JWKS: %v", err)
	}
	return string(doc)
}

func singleJWK(t *testing.T, m *keys.Manager) string {
	t.Helper()
	data, err := json.Marshal(m.ToJWK())
	if err != nil {
		t.Fatalf("encode JWK: %v", err)
	}
	return string(data)
}

func newManager(t *testing.T) *keys.Manager {
	t.Helper()
	m, err := keys.Generate()
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	return m
}

func TestCacheKeyHit(t *testing.T) {
	m := newManager(t)
	source := newFakeSource(jwksDocFor(t, m))
	cache := NewCache(source, time.Minute)

	key, err := cache.Key(context.Background(), m.Kid())
	if err != nil {
		t.Fatalf("Key failed: %v", err)
	}
	if key.N.Cmp(m.PublicKey().N) != 0 {
		t.Error("Returned key does not match the published key")
	}

	// Second lookup must be served from the cache.
	if _, err := cache.Key(context.Background(), m.Kid()); err != nil {
		t.Fatalf("Key failed on warm cache: %v", err)
	}
	if got := source.loads.Load(); got != 1 {
		t.Errorf("Expected 1 source load, got %d", got)
	}
}

func TestCacheUnknownKidTriggersSingleRefetch(t *testing.T) {
	m := newManager(t)
	source := newFakeSource(jwksDocFor(t, m))
	cache := NewCache(source, time.Minute)

	// Warm the cache.
	if _, err := cache.Key(context.Background(), m.Kid()); err != nil {
		t.Fatalf("Key failed: %v", err)
	}
	loadsBefore := source.loads.Load()

	// A kid the provider never offers: exactly one forced refetch, then a
	// validation error.
	_, err := cache.Key(context.Background(), "k2")
	if !errors.Is(err, ErrUnknownKey) {
		t.Fatalf("Expected ErrUnknownKey, got: %v", err)
	}
	if got := source.loads.Load() - loadsBefore; got != 1 {
		t.Errorf("Expected exactly 1 refetch, got %d", got)
	}
	if !autherrors.IsCode(err, autherrors.CodeValidation) {
		t.Errorf("Unknown kid should surface as a validation error, got: %v", err)
	}
}

func TestCacheRefetchPicksUpNewKid(t *testing.T) {
	m1 := newManager(t)
	m2 := newManager(t)
	source := newFakeSource(jwksDocFor(t, m1))
	cache := NewCache(source, time.Minute)

	if _, err := cache.Key(context.Background(), m1.Kid()); err != nil {
		t.Fatalf("Key failed: %v", err)
	}

	// Provider rotates: the new document carries m2's kid.
	source.setDoc(jwksDocFor(t, m1, m2))

	if _, err := cache.Key(context.Background(), m2.Kid()); err != nil {
		t.Fatalf("Key should succeed after on-miss refetch: %v", err)
	}
}

func TestCacheRefreshEvictsOldKids(t *testing.T) {
	m1 := newManager(t)
	m2 := newManager(t)
	source := newFakeSource(jwksDocFor(t, m1))
	cache := NewCache(source, time.Minute)

	if err := cache.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	// The new set replaces the old wholesale.
	source.setDoc(jwksDocFor(t, m2))
	if err := cache.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	kids := cache.Kids()
	if len(kids) != 1 || kids[0] != m2.Kid() {
		t.Errorf("Expected only %s cached, got %v", m2.Kid(), kids)
	}
}

func TestCacheServesStaleOnRefreshFailure(t *testing.T) {
	m := newManager(t)
	source := newFakeSource(jwksDocFor(t, m))
	cache := NewCache(source, time.Nanosecond) // every lookup is stale

	if _, err := cache.Key(context.Background(), m.Kid()); err != nil {
		t.Fatalf("Key failed: %v", err)
	}

	source.setErr(autherrors.Provider("source unreachable", nil))

	// The TTL has lapsed and the refresh fails; the previous cache keeps
	// serving known kids.
	key, err := cache.Key(context.Background(), m.Kid())
	if err != nil {
		t.Fatalf("Key should serve the stale cache: %v", err)
	}
	if key == nil {
		t.Fatal("Expected the cached key")
	}

	// A kid that was never cached still fails.
	if _, err := cache.Key(context.Background(), "never-cached"); !errors.Is(err, ErrUnknownKey) {
		t.Errorf("Expected ErrUnknownKey, got: %v", err)
	}
}

func TestCacheEmptyNeverPopulatedFails(t *testing.T) {
	source := newFakeSource("")
	source.setErr(autherrors.Provider("source unreachable", nil))
	cache := NewCache(source, time.Minute)

	_, err := cache.Key(context.Background(), "any")
	if err == nil {
		t.Fatal("Key should fail when the cache was never populated")
	}
	if !autherrors.IsCode(err, autherrors.CodeProvider) {
		t.Errorf("Expected provider error, got: %v", err)
	}
}

func TestParseJWKS(t *testing.T) {
	m := newManager(t)

	tests := []struct {
		name    string
		doc     string
		wantErr bool
		keys    int
	}{
		{"valid single key", jwksDocFor(t, m), false, 1},
		{"malformed JSON", "{not json", true, 0},
		{"no usable keys", `{"keys":[{"kty":"EC","kid":"e1"}]}`, true, 0},
		{"skips non-RSA entries", `{"keys":[{"kty":"EC","kid":"e1"},` + singleJWK(t, m) + `]}`, false, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parsed, err := ParseJWKS(tt.doc)
			if tt.wantErr {
				if err == nil {
					t.Fatal("ParseJWKS should fail")
				}
				if !autherrors.IsCode(err, autherrors.CodeProvider) {
					t.Errorf("Expected provider error, got: %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseJWKS failed: %v", err)
			}
			if len(parsed) != tt.keys {
				t.Errorf("Expected %d keys, got %d", tt.keys, len(parsed))
			}
		})
	}
}
