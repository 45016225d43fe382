package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/clanhall/authcore/internal/domain"
	autherrors "github.com/clanhall/authcore/internal/errors"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open(""); !autherrors.IsCode(err, autherrors.CodeConfiguration) {
		t.Errorf("Expected configuration error, got: %v", err)
	}
}

func TestUserLifecycle(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	user := &domain.User{Subject: "google:abc", Email: "a@example.com", Name: "A"}
	if err := st.Users().Create(ctx, user); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if user.ID == 0 {
		t.Fatal("Create should assign an id")
	}

	byID, err := st.Users().GetByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if byID.Subject != "google:abc" || byID.Email != "a@example.com" {
		t.Errorf("Unexpected user: %+v", byID)
	}

	bySubject, err := st.Users().GetBySubject(ctx, "google:abc")
	if err != nil {
		t.Fatalf("GetBySubject failed: %v", err)
	}
	if bySubject.ID != user.ID {
		t.Errorf("Expected user %d, got %d", user.ID, bySubject.ID)
	}

	byEmail, err := st.Users().GetByEmail(ctx, "a@example.com")
	if err != nil {
		t.Fatalf("GetByEmail failed: %v", err)
	}
	if byEmail.ID != user.ID {
		t.Errorf("Expected user %d, got %d", user.ID, byEmail.ID)
	}

	byID.Subject = "apple:xyz"
	byID.Name = "Updated"
	if err := st.Users().Update(ctx, byID); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	updated, err := st.Users().GetByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if updated.Subject != "apple:xyz" || updated.Name != "Updated" {
		t.Errorf("Update not applied: %+v", updated)
	}
}

func TestUserNotFound(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	if _, err := st.Users().GetByID(ctx, 999); !autherrors.IsCode(err, autherrors.CodeNotFound) {
		t.Errorf("Expected not found, got: %v", err)
	}
	if _, err := st.Users().GetBySubject(ctx, "missing"); !autherrors.IsCode(err, autherrors.CodeNotFound) {
		t.Errorf("Expected not found, got: %v", err)
	}
	if err := st.Users().Update(ctx, &domain.User{ID: 999, Subject: "s"}); !autherrors.IsCode(err, autherrors.CodeNotFound) {
		t.Errorf("Expected not found, got: %v", err)
	}
}

func TestUserDuplicateSubject(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	if err := st.Users().Create(ctx, &domain.User{Subject: "google:abc"}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	err := st.Users().Create(ctx, &domain.User{Subject: "google:abc"})
	if !autherrors.IsCode(err, autherrors.CodeAlreadyExists) {
		t.Errorf("Expected already exists, got: %v", err)
	}
}

func TestSessionLifecycle(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	user := &domain.User{Subject: "google:abc"}
	if err := st.Users().Create(ctx, user); err != nil {
		t.Fatalf("Create user failed: %v", err)
	}

	now := time.Now().UTC().Truncate(time.Millisecond)
	session := &domain.Session{
		ID:               "sess-1",
		UserID:           user.ID,
		RefreshTokenHash: "abc123",
		CreatedAt:        now,
		ExpiresAt:        now.Add(time.Hour),
		IP:               "10.0.0.1",
		UserAgent:        "test-agent",
	}
	if err := st.Sessions().Save(ctx, session); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	byID, err := st.Sessions().GetByID(ctx, "sess-1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if byID.UserID != user.ID || byID.RefreshTokenHash != "abc123" {
		t.Errorf("Unexpected session: %+v", byID)
	}
	if !byID.ExpiresAt.Equal(session.ExpiresAt) {
		t.Errorf("ExpiresAt mismatch: %v != %v", byID.ExpiresAt, session.ExpiresAt)
	}

	byHash, err := st.Sessions().GetByRefreshTokenHash(ctx, "abc123")
	if err != nil {
		t.Fatalf("GetByRefreshTokenHash failed: %v", err)
	}
	if byHash.ID != "sess-1" {
		t.Errorf("Expected sess-1, got %s", byHash.ID)
	}

	if err := st.Sessions().DeleteByID(ctx, "sess-1"); err != nil {
		t.Fatalf("DeleteByID failed: %v", err)
	}
	if _, err := st.Sessions().GetByID(ctx, "sess-1"); !autherrors.IsCode(err, autherrors.CodeNotFound) {
		t.Errorf("Expected not found after delete, got: %v", err)
	}

	// Deleting again is a no-op.
	if err := st.Sessions().DeleteByID(ctx, "sess-1"); err != nil {
		t.Errorf("Repeated delete should not fail: %v", err)
	}
}

func TestDeleteExpiredSessions(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	user := &domain.User{Subject: "google:abc"}
	if err := st.Users().Create(ctx, user); err != nil {
		t.Fatalf("Create user failed: %v", err)
	}

	now := time.Now()
	live := &domain.Session{ID: "live", UserID: user.ID, RefreshTokenHash: "h1",
		CreatedAt: now, ExpiresAt: now.Add(time.Hour)}
	dead := &domain.Session{ID: "dead", UserID: user.ID, RefreshTokenHash: "h2",
		CreatedAt: now.Add(-2 * time.Hour), ExpiresAt: now.Add(-time.Hour)}

	for _, s := range []*domain.Session{live, dead} {
		if err := st.Sessions().Save(ctx, s); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
	}

	if err := st.Sessions().DeleteExpired(ctx); err != nil {
		t.Fatalf("DeleteExpired failed: %v", err)
	}

	if _, err := st.Sessions().GetByID(ctx, "live"); err != nil {
		t.Errorf("Live session should survive: %v", err)
	}
	if _, err := st.Sessions().GetByID(ctx, "dead"); !autherrors.IsCode(err, autherrors.CodeNotFound) {
		t.Errorf("Expired session should be gone, got: %v", err)
	}
}

func TestSharedConfigUpsert(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	entry := &domain.SharedConfigEntry{
		Key:         domain.ConfigKeyJWKS,
		Value:       `{"keys":[]}`,
		Description: "signing keys",
		UpdatedAt:   time.Now(),
	}
	if err := st.SharedConfig().Upsert(ctx, entry); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	got, err := st.SharedConfig().Get(ctx, domain.ConfigKeyJWKS)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Value != `{"keys":[]}` {
		t.Errorf("Unexpected value: %s", got.Value)
	}

	// Upsert replaces in place.
	entry.Value = `{"keys":[{"kid":"k1"}]}`
	if err := st.SharedConfig().Upsert(ctx, entry); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	got, err = st.SharedConfig().Get(ctx, domain.ConfigKeyJWKS)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Value != `{"keys":[{"kid":"k1"}]}` {
		t.Errorf("Upsert should replace the value, got: %s", got.Value)
	}

	entries, err := st.SharedConfig().List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("Expected one entry, got %d", len(entries))
	}

	if _, err := st.SharedConfig().Get(ctx, "missing"); !autherrors.IsCode(err, autherrors.CodeNotFound) {
		t.Errorf("Expected not found, got: %v", err)
	}
}
