// Package store defines repository interfaces for persistence.
package store

import (
	"context"

	"github.com/clanhall/authcore/internal/domain"
)

// SessionRepository defines operations for refresh session persistence.
// Uniqueness is anchored on the refresh token hash; two sessions never race
// on the same hash, so no locking beyond the backing store is required.
type SessionRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Session, error)
	GetByRefreshTokenHash(ctx context.Context, hash string) (*domain.Session, error)
	Save(ctx context.Context, session *domain.Session) error
	DeleteByID(ctx context.Context, id string) error
	DeleteExpired(ctx context.Context) error
}

// UserRepository defines operations for user persistence.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id int64) (*domain.User, error)
	GetBySubject(ctx context.Context, subject string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	Update(ctx context.Context, user *domain.User) error
}

// SharedConfigRepository defines operations for the shared key-value config
// store. The issuer writes JWKS material here; dependent services read it at
// their own cadence.
type SharedConfigRepository interface {
	Get(ctx context.Context, key string) (*domain.SharedConfigEntry, error)
	Upsert(ctx context.Context, entry *domain.SharedConfigEntry) error
	List(ctx context.Context) ([]*domain.SharedConfigEntry, error)
}

// Store aggregates all repositories.
type Store interface {
	Sessions() SessionRepository
	Users() UserRepository
	SharedConfig() SharedConfigRepository
	Close() error
}
