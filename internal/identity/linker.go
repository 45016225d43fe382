package identity

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/clanhall/authcore/internal/domain"
	autherrors "github.com/clanhall/authcore/internal/errors"
	"github.com/clanhall/authcore/internal/store"
)

// Linker matches or creates local users for verified third-party
// identities.
type Linker struct {
	users  store.UserRepository
	logger *slog.Logger
}

// LinkerOption configures the Linker.
type LinkerOption func(*Linker)

// WithLinkerLogger sets the logger for the linker.
func WithLinkerLogger(logger *slog.Logger) LinkerOption {
	return func(l *Linker) { l.logger = logger }
}

// NewLinker creates a Linker over the given user repository.
func NewLinker(users store.UserRepository, opts ...LinkerOption) *Linker {
	l := &Linker{
		users:  users,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// FindOrCreateUser resolves a verified identity to a local user:
//
//  1. A user already bound to this subject is returned, with missing
//     email/name patched in.
//  2. A user holding the same email under a different subject is re-pointed
//     to the new subject (cross-provider account linking). The merge is not
//     conditioned on the provider's email-verified signal; whether it should
//     be is an open product question, so the behavior is kept.
//  3. Otherwise a new user is created, the display name falling back to the
//     email address.
func (l *Linker) FindOrCreateUser(ctx context.Context, ident *NormalizedIdentity) (*domain.User, error) {
	if ident.Subject == "" {
		return nil, autherrors.InvalidInput("identity has no subject")
	}

	user, err := l.users.GetBySubject(ctx, ident.Subject)
	if err == nil {
		changed := false
		if user.Email == "" && ident.Email != "" {
			user.Email = ident.Email
			changed = true
		}
		if user.Name == "" && ident.Name != "" {
			user.Name = ident.Name
			changed = true
		}
		if changed {
			user.UpdatedAt = time.Now()
			if err := l.users.Update(ctx, user); err != nil {
				return nil, fmt.Errorf("failed to update user: %w", err)
			}
		}
		return user, nil
	}
	if !autherrors.IsCode(err, autherrors.CodeNotFound) {
		return nil, fmt.Errorf("failed to look up user by subject: %w", err)
	}

	if ident.Email != "" {
		user, err := l.users.GetByEmail(ctx, ident.Email)
		if err == nil && user.Subject != ident.Subject {
			oldSubject := user.Subject
			user.Subject = ident.Subject
			if user.Name == "" && ident.Name != "" {
				user.Name = ident.Name
			}
			user.UpdatedAt = time.Now()
			if err := l.users.Update(ctx, user); err != nil {
				return nil, fmt.Errorf("failed to re-point user subject: %w", err)
			}
			l.logger.Info("linked account to new provider subject",
				"user_id", user.ID,
				"old_subject", oldSubject,
				"new_subject", ident.Subject,
			)
			return user, nil
		}
		if err != nil && !autherrors.IsCode(err, autherrors.CodeNotFound) {
			return nil, fmt.Errorf("failed to look up user by email: %w", err)
		}
	}

	name := ident.Name
	if name == "" {
		name = ident.Email
	}

	now := time.Now()
	user = &domain.User{
		Subject:   ident.Subject,
		Email:     ident.Email,
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := l.users.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	l.logger.Info("created user for new identity", "user_id", user.ID, "subject", ident.Subject)
	return user, nil
}
